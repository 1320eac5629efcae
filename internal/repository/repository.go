// Package repository declares the storage contracts the service layer depends
// on. Implementations live in sub-packages (sqlite, redis); services only see
// these interfaces, which keeps them testable with in-memory fakes.
//
// All methods return *apperror.AppError values for conditions a client can
// observe (unknown session, duplicate user, missing note) and wrapped driver
// errors for everything else.
package repository

import (
	"context"
	"time"

	"github.com/tagfer/tagfer-server/internal/model"
)

// UserRepository is the identity provider's account store.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// SessionRepository maps opaque session tokens to users.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// VerificationCache holds one pending SMS code per phone number. A new code
// replaces the previous one; expired codes behave as absent.
type VerificationCache interface {
	PutCode(ctx context.Context, phone, code string, ttl time.Duration) error
	GetCode(ctx context.Context, phone string) (string, error)
}

// ProfileRepository stores the profile slots and the phone number mapper.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string, n int) (*model.Profile, error)
	PutProfile(ctx context.Context, userID string, n int, profile *model.Profile) error
	// ListProfiles returns up to limit slot-1 profiles in user id order,
	// starting at and including startAt ("" starts from the beginning).
	ListProfiles(ctx context.Context, startAt string, limit int) ([]model.Profile, error)
	// LookupPhone returns the user registered with phone, or "" when none is.
	LookupPhone(ctx context.Context, phone string) (string, error)
}

// ConnectionRepository stores pending requests, accepted connections, the
// denormalized connection counters and the auto-accept preference.
type ConnectionRepository interface {
	PutRequest(ctx context.Context, from string, fromSlot int, to string) error
	DeleteRequest(ctx context.Context, from, to string) error
	// AcceptRequest removes the pending edge in both directions and inserts
	// both accepted edges in a single transaction. Counters are not touched.
	// It fails with apperror.RequestNotFound when no from → to request is
	// pending, and with a validation error when fromSlot differs from the
	// slot the request was sent with.
	AcceptRequest(ctx context.Context, from string, fromSlot int, to string, toSlot int) error
	PendingRequests(ctx context.Context, userID string) (*model.PendingRequests, error)
	Connections(ctx context.Context, userID string) ([]model.Edge, error)
	// ConnectionSlot returns the slot stored on the owner → other edge.
	ConnectionSlot(ctx context.Context, owner, other string) (int, bool, error)
	DeleteConnection(ctx context.Context, a, b string) error

	IncrementCount(ctx context.Context, userID string) error
	GetCount(ctx context.Context, userID string) (int, error)

	GetAutoAccept(ctx context.Context, userID string) (int, error)
	SetAutoAccept(ctx context.Context, userID string, n int) error
}

// NoteRepository stores directional notes.
type NoteRepository interface {
	CreateNote(ctx context.Context, note *model.Note) error
	ListNotes(ctx context.Context, from, to string) ([]model.Note, error)
	UpdateNote(ctx context.Context, note *model.Note) error
	DeleteNote(ctx context.Context, from, to, id string) error
}

// NewAccount is everything signup persists besides the identity record.
type NewAccount struct {
	UserID  string
	Phone   string
	Profile *model.Profile
	// Invites are users the new account sends a slot-1 request to.
	Invites []string
}

// AccountRepository writes a new account's initial state atomically.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account NewAccount) error
}
