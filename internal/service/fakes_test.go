package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/auth"
	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/phone"
	"github.com/tagfer/tagfer-server/internal/repository"
	"github.com/tagfer/tagfer-server/internal/task"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore implements every repository interface in memory. Services only
// see the interfaces, so the same fake backs all service tests. The failX
// fields inject errors.

var (
	_ repository.UserRepository       = (*fakeStore)(nil)
	_ repository.SessionRepository    = (*fakeStore)(nil)
	_ repository.VerificationCache    = (*fakeStore)(nil)
	_ repository.ProfileRepository    = (*fakeStore)(nil)
	_ repository.ConnectionRepository = (*fakeStore)(nil)
	_ repository.NoteRepository       = (*fakeStore)(nil)
	_ repository.AccountRepository    = (*fakeStore)(nil)
)

type slotKey struct {
	user string
	slot int
}

type pairKey struct {
	a, b string
}

type fakeCode struct {
	code    string
	expires time.Time
}

type fakeStore struct {
	mu  sync.Mutex
	now func() time.Time

	users       map[string]model.User
	sessions    map[string]string
	codes       map[string]fakeCode
	profiles    map[slotKey]model.Profile
	phones      map[string]string
	requests    map[pairKey]int
	connections map[pairKey]int
	counts      map[string]int
	autoAccept  map[string]int
	notes       map[string]model.Note
	nextNote    int

	failIncrement  error
	failLookup     map[string]error
	failGetProfile error
	deleteSession  chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:         time.Now,
		users:       make(map[string]model.User),
		sessions:    make(map[string]string),
		codes:       make(map[string]fakeCode),
		profiles:    make(map[slotKey]model.Profile),
		phones:      make(map[string]string),
		requests:    make(map[pairKey]int),
		connections: make(map[pairKey]int),
		counts:      make(map[string]int),
		autoAccept:  make(map[string]int),
		notes:       make(map[string]model.Note),
		failLookup:  make(map[string]error),
	}
}

// --- users ---

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; ok {
		return apperror.Auth(apperror.CodeUIDAlreadyExists, "")
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.Auth(apperror.CodeEmailAlreadyExists, "")
		}
		if u.PhoneNumber != "" && existing.PhoneNumber == u.PhoneNumber {
			return apperror.Auth(apperror.CodePhoneAlreadyExists, "")
		}
	}
	u.CreatedAt = f.now()
	f.users[u.ID] = *u
	return nil
}

func (f *fakeStore) findUser(match func(model.User) bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, apperror.UserNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return f.findUser(func(u model.User) bool { return u.ID == id })
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return f.findUser(func(u model.User) bool { return u.Email == email })
}

func (f *fakeStore) GetUserByPhone(_ context.Context, phone string) (*model.User, error) {
	return f.findUser(func(u model.User) bool { return phone != "" && u.PhoneNumber == phone })
}

func (f *fakeStore) UpdatePassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.UserNotFound
	}
	u.PasswordHash = hash
	f.users[id] = u
	return nil
}

// --- sessions ---

func (f *fakeStore) CreateSession(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s.UserID
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.sessions[id]
	if !ok {
		return nil, apperror.InvalidSession
	}
	return &model.Session{ID: id, UserID: userID}, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, id string) error {
	if f.deleteSession != nil {
		<-f.deleteSession
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

// --- verification ---

func (f *fakeStore) PutCode(_ context.Context, phone, code string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[phone] = fakeCode{code: code, expires: f.now().Add(ttl)}
	return nil
}

func (f *fakeStore) GetCode(_ context.Context, phone string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[phone]
	if !ok || !f.now().Before(c.expires) {
		return "", apperror.PhoneNotCached
	}
	return c.code, nil
}

// --- profiles ---

func cloneProfile(p model.Profile) model.Profile {
	p.Emails = maps.Clone(p.Emails)
	p.PhoneNumbers = maps.Clone(p.PhoneNumbers)
	p.Socials = maps.Clone(p.Socials)
	return p
}

func (f *fakeStore) GetProfile(_ context.Context, userID string, n int) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGetProfile != nil {
		return nil, f.failGetProfile
	}
	p, ok := f.profiles[slotKey{userID, n}]
	if !ok {
		return nil, apperror.NotFound(apperror.ErrProfile, apperror.CodeNoProfileForNumber, "profile", userID)
	}
	p = cloneProfile(p)
	return &p, nil
}

func (f *fakeStore) PutProfile(_ context.Context, userID string, n int, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.TagferID = userID
	f.profiles[slotKey{userID, n}] = cloneProfile(*p)
	return nil
}

func (f *fakeStore) ListProfiles(_ context.Context, startAt string, limit int) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for k := range f.profiles {
		if k.slot == 1 && k.user >= startAt {
			ids = append(ids, k.user)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]model.Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneProfile(f.profiles[slotKey{id, 1}]))
	}
	return out, nil
}

func (f *fakeStore) LookupPhone(_ context.Context, phone string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failLookup[phone]; err != nil {
		return "", err
	}
	return f.phones[phone], nil
}

// --- connections ---

func (f *fakeStore) PutRequest(_ context.Context, from string, fromSlot int, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[pairKey{from, to}] = fromSlot
	return nil
}

func (f *fakeStore) DeleteRequest(_ context.Context, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.requests, pairKey{from, to})
	return nil
}

func (f *fakeStore) AcceptRequest(_ context.Context, from string, fromSlot int, to string, toSlot int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sent, ok := f.requests[pairKey{from, to}]
	if !ok {
		return apperror.RequestNotFound
	}
	if sent != fromSlot {
		return apperror.ValidationFailed("fromProfileN", "fromProfileN does not match the pending request")
	}
	delete(f.requests, pairKey{from, to})
	f.connections[pairKey{from, to}] = toSlot
	f.connections[pairKey{to, from}] = fromSlot
	return nil
}

func sortedEdges(m map[string]int) []model.Edge {
	edges := make([]model.Edge, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		edges = append(edges, model.Edge{UserID: id, ProfileN: m[id]})
	}
	return edges
}

func (f *fakeStore) PendingRequests(_ context.Context, userID string) (*model.PendingRequests, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	received, sent := map[string]int{}, map[string]int{}
	for k, slot := range f.requests {
		if k.b == userID {
			received[k.a] = slot
		}
		if k.a == userID {
			sent[k.b] = slot
		}
	}
	return &model.PendingRequests{Received: sortedEdges(received), Sent: sortedEdges(sent)}, nil
}

func (f *fakeStore) Connections(_ context.Context, userID string) ([]model.Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for k, slot := range f.connections {
		if k.a == userID {
			out[k.b] = slot
		}
	}
	return sortedEdges(out), nil
}

func (f *fakeStore) ConnectionSlot(_ context.Context, owner, other string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.connections[pairKey{owner, other}]
	return slot, ok, nil
}

func (f *fakeStore) DeleteConnection(_ context.Context, a, b string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.connections, pairKey{a, b})
	delete(f.connections, pairKey{b, a})
	return nil
}

func (f *fakeStore) IncrementCount(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIncrement != nil {
		return f.failIncrement
	}
	f.counts[userID]++
	return nil
}

func (f *fakeStore) GetCount(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[userID], nil
}

func (f *fakeStore) GetAutoAccept(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoAccept[userID], nil
}

func (f *fakeStore) SetAutoAccept(_ context.Context, userID string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoAccept[userID] = n
	return nil
}

// --- notes ---

func (f *fakeStore) CreateNote(_ context.Context, n *model.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextNote++
	n.ID = fmt.Sprintf("note-%d", f.nextNote)
	n.CreatedAt = f.now().UnixMilli()
	n.UpdatedAt = n.CreatedAt
	f.notes[n.ID] = *n
	return nil
}

func (f *fakeStore) ListNotes(_ context.Context, from, to string) ([]model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Note
	for _, id := range slices.Sorted(maps.Keys(f.notes)) {
		if n := f.notes[id]; n.FromID == from && n.ToID == to {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateNote(_ context.Context, n *model.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.notes[n.ID]
	if !ok || existing.FromID != n.FromID || existing.ToID != n.ToID {
		return apperror.NotFound(apperror.ErrNote, apperror.CodeNoteNotFound, "note", n.ID)
	}
	existing.Content = n.Content
	existing.UpdatedAt = f.now().UnixMilli()
	f.notes[n.ID] = existing
	return nil
}

func (f *fakeStore) DeleteNote(_ context.Context, from, to, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.notes[id]
	if !ok || existing.FromID != from || existing.ToID != to {
		return apperror.NotFound(apperror.ErrNote, apperror.CodeNoteNotFound, "note", id)
	}
	delete(f.notes, id)
	return nil
}

// --- accounts ---

func (f *fakeStore) CreateAccount(ctx context.Context, a repository.NewAccount) error {
	if err := f.PutProfile(ctx, a.UserID, model.DefaultProfileN, a.Profile); err != nil {
		return err
	}
	f.mu.Lock()
	if a.Phone != "" {
		f.phones[a.Phone] = a.UserID
	}
	f.mu.Unlock()
	for _, to := range a.Invites {
		if to != a.UserID {
			_ = f.PutRequest(ctx, a.UserID, model.DefaultProfileN, to)
		}
	}
	return nil
}

// =========================================================================
// FAKE COLLABORATORS
// =========================================================================

type sentMessage struct {
	to, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]error
}

func (s *fakeSender) Send(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[to]; err != nil {
		return err
	}
	s.sent = append(s.sent, sentMessage{to: to, body: body})
	return nil
}

func (s *fakeSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (b *fakeBucket) Put(_ context.Context, name string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[name] = data
	return "https://media.test/" + name, nil
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

// =========================================================================
// TEST HELPERS
// =========================================================================

const testTokenSecret = "test-secret-that-is-long-enough"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires every service against one fakeStore.
type testEnv struct {
	store  *fakeStore
	sms    *fakeSender
	bucket *fakeBucket
	mail   *fakeMailer
	tasks  *task.Group
	tokens *auth.TokenService

	identity     *IdentityService
	sessions     *SessionService
	verification *VerificationService
	profiles     *ProfileService
	connections  *ConnectionService
	notes        *NoteService
	invites      *InviteService
	auth         *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discardLogger()

	tokens, err := auth.NewTokenService(testTokenSecret)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	e := &testEnv{
		store:  newFakeStore(),
		sms:    &fakeSender{},
		bucket: &fakeBucket{},
		mail:   &fakeMailer{},
		tasks:  task.NewGroup(logger),
		tokens: tokens,
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.tasks.Shutdown(ctx)
	})

	phones := phone.NewNormalizer("US")
	e.identity = NewIdentityService(e.store, auth.NewPasswordService(4), logger)
	e.sessions = NewSessionService(e.store, e.tasks, 16, time.Minute, logger)
	e.verification = NewVerificationService(e.store, e.sms, 5*time.Minute, logger)
	e.profiles = NewProfileService(e.store, e.store, e.bucket, tokens, ProfileConfig{
		PageSize:           3,
		PageTokenTTL:       time.Hour,
		BaseURL:            "https://tagfer.test",
		DefaultProfileName: "Business",
	}, logger)
	e.connections = NewConnectionService(e.store, e.profiles, logger)
	e.notes = NewNoteService(e.store, logger)
	e.invites = NewInviteService(e.sms, phones, e.profiles, e.tasks, 10, logger)
	e.auth = NewAuthService(AuthDeps{
		Identity:     e.identity,
		Sessions:     e.sessions,
		Verification: e.verification,
		Profiles:     e.profiles,
		Invites:      e.invites,
		Accounts:     e.store,
		Phones:       phones,
		Tokens:       tokens,
		Mailer:       e.mail,
	}, time.Hour, "https://tagfer.test/reset", logger)
	return e
}

// seedProfile writes slot n of id with a recognizable full name.
func (e *testEnv) seedProfile(t *testing.T, id string, n int) {
	t.Helper()
	p := &model.Profile{
		FullName:   "Name " + id,
		Experience: model.Experience{JobTitle: "Engineer", CompanyName: "Acme"},
	}
	if err := e.store.PutProfile(context.Background(), id, n, p); err != nil {
		t.Fatalf("PutProfile: %v", err)
	}
}
