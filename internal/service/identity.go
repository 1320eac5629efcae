package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/auth"
	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/repository"
)

// IdentityService is the account store: it owns tagferIds, emails, phone
// numbers and password hashes. Sessions and profiles live elsewhere.
type IdentityService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewIdentityService creates an IdentityService.
func NewIdentityService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{users: users, passwords: passwords, logger: logger}
}

// CreateUser registers a new account. The tagferId is stored lower-cased;
// phone must already be in E.164 form (or empty).
func (s *IdentityService) CreateUser(ctx context.Context, nu model.NewUser) (*model.User, error) {
	id := strings.ToLower(strings.TrimSpace(nu.TagferID))
	if id == "" {
		return nil, apperror.ValidationFailed("tagferId", "tagferId is required")
	}
	email, err := normalizeEmail(nu.Email)
	if err != nil {
		return nil, err
	}
	if nu.Password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	hash, err := s.passwords.Hash(nu.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		ID:           id,
		Email:        email,
		PhoneNumber:  nu.PhoneNumber,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/identity: creating user %s: %w", id, err)
	}

	s.logger.Info("user created", slog.String("tagferId", id))
	return user, nil
}

// EmailExists reports whether an account uses email.
func (s *IdentityService) EmailExists(ctx context.Context, email string) (bool, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return false, err
	}
	return exists(s.users.GetUserByEmail(ctx, email))
}

// TagferIDExists reports whether the (case-insensitive) tagferId is taken.
func (s *IdentityService) TagferIDExists(ctx context.Context, tagferID string) (bool, error) {
	return exists(s.users.GetUserByID(ctx, strings.ToLower(tagferID)))
}

// PhoneExists reports whether an account is registered with the E.164 phone.
func (s *IdentityService) PhoneExists(ctx context.Context, phone string) (bool, error) {
	return exists(s.users.GetUserByPhone(ctx, phone))
}

// SignInWithEmail authenticates by email and password.
func (s *IdentityService) SignInWithEmail(ctx context.Context, email, password string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.checkPassword(user, password)
}

// SignInWithTagferID authenticates by tagferId and password.
func (s *IdentityService) SignInWithTagferID(ctx context.Context, tagferID, password string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, strings.ToLower(tagferID))
	if err != nil {
		return nil, err
	}
	return s.checkPassword(user, password)
}

// GetUserByEmail looks an account up by email.
func (s *IdentityService) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.users.GetUserByEmail(ctx, email)
}

// GetUser returns the account of tagferID.
func (s *IdentityService) GetUser(ctx context.Context, tagferID string) (*model.User, error) {
	return s.users.GetUserByID(ctx, strings.ToLower(tagferID))
}

// SetPassword replaces the password of tagferID.
func (s *IdentityService) SetPassword(ctx context.Context, tagferID, password string) error {
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, tagferID, hash); err != nil {
		return fmt.Errorf("service/identity: updating password for %s: %w", tagferID, err)
	}
	s.logger.Info("password changed", slog.String("tagferId", tagferID))
	return nil
}

func (s *IdentityService) checkPassword(user *model.User, password string) (*model.User, error) {
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, err
	}
	return user, nil
}

// exists turns a lookup result into a boolean, treating "user not found" as
// false rather than an error.
func exists(_ *model.User, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperror.UserNotFound):
		return false, nil
	default:
		return false, err
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", apperror.Auth(apperror.CodeInvalidEmail, "")
	}
	return strings.ToLower(addr.Address), nil
}
