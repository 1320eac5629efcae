// Package service holds the business logic.
//
// Services sit between the HTTP handlers and the repositories:
//
//	Handler (HTTP) → Service (business rules) → Repository (DB)
//	                                         ↘ SMS, mail, blob storage, OAuth
//
// They own every rule a client can observe: validation, wire error codes,
// which writes must be atomic and which side effects run detached from the
// request. Repositories are injected as interfaces so tests run against
// in-memory fakes.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/auth"
	"github.com/tagfer/tagfer-server/internal/logging"
	"github.com/tagfer/tagfer-server/internal/mailer"
	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/phone"
	"github.com/tagfer/tagfer-server/internal/repository"
	"github.com/tagfer/tagfer-server/internal/task"
)

// AuthDeps are the collaborators of AuthService.
type AuthDeps struct {
	Identity     *IdentityService
	Sessions     *SessionService
	Verification *VerificationService
	Profiles     *ProfileService
	Invites      *InviteService
	Accounts     repository.AccountRepository
	Phones       *phone.Normalizer
	Tokens       *auth.TokenService
	Mailer       mailer.Mailer
}

// AuthService orchestrates account lifecycle flows that span several
// stores: signup, sign-in and sign-out, phone verification, contact lookup
// and password reset.
type AuthService struct {
	AuthDeps
	resetTTL time.Duration
	resetURL string
	logger   *slog.Logger
}

// NewAuthService creates an AuthService. Password reset links point at
// resetURL and stay valid for resetTTL.
func NewAuthService(deps AuthDeps, resetTTL time.Duration, resetURL string, logger *slog.Logger) *AuthService {
	return &AuthService{
		AuthDeps: deps,
		resetTTL: resetTTL,
		resetURL: resetURL,
		logger:   logger,
	}
}

// =========================================================================
// SIGNUP
// =========================================================================

// SignupInput is the body of a signup request.
type SignupInput struct {
	User    model.NewUser `json:"user"`
	Profile SignupProfile `json:"profile"`
	Invites SignupInvites `json:"invites"`
}

// SignupInvites lists who the new user wants to reach: existing users get a
// connection request, phone numbers get an SMS invite.
type SignupInvites struct {
	Requests     []string `json:"requests"`
	PhoneNumbers []string `json:"phoneNumbers"`
}

// SignupResult is returned by Signup. Invites observes the background SMS
// fan-out; it is nil when there was nobody to text.
type SignupResult struct {
	SessionID string
	Invites   *task.Handle
}

// Signup creates the account, its first profile, the phone mapping and the
// requested connection requests, then signs the user in. SMS invites are
// sent in the background and never fail the signup.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	nu := in.User
	if nu.PhoneNumber != "" {
		normalized, err := s.Phones.Normalize(nu.PhoneNumber)
		if err != nil {
			return nil, apperror.Auth(apperror.CodeInvalidPhoneNumber, "")
		}
		nu.PhoneNumber = normalized
	}

	user, err := s.Identity.CreateUser(ctx, nu)
	if err != nil {
		return nil, err
	}

	profile, err := s.Profiles.InitialProfile(ctx, user.ID, in.Profile)
	if err != nil {
		return nil, err
	}

	invites := make([]string, 0, len(in.Invites.Requests))
	for _, id := range in.Invites.Requests {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			invites = append(invites, id)
		}
	}
	err = s.Accounts.CreateAccount(ctx, repository.NewAccount{
		UserID:  user.ID,
		Phone:   user.PhoneNumber,
		Profile: profile,
		Invites: invites,
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: writing account %s: %w", user.ID, err)
	}

	sessionID, err := s.Sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	res := &SignupResult{SessionID: sessionID}
	if len(in.Invites.PhoneNumbers) > 0 {
		res.Invites = s.Invites.SendMassInvites(ctx, in.Invites.PhoneNumbers, in.Profile.FullName, user.ID)
	}

	s.logger.Info("user signed up",
		slog.String("tagferId", user.ID),
		slog.Int("requests", len(invites)),
		slog.Int("smsInvites", len(in.Invites.PhoneNumbers)),
	)
	return res, nil
}

// =========================================================================
// SESSIONS
// =========================================================================

// SignInInput identifies the account by email or tagferId.
type SignInInput struct {
	Email    string `json:"email"`
	TagferID string `json:"tagferId"`
	Password string `json:"password"`
}

// SignIn checks the credentials and returns a new session id.
func (s *AuthService) SignIn(ctx context.Context, in SignInInput) (string, error) {
	var (
		user *model.User
		err  error
	)
	switch {
	case in.Email != "":
		user, err = s.Identity.SignInWithEmail(ctx, in.Email, in.Password)
	case in.TagferID != "":
		user, err = s.Identity.SignInWithTagferID(ctx, in.TagferID, in.Password)
	default:
		return "", apperror.ValidationFailed("email", "email or tagferId is required")
	}
	if err != nil {
		return "", err
	}
	return s.Sessions.Create(ctx, user.ID)
}

// SignOut ends the session. The store delete is detached from the request.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) *task.Handle {
	return s.Sessions.Delete(ctx, sessionID)
}

// SessionExists reports whether sessionID is live.
func (s *AuthService) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	return s.Sessions.Exists(ctx, sessionID)
}

// EmailExists reports whether email is registered.
func (s *AuthService) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.Identity.EmailExists(ctx, email)
}

// TagferIDExists reports whether tagferID is taken.
func (s *AuthService) TagferIDExists(ctx context.Context, tagferID string) (bool, error) {
	return s.Identity.TagferIDExists(ctx, tagferID)
}

// PhoneExists reports whether raw, once normalized, belongs to an account.
func (s *AuthService) PhoneExists(ctx context.Context, raw string) (bool, error) {
	number, err := s.normalizePhone(raw)
	if err != nil {
		return false, err
	}
	return s.Identity.PhoneExists(ctx, number)
}

// =========================================================================
// PHONE
// =========================================================================

// SendPhoneCode texts a verification PIN to a number that is not yet
// registered.
func (s *AuthService) SendPhoneCode(ctx context.Context, raw string) error {
	number, err := s.normalizePhone(raw)
	if err != nil {
		return err
	}
	taken, err := s.Identity.PhoneExists(ctx, number)
	if err != nil {
		return err
	}
	if taken {
		return apperror.Auth(apperror.CodePhoneAlreadyExists, "")
	}
	return s.Verification.SendCode(ctx, number)
}

// VerifyPhoneCode reports whether code matches the PIN last sent to raw.
func (s *AuthService) VerifyPhoneCode(ctx context.Context, raw, code string) (bool, error) {
	number, err := s.normalizePhone(raw)
	if err != nil {
		return false, err
	}
	return s.Verification.CheckCode(ctx, number, code)
}

// FindUsersByPhone splits a contact list into registered users (by
// tagferId) and unregistered numbers. Unparseable numbers are dropped;
// numbers whose lookup failed are reported in Failed.
func (s *AuthService) FindUsersByPhone(ctx context.Context, numbers []string) (*model.PhoneLookup, error) {
	type outcome struct {
		number   string
		tagferID string
		err      error
	}

	valid := make([]string, 0, len(numbers))
	for _, raw := range numbers {
		if n, err := s.Phones.Normalize(raw); err == nil {
			valid = append(valid, n)
		}
	}

	results := make([]outcome, len(valid))
	var g errgroup.Group
	for i, number := range valid {
		g.Go(func() error {
			id, err := s.Profiles.LookupPhone(ctx, number)
			results[i] = outcome{number: number, tagferID: id, err: err}
			return nil
		})
	}
	_ = g.Wait()

	lookup := &model.PhoneLookup{
		InNetwork:  []string{},
		OutNetwork: []string{},
		Failed:     []string{},
	}
	for _, r := range results {
		switch {
		case r.err != nil:
			s.logger.Warn("phone lookup failed",
				slog.String("phone", logging.Mask(r.number)),
				slog.String("error", r.err.Error()),
			)
			lookup.Failed = append(lookup.Failed, r.number)
		case r.tagferID != "":
			lookup.InNetwork = append(lookup.InNetwork, r.tagferID)
		default:
			lookup.OutNetwork = append(lookup.OutNetwork, r.number)
		}
	}
	return lookup, nil
}

func (s *AuthService) normalizePhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", apperror.ValidationFailed("phoneNumber", "phoneNumber is required")
	}
	number, err := s.Phones.Normalize(raw)
	if err != nil {
		return "", apperror.Auth(apperror.CodeInvalidPhoneNumber, "")
	}
	return number, nil
}

// =========================================================================
// PASSWORD RESET
// =========================================================================

const resetSubject = "Reset your Tagfer password"

// RequestPasswordReset mails a signed reset link to the account's email.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.Identity.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := s.Tokens.GenerateBound(auth.AudienceReset, user.ID, passwordFingerprint(user.PasswordHash), s.resetTTL)
	if err != nil {
		return fmt.Errorf("service/auth: issuing reset token: %w", err)
	}
	link := s.resetURL + "?token=" + url.QueryEscape(token)
	body := fmt.Sprintf(
		"Hi %s,\n\nFollow this link to choose a new password:\n\n%s\n\nThe link expires in %s. If you did not ask for a reset, ignore this message.\n",
		user.ID, link, s.resetTTL,
	)

	if err := s.Mailer.Send(ctx, user.Email, resetSubject, body); err != nil {
		s.logger.Error("sending password reset", slog.String("tagferId", user.ID), slog.String("error", err.Error()))
		return apperror.Network(err)
	}
	s.logger.Info("password reset requested", slog.String("tagferId", user.ID))
	return nil
}

// ConfirmPasswordReset sets a new password for the account named by a reset
// token. A token is bound to the password it was issued against, so it
// stops working once any reset succeeds.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	if token == "" {
		return apperror.ValidationFailed("token", "token is required")
	}
	invalid := apperror.Auth(apperror.CodeInvalidResetToken, "")
	tagferID, binding, err := s.Tokens.ValidateBound(auth.AudienceReset, token)
	if err != nil || binding == "" {
		return invalid
	}

	user, err := s.Identity.GetUser(ctx, tagferID)
	if errors.Is(err, apperror.UserNotFound) {
		return invalid
	}
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(binding), []byte(passwordFingerprint(user.PasswordHash))) != 1 {
		s.logger.Warn("stale password reset token", slog.String("tagferId", user.ID))
		return invalid
	}

	err = s.Identity.SetPassword(ctx, user.ID, password)
	if errors.Is(err, apperror.UserNotFound) {
		return invalid
	}
	return err
}

// passwordFingerprint is a short digest of a password hash, used to bind
// reset tokens to the password they replace.
func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
