package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/auth"
	"github.com/tagfer/tagfer-server/internal/logging"
	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/repository"
	"github.com/tagfer/tagfer-server/internal/task"
)

// compile-time check that *SessionService can back the session middleware
var _ auth.SessionResolver = (*SessionService)(nil)

// SessionService issues and resolves login sessions.
//
// Every authenticated request resolves its session, so resolved tokens are
// kept in a small expiring LRU in front of the repository. Delete evicts the
// token before the store delete runs, so a signed-out token stops working
// immediately on this instance.
type SessionService struct {
	repo   repository.SessionRepository
	cache  *expirable.LRU[string, string]
	tasks  *task.Group
	logger *slog.Logger
}

// NewSessionService creates a SessionService. cacheSize <= 0 disables caching.
func NewSessionService(
	repo repository.SessionRepository,
	tasks *task.Group,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *SessionService {
	s := &SessionService{repo: repo, tasks: tasks, logger: logger}
	if cacheSize > 0 {
		s.cache = expirable.NewLRU[string, string](cacheSize, nil, cacheTTL)
	}
	return s
}

// Create stores a new random session for userID and returns its token.
func (s *SessionService) Create(ctx context.Context, userID string) (string, error) {
	session := &model.Session{ID: uuid.NewString(), UserID: userID}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("service/session: creating session for %s: %w", userID, err)
	}
	if s.cache != nil {
		s.cache.Add(session.ID, userID)
	}
	return session.ID, nil
}

// ResolveSession returns the user a token belongs to, or
// apperror.InvalidSession.
func (s *SessionService) ResolveSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", apperror.InvalidSession
	}
	if s.cache != nil {
		if userID, ok := s.cache.Get(sessionID); ok {
			return userID, nil
		}
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperror.InvalidSession) {
			return "", err
		}
		return "", fmt.Errorf("service/session: resolving session: %w", err)
	}
	if s.cache != nil {
		s.cache.Add(sessionID, session.UserID)
	}
	return session.UserID, nil
}

// Exists reports whether sessionID is a live session.
func (s *SessionService) Exists(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.ResolveSession(ctx, sessionID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperror.InvalidSession):
		return false, nil
	default:
		return false, err
	}
}

// Delete removes the session in the background. The caller never waits for
// the store; failures are logged and reported through the returned handle.
func (s *SessionService) Delete(ctx context.Context, sessionID string) *task.Handle {
	if s.cache != nil {
		s.cache.Remove(sessionID)
	}
	return s.tasks.Go(ctx, "deleteSession", func(ctx context.Context) error {
		if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
			return fmt.Errorf("service/session: deleting session %s: %w", logging.Mask(sessionID), err)
		}
		s.logger.Debug("session deleted", slog.String("session", logging.Mask(sessionID)))
		return nil
	})
}
