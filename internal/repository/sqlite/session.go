package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// CreateSession persists token → user.
func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at) VALUES (?, ?, ?)`,
		s.ID, s.UserID, millis(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting session for %s: %w", s.UserID, err)
	}
	return nil
}

// GetSession returns apperror.InvalidSession for unknown tokens.
func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		s         model.Session
		createdAt int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.InvalidSession
		}
		return nil, fmt.Errorf("sqlite: getting session: %w", err)
	}
	s.CreatedAt = fromMillis(createdAt)
	return &s, nil
}

// DeleteSession is idempotent.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session: %w", err)
	}
	return nil
}
