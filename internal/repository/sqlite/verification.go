package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/repository"
)

var _ repository.VerificationCache = (*DB)(nil)

// PutCode stores code for phone, replacing any previous one.
func (db *DB) PutCode(ctx context.Context, phone, code string, ttl time.Duration) error {
	expires := time.Now().Add(ttl)
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO verifications (phone_number, code, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(phone_number) DO UPDATE SET code = excluded.code, expires_at = excluded.expires_at`,
		phone, code, millis(expires),
	)
	if err != nil {
		return fmt.Errorf("sqlite: storing verification code: %w", err)
	}
	return nil
}

// GetCode returns apperror.PhoneNotCached when no unexpired code exists.
func (db *DB) GetCode(ctx context.Context, phone string) (string, error) {
	var code string
	err := db.conn.QueryRowContext(ctx,
		`SELECT code FROM verifications WHERE phone_number = ? AND expires_at > ?`,
		phone, millis(time.Now()),
	).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.PhoneNotCached
		}
		return "", fmt.Errorf("sqlite: reading verification code: %w", err)
	}
	return code, nil
}

// PurgeExpiredCodes removes expired rows and reports how many were deleted.
func (db *DB) PurgeExpiredCodes(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM verifications WHERE expires_at <= ?`, millis(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging verification codes: %w", err)
	}
	return res.RowsAffected()
}
