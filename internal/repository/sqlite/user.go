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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new identity record. The id, email and phone number
// must all be unused; each collision maps to its own wire code so the app can
// tell the user which field to change.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		checks := []struct {
			query string
			arg   string
			code  apperror.Code
		}{
			{`SELECT 1 FROM users WHERE id = ?`, user.ID, apperror.CodeUIDAlreadyExists},
			{`SELECT 1 FROM users WHERE email = ?`, user.Email, apperror.CodeEmailAlreadyExists},
			{`SELECT 1 FROM users WHERE phone_number = ?`, user.PhoneNumber, apperror.CodePhoneAlreadyExists},
		}
		for _, c := range checks {
			if c.arg == "" {
				continue
			}
			var one int
			err := tx.QueryRowContext(ctx, c.query, c.arg).Scan(&one)
			if err == nil {
				return apperror.Auth(c.code, "")
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("sqlite: checking user uniqueness: %w", err)
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, phone_number, password_hash, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			user.ID,
			user.Email,
			nullString(user.PhoneNumber),
			user.PasswordHash,
			millis(user.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting user %s: %w", user.ID, err)
		}
		return nil
	})
}

// GetUserByID retrieves a user by tagferId.
// Returns apperror.UserNotFound if no user exists with that id.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUserBy(ctx, "id", id)
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUserBy(ctx, "email", email)
}

// GetUserByPhone retrieves a user by E.164 phone number.
func (db *DB) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	return db.getUserBy(ctx, "phone_number", phone)
}

// UpdatePassword replaces the stored bcrypt hash.
func (db *DB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("sqlite: updating password for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.UserNotFound
	}
	return nil
}

// getUserBy looks a user up by one unique column. column is always a
// constant from this file, never user input.
func (db *DB) getUserBy(ctx context.Context, column, value string) (*model.User, error) {
	var (
		u         model.User
		phone     sql.NullString
		createdAt int64
	)

	err := db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, email, phone_number, password_hash, created_at
		 FROM users WHERE %s = ?`, column),
		value,
	).Scan(&u.ID, &u.Email, &phone, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.UserNotFound
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}

	u.PhoneNumber = phone.String
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
