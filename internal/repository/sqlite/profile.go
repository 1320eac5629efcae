package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

// GetProfile returns the profile stored in slot n. An empty slot is reported
// with the "no profile for number" code.
func (db *DB) GetProfile(ctx context.Context, userID string, n int) (*model.Profile, error) {
	var data string
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM profiles WHERE user_id = ? AND slot = ?`, userID, n,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(apperror.ErrProfile, apperror.CodeNoProfileForNumber,
				"profile", fmt.Sprintf("%s/%d", userID, n))
		}
		return nil, fmt.Errorf("sqlite: getting profile %s/%d: %w", userID, n, err)
	}
	return decodeProfile(userID, data)
}

// PutProfile writes the whole document for slot n.
func (db *DB) PutProfile(ctx context.Context, userID string, n int, p *model.Profile) error {
	return putProfile(ctx, db.conn, userID, n, p)
}

// ListProfiles pages through slot-1 profiles in user id order. The page
// starts at and includes startAt.
func (db *DB) ListProfiles(ctx context.Context, startAt string, limit int) ([]model.Profile, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, data FROM profiles
		 WHERE slot = 1 AND user_id >= ?
		 ORDER BY user_id
		 LIMIT ?`,
		startAt, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		var userID, data string
		if err := rows.Scan(&userID, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scanning profile row: %w", err)
		}
		p, err := decodeProfile(userID, data)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating profile rows: %w", err)
	}
	return profiles, nil
}

// LookupPhone maps a registered E.164 number to its owner.
func (db *DB) LookupPhone(ctx context.Context, phone string) (string, error) {
	var userID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id FROM phone_numbers WHERE phone_number = ?`, phone,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("sqlite: looking up phone number: %w", err)
	}
	return userID, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putProfile(ctx context.Context, ex execer, userID string, n int, p *model.Profile) error {
	p.TagferID = userID
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("sqlite: encoding profile %s/%d: %w", userID, n, err)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO profiles (user_id, slot, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, slot) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		userID, n, string(data), millis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing profile %s/%d: %w", userID, n, err)
	}
	return nil
}

func decodeProfile(userID, data string) (*model.Profile, error) {
	var p model.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("sqlite: decoding profile %s: %w", userID, err)
	}
	p.TagferID = userID
	return &p, nil
}
