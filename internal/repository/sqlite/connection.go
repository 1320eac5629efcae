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

var _ repository.ConnectionRepository = (*DB)(nil)

// PutRequest records a pending request. A request row serves as both the
// sender's "sent" entry and the recipient's "received" entry, so the two
// views can never disagree. Re-sending overwrites the slot.
func (db *DB) PutRequest(ctx context.Context, from string, fromSlot int, to string) error {
	return putRequest(ctx, db.conn, from, fromSlot, to)
}

// DeleteRequest removes the pending from → to request. Absent rows are fine.
func (db *DB) DeleteRequest(ctx context.Context, from, to string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM requests WHERE from_id = ? AND to_id = ?`, from, to)
	if err != nil {
		return fmt.Errorf("sqlite: deleting request %s→%s: %w", from, to, err)
	}
	return nil
}

// AcceptRequest turns the from → to request into a pair of accepted edges.
// from's edge to `to` carries toSlot and to's edge to `from` carries fromSlot,
// so each side sees the profile the other side chose to share.
//
// The request must still be pending and fromSlot must be the slot it was
// sent with; otherwise nothing is written.
func (db *DB) AcceptRequest(ctx context.Context, from string, fromSlot int, to string, toSlot int) error {
	now := millis(time.Now())
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var sent int
		err := tx.QueryRowContext(ctx,
			`SELECT slot FROM requests WHERE from_id = ? AND to_id = ?`, from, to,
		).Scan(&sent)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound(apperror.ErrConnection, apperror.CodeRequestNotFound, "request", from+"→"+to)
		}
		if err != nil {
			return fmt.Errorf("sqlite: reading request %s→%s: %w", from, to, err)
		}
		if sent != fromSlot {
			return apperror.ValidationFailed("fromProfileN", "fromProfileN does not match the pending request")
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM requests WHERE from_id = ? AND to_id = ?`, from, to); err != nil {
			return fmt.Errorf("sqlite: clearing request %s→%s: %w", from, to, err)
		}

		const upsert = `INSERT INTO connections (owner_id, other_id, slot, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(owner_id, other_id) DO UPDATE SET slot = excluded.slot`
		if _, err := tx.ExecContext(ctx, upsert, from, to, toSlot, now); err != nil {
			return fmt.Errorf("sqlite: inserting connection %s→%s: %w", from, to, err)
		}
		if _, err := tx.ExecContext(ctx, upsert, to, from, fromSlot, now); err != nil {
			return fmt.Errorf("sqlite: inserting connection %s→%s: %w", to, from, err)
		}
		return nil
	})
}

// PendingRequests returns the user's received and sent requests, oldest first.
func (db *DB) PendingRequests(ctx context.Context, userID string) (*model.PendingRequests, error) {
	received, err := db.edges(ctx,
		`SELECT from_id, slot FROM requests WHERE to_id = ? ORDER BY created_at, from_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing received requests: %w", err)
	}
	sent, err := db.edges(ctx,
		`SELECT to_id, slot FROM requests WHERE from_id = ? ORDER BY created_at, to_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing sent requests: %w", err)
	}
	return &model.PendingRequests{Received: received, Sent: sent}, nil
}

// Connections returns every accepted edge owned by userID.
func (db *DB) Connections(ctx context.Context, userID string) ([]model.Edge, error) {
	edges, err := db.edges(ctx,
		`SELECT other_id, slot FROM connections WHERE owner_id = ? ORDER BY created_at, other_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing connections: %w", err)
	}
	return edges, nil
}

// ConnectionSlot returns the slot on the owner → other edge.
func (db *DB) ConnectionSlot(ctx context.Context, owner, other string) (int, bool, error) {
	var slot int
	err := db.conn.QueryRowContext(ctx,
		`SELECT slot FROM connections WHERE owner_id = ? AND other_id = ?`, owner, other,
	).Scan(&slot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("sqlite: reading connection %s→%s: %w", owner, other, err)
	}
	return slot, true, nil
}

// DeleteConnection removes both directions. Counters are left as they are.
func (db *DB) DeleteConnection(ctx context.Context, a, b string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM connections
		 WHERE (owner_id = ? AND other_id = ?) OR (owner_id = ? AND other_id = ?)`,
		a, b, b, a,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting connection %s↔%s: %w", a, b, err)
	}
	return nil
}

// IncrementCount adds one to the user's connection counter in a single
// statement, so concurrent increments never lose an update.
func (db *DB) IncrementCount(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO connection_counts (user_id, count) VALUES (?, 1)
		 ON CONFLICT(user_id) DO UPDATE SET count = count + 1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing count for %s: %w", userID, err)
	}
	return nil
}

// GetCount returns the stored counter, or 0 if none was ever written.
func (db *DB) GetCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT count FROM connection_counts WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("sqlite: reading count for %s: %w", userID, err)
	}
	return count, nil
}

// GetAutoAccept returns the user's auto-accept slot, 0 when disabled.
func (db *DB) GetAutoAccept(ctx context.Context, userID string) (int, error) {
	var slot int
	err := db.conn.QueryRowContext(ctx,
		`SELECT slot FROM auto_accept WHERE user_id = ?`, userID,
	).Scan(&slot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("sqlite: reading auto-accept for %s: %w", userID, err)
	}
	return slot, nil
}

// SetAutoAccept stores the slot; 0 disables auto-accept.
func (db *DB) SetAutoAccept(ctx context.Context, userID string, n int) error {
	var err error
	if n == 0 {
		_, err = db.conn.ExecContext(ctx, `DELETE FROM auto_accept WHERE user_id = ?`, userID)
	} else {
		_, err = db.conn.ExecContext(ctx,
			`INSERT INTO auto_accept (user_id, slot) VALUES (?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET slot = excluded.slot`,
			userID, n,
		)
	}
	if err != nil {
		return fmt.Errorf("sqlite: writing auto-accept for %s: %w", userID, err)
	}
	return nil
}

func putRequest(ctx context.Context, ex execer, from string, fromSlot int, to string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO requests (from_id, to_id, slot, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(from_id, to_id) DO UPDATE SET slot = excluded.slot`,
		from, to, fromSlot, millis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing request %s→%s: %w", from, to, err)
	}
	return nil
}

func (db *DB) edges(ctx context.Context, query, userID string) ([]model.Edge, error) {
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.UserID, &e.ProfileN); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
