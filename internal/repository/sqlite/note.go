package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/repository"
)

var _ repository.NoteRepository = (*DB)(nil)

// CreateNote assigns the note an id and both timestamps.
func (db *DB) CreateNote(ctx context.Context, n *model.Note) error {
	now := time.Now().UnixMilli()
	n.ID = xid.New().String()
	n.CreatedAt = now
	n.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notes (id, from_id, to_id, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.FromID, n.ToID, n.Content, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting note %s→%s: %w", n.FromID, n.ToID, err)
	}
	return nil
}

// ListNotes returns from's notes about to, oldest first.
func (db *DB) ListNotes(ctx context.Context, from, to string) ([]model.Note, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, from_id, to_id, content, created_at, updated_at
		 FROM notes WHERE from_id = ? AND to_id = ?
		 ORDER BY created_at, id`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notes %s→%s: %w", from, to, err)
	}
	defer rows.Close()

	notes := []model.Note{}
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.FromID, &n.ToID, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning note row: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating note rows: %w", err)
	}
	return notes, nil
}

// UpdateNote replaces the content of an existing note and bumps UpdatedAt.
// The note must belong to the (FromID, ToID) pair.
func (db *DB) UpdateNote(ctx context.Context, n *model.Note) error {
	n.UpdatedAt = time.Now().UnixMilli()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE notes SET content = ?, updated_at = ?
		 WHERE id = ? AND from_id = ? AND to_id = ?`,
		n.Content, n.UpdatedAt, n.ID, n.FromID, n.ToID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating note %s: %w", n.ID, err)
	}
	return requireOneRow(res, n.ID)
}

// DeleteNote removes one note of the (from, to) pair.
func (db *DB) DeleteNote(ctx context.Context, from, to, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM notes WHERE id = ? AND from_id = ? AND to_id = ?`, id, from, to)
	if err != nil {
		return fmt.Errorf("sqlite: deleting note %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireOneRow(res rowsAffecter, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(apperror.ErrNote, apperror.CodeNoteNotFound, "note", id)
	}
	return nil
}
