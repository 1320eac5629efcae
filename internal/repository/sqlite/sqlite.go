// Package sqlite implements the repository interfaces on top of SQLite.
//
// SQLite is embedded: the whole data set lives in one file next to the
// binary and there is no server to run. modernc.org/sqlite is a pure Go
// translation of the C library, so the binary still cross-compiles without
// a C toolchain.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB   is a connection pool, not a single connection
//   - sql.Tx   is a transaction; every multi-row write below uses one
//   - sql.Rows must always be closed
//
// Timestamps are stored as INTEGER Unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool. One DB implements every repository
// interface; the per-domain methods live in the sibling files.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and applies the schema.
//
// dbPath examples:
//   - "data/tagfer.db" → file-based database
//   - ":memory:"       → in-memory database, used by the tests
func New(dbPath string) (*DB, error) {
	// busy_timeout is a per-connection setting, so it goes in the DSN where
	// every pooled connection picks it up.
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" gets its own private database, so the
	// pool must never open a second one.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		ddl  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				email         TEXT NOT NULL UNIQUE,
				phone_number  TEXT UNIQUE,
				password_hash TEXT NOT NULL,
				created_at    INTEGER NOT NULL
			);`},
		{"sessions", `
			CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);`},
		{"verifications", `
			CREATE TABLE IF NOT EXISTS verifications (
				phone_number TEXT PRIMARY KEY,
				code         TEXT NOT NULL,
				expires_at   INTEGER NOT NULL
			);`},
		{"profiles", `
			CREATE TABLE IF NOT EXISTS profiles (
				user_id    TEXT NOT NULL,
				slot       INTEGER NOT NULL CHECK (slot BETWEEN 1 AND 4),
				data       TEXT NOT NULL,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (user_id, slot)
			);
			CREATE INDEX IF NOT EXISTS idx_profiles_slot_user ON profiles(slot, user_id);`},
		{"phone_numbers", `
			CREATE TABLE IF NOT EXISTS phone_numbers (
				phone_number TEXT PRIMARY KEY,
				user_id      TEXT NOT NULL
			);`},
		{"requests", `
			CREATE TABLE IF NOT EXISTS requests (
				from_id    TEXT NOT NULL,
				to_id      TEXT NOT NULL,
				slot       INTEGER NOT NULL,
				created_at INTEGER NOT NULL,
				PRIMARY KEY (from_id, to_id)
			);
			CREATE INDEX IF NOT EXISTS idx_requests_to_id ON requests(to_id);`},
		{"connections", `
			CREATE TABLE IF NOT EXISTS connections (
				owner_id   TEXT NOT NULL,
				other_id   TEXT NOT NULL,
				slot       INTEGER NOT NULL,
				created_at INTEGER NOT NULL,
				PRIMARY KEY (owner_id, other_id)
			);`},
		{"connection_counts", `
			CREATE TABLE IF NOT EXISTS connection_counts (
				user_id TEXT PRIMARY KEY,
				count   INTEGER NOT NULL DEFAULT 0
			);`},
		{"auto_accept", `
			CREATE TABLE IF NOT EXISTS auto_accept (
				user_id TEXT PRIMARY KEY,
				slot    INTEGER NOT NULL
			);`},
		{"notes", `
			CREATE TABLE IF NOT EXISTS notes (
				id         TEXT PRIMARY KEY,
				from_id    TEXT NOT NULL,
				to_id      TEXT NOT NULL,
				content    TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_notes_pair ON notes(from_id, to_id, created_at);`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.ddl); err != nil {
			return fmt.Errorf("creating %s table: %w", step.name, err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
