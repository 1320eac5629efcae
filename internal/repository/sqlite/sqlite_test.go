package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestDB returns a fresh in-memory database that is closed when the test
// finishes. ":memory:" databases live only as long as their connection, so
// every test is isolated.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagfer.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Re-opening runs migrate() again against the existing schema.
	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))
}
