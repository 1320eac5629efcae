package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/model"
)

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s := &model.Session{ID: "token-1", UserID: "alice"}
	require.NoError(t, db.CreateSession(ctx, s))

	got, err := db.GetSession(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)

	require.NoError(t, db.DeleteSession(ctx, "token-1"))
	_, err = db.GetSession(ctx, "token-1")
	assert.ErrorIs(t, err, apperror.InvalidSession)

	// Deleting again is not an error.
	assert.NoError(t, db.DeleteSession(ctx, "token-1"))
}

func TestGetSession_Unknown(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.InvalidSession)
	assert.Equal(t, apperror.CodeInvalidSessionID, apperror.CodeOf(err))
}
