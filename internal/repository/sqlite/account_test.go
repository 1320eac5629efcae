package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/repository"
)

func TestCreateAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.CreateAccount(ctx, repository.NewAccount{
		UserID:  "alice",
		Phone:   "+15550000001",
		Profile: &model.Profile{ProfileName: "Business", FullName: "Alice"},
		Invites: []string{"bob", "carol", "alice"},
	})
	require.NoError(t, err)

	p, err := db.GetProfile(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.FullName)

	id, err := db.LookupPhone(ctx, "+15550000001")
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	reqs, err := db.PendingRequests(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Edge{
		{UserID: "bob", ProfileN: 1},
		{UserID: "carol", ProfileN: 1},
	}, reqs.Sent)
}
