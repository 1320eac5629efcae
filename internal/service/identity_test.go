package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/model"
)

func newUser(id, email string) model.NewUser {
	return model.NewUser{TagferID: id, Email: email, Password: "hunter22"}
}

func TestCreateUser_NormalizesIDAndEmail(t *testing.T) {
	e := newTestEnv(t)

	u, err := e.identity.CreateUser(context.Background(), newUser(" Alice ", "Alice@Example.COM"))
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "hunter22", u.PasswordHash)
}

func TestCreateUser_Validation(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name     string
		in       model.NewUser
		wantCode apperror.Code
	}{
		{"missing id", newUser("", "a@example.com"), apperror.CodeMissingBodyAttributes},
		{"bad email", newUser("a", "not-an-email"), apperror.CodeInvalidEmail},
		{"named email", newUser("a", "Alice <a@example.com>"), apperror.CodeInvalidEmail},
		{"missing password", model.NewUser{TagferID: "a", Email: "a@example.com"}, apperror.CodeMissingBodyAttributes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.identity.CreateUser(context.Background(), tt.in)
			assert.Equal(t, tt.wantCode, apperror.CodeOf(err))
		})
	}
}

func TestCreateUser_Duplicates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.identity.CreateUser(ctx, newUser("alice", "alice@example.com"))
	require.NoError(t, err)

	_, err = e.identity.CreateUser(ctx, newUser("ALICE", "other@example.com"))
	assert.Equal(t, apperror.CodeUIDAlreadyExists, apperror.CodeOf(err))

	_, err = e.identity.CreateUser(ctx, newUser("bob", "alice@example.com"))
	assert.Equal(t, apperror.CodeEmailAlreadyExists, apperror.CodeOf(err))
}

func TestExists(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	nu := newUser("alice", "alice@example.com")
	nu.PhoneNumber = testPhone
	_, err := e.identity.CreateUser(ctx, nu)
	require.NoError(t, err)

	ok, err := e.identity.EmailExists(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.identity.EmailExists(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.identity.TagferIDExists(ctx, "Alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.identity.PhoneExists(ctx, testPhone)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.identity.EmailExists(ctx, "nope")
	assert.Equal(t, apperror.CodeInvalidEmail, apperror.CodeOf(err))
}

func TestSignIn(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, err := e.identity.CreateUser(ctx, newUser("alice", "alice@example.com"))
	require.NoError(t, err)

	u, err := e.identity.SignInWithEmail(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)

	u, err = e.identity.SignInWithTagferID(ctx, "ALICE", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)

	_, err = e.identity.SignInWithEmail(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, apperror.WrongPassword)

	_, err = e.identity.SignInWithTagferID(ctx, "bob", "hunter22")
	assert.ErrorIs(t, err, apperror.UserNotFound)
}

func TestSetPassword(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, err := e.identity.CreateUser(ctx, newUser("alice", "alice@example.com"))
	require.NoError(t, err)

	require.NoError(t, e.identity.SetPassword(ctx, "alice", "new-password"))

	_, err = e.identity.SignInWithTagferID(ctx, "alice", "new-password")
	assert.NoError(t, err)

	err = e.identity.SetPassword(ctx, "alice", "")
	assert.Equal(t, apperror.CodeMissingBodyAttributes, apperror.CodeOf(err))
}
