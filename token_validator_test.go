package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionResolver(t *testing.T) {
	f := setupLifecycle(t)
	ctx := context.Background()

	view := f.registerVerified(t, "Mario", "mario@example.com", testPassword)

	account, err := f.lifecycle.Authenticate(ctx, "mario@example.com", testPassword)
	require.NoError(t, err)

	result, err := f.lifecycle.Login(ctx, account, true)
	require.NoError(t, err)

	resolver := accounts.NewSessionResolver(f.lifecycle.Tokens(), f.lifecycle, testLogger{})

	t.Run("access token", func(t *testing.T) {
		principal, err := resolver.Resolve(ctx, result.AccessToken)
		require.NoError(t, err)

		resolved, ok := principal.(*accounts.AccountView)
		require.True(t, ok)
		assert.Equal(t, view.ID, resolved.ID)
		assert.Equal(t, "user", resolved.GetRole())
	})

	t.Run("refresh token is not a session", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, result.RefreshToken)
		assert.ErrorIs(t, err, accounts.ErrTokenMalformed)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "not-a-jwt")
		assert.Error(t, err)
	})

	t.Run("deleted subject", func(t *testing.T) {
		require.NoError(t, f.lifecycle.DeleteAccount(ctx, view.ID, ""))

		_, err := resolver.Resolve(ctx, result.AccessToken)
		assert.ErrorIs(t, err, accounts.ErrUnauthorized)
	})
}

func TestSessionResolver_UnknownSubject(t *testing.T) {
	f := setupLifecycle(t)

	token, _, err := f.lifecycle.Tokens().MintAccess(&accounts.Account{
		ID:    uuid.New(),
		Email: "ghost@example.com",
		Role:  accounts.RoleUser,
	})
	require.NoError(t, err)

	resolver := accounts.NewSessionResolver(f.lifecycle.Tokens(), f.lifecycle, nil)

	_, err = resolver.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, accounts.ErrUnauthorized)
}
