package accounts_test

import (
	"errors"
	"fmt"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTokenExpiredError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "session token expired", err: accounts.ErrTokenExpired, expected: true},
		{name: "opaque token expired", err: accounts.ErrExpiredToken, expected: true},
		{name: "message match", err: errors.New("token is expired"), expected: true},
		{name: "malformed", err: accounts.ErrTokenMalformed, expected: false},
		{name: "unrelated", err: errors.New("boom"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, accounts.IsTokenExpiredError(tt.err))
		})
	}
}

func TestIsMalformedError(t *testing.T) {
	assert.False(t, accounts.IsMalformedError(nil))
	assert.True(t, accounts.IsMalformedError(accounts.ErrTokenMalformed))
	assert.True(t, accounts.IsMalformedError(errors.New("missing or malformed JWT")))
	assert.False(t, accounts.IsMalformedError(accounts.ErrTokenExpired))
}

func TestAsRichError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, accounts.AsRichError(nil))
	})

	t.Run("rich errors pass through", func(t *testing.T) {
		rich := accounts.AsRichError(accounts.ErrConflictEmail)
		require.NotNil(t, rich)
		assert.Equal(t, goerrors.CategoryConflict, rich.Category)
		assert.Equal(t, accounts.TextCodeEmailTaken, rich.TextCode)
		assert.Equal(t, 409, rich.Code)
	})

	t.Run("wrapped rich errors are found", func(t *testing.T) {
		wrapped := fmt.Errorf("outer: %w", accounts.ErrInvalidToken)
		rich := accounts.AsRichError(wrapped)
		require.NotNil(t, rich)
		assert.Equal(t, accounts.TextCodeTokenInvalid, rich.TextCode)
	})

	t.Run("plain errors become internal", func(t *testing.T) {
		rich := accounts.AsRichError(errors.New("driver exploded"))
		require.NotNil(t, rich)
		assert.Equal(t, goerrors.CategoryInternal, rich.Category)
		assert.Equal(t, accounts.TextCodeInternalServerError, rich.TextCode)
		assert.Equal(t, 500, rich.Code)
	})
}

func TestErrorStatusCodes(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{accounts.ErrConflictEmail, 409},
		{accounts.ErrInvalidToken, 400},
		{accounts.ErrExpiredToken, 400},
		{accounts.ErrEmailNotVerified, 401},
		{accounts.ErrInvalidCredentials, 401},
		{accounts.ErrInvalidRefreshToken, 401},
		{accounts.ErrUnauthorized, 401},
		{accounts.ErrForbidden, 403},
		{accounts.ErrAccountNotFound, 404},
		{accounts.ErrRateLimited, 429},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, accounts.AsRichError(tt.err).Code)
		})
	}
}
