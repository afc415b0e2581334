package accounts

import (
	"context"

	"github.com/goliatone/go-accounts/middleware/guard"
	goerrors "github.com/goliatone/go-errors"
)

// AccountLookup loads the account a session token belongs to
type AccountLookup interface {
	GetAccount(ctx context.Context, accountID string) (*AccountView, error)
}

// SessionResolver verifies access tokens and loads their subject.
// It satisfies guard.SessionResolver.
type SessionResolver struct {
	tokens TokenService
	lookup AccountLookup
	logger Logger
}

// NewSessionResolver returns a resolver backed by tokens and lookup
func NewSessionResolver(tokens TokenService, lookup AccountLookup, logger Logger) *SessionResolver {
	if logger == nil {
		logger = defLogger{}
	}
	return &SessionResolver{
		tokens: tokens,
		lookup: lookup,
		logger: logger,
	}
}

// Resolve rejects refresh tokens and tokens whose subject no longer exists
func (r *SessionResolver) Resolve(ctx context.Context, token string) (guard.Principal, error) {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	if !claims.IsAccess() {
		return nil, ErrTokenMalformed
	}

	account, err := r.lookup.GetAccount(ctx, claims.UserID())
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			r.logger.Info("session subject not found", "account_id", claims.UserID())
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	return account, nil
}
