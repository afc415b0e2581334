package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

var accountCtxKey = &contextKey{"account"}

type contextKey struct {
	name string
}

// WithAccountContext sets the AccountView in the given context
func WithAccountContext(ctx context.Context, account *AccountView) context.Context {
	return context.WithValue(ctx, accountCtxKey, account)
}

// AccountFromContext finds the account from the context.
func AccountFromContext(ctx context.Context) (*AccountView, bool) {
	raw, ok := ctx.Value(accountCtxKey).(*AccountView)
	return raw, ok && raw != nil
}

// CurrentAccount returns the account the session guard stored under key.
// An empty key uses the guard default.
func CurrentAccount(ctx router.Context, key ...string) (*AccountView, bool) {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}

	raw := ctx.Locals(k)
	if raw == nil {
		return AccountFromContext(ctx.Context())
	}

	account, ok := raw.(*AccountView)
	return account, ok && account != nil
}
