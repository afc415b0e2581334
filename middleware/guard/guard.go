package guard

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup = "cookie:access_token,header:" + router.HeaderAuthorization

	// ErrMissingOrMalformed is returned when no extractor yields a token
	ErrMissingOrMalformed = errors.New("missing or malformed session token")
	// ErrRoleNotAllowed is returned when the principal role is not in the route set
	ErrRoleNotAllowed = errors.New("role not allowed")
)

// Principal is the authenticated account as seen by the guard
type Principal interface {
	GetID() string
	GetRole() string
}

// SessionResolver verifies an access token and resolves its subject
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}

// SessionResolverFunc adapts a function to SessionResolver
type SessionResolverFunc func(ctx context.Context, token string) (Principal, error)

func (f SessionResolverFunc) Resolve(ctx context.Context, token string) (Principal, error) {
	return f(ctx, token)
}

type Config struct {
	Resolver SessionResolver
	// TokenLookup is an ordered, comma separated list of source:name
	// pairs. Sources are header, cookie, query and param.
	TokenLookup string
	AuthScheme  string
	// ContextKey is the router.Context locals key holding the Principal
	ContextKey string
	// ContextEnricher propagates the principal to the request context.Context
	ContextEnricher func(ctx context.Context, p Principal) context.Context
	// Unauthorized handles extraction and resolution failures
	Unauthorized router.ErrorHandler
	// Forbidden handles role check failures
	Forbidden router.ErrorHandler
}

// Guard authenticates requests and enforces route roles
type Guard struct {
	cfg        Config
	extractors []Extractor
}

// New returns a Guard. It panics without a Resolver.
func New(config ...Config) *Guard {
	cfg := GetDefaultConfig(config...)
	return &Guard{
		cfg:        cfg,
		extractors: Extractors(cfg.TokenLookup, cfg.AuthScheme),
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Resolver == nil {
		panic("GUARD: configuration: Resolver is required.")
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "account"
	}

	if cfg.Unauthorized == nil {
		cfg.Unauthorized = func(c router.Context, err error) error {
			return c.JSON(router.StatusUnauthorized, map[string]string{
				"error": "authentication required",
			})
		}
	}

	if cfg.Forbidden == nil {
		cfg.Forbidden = func(c router.Context, err error) error {
			return c.JSON(router.StatusForbidden, map[string]string{
				"error": "insufficient permissions",
			})
		}
	}

	return cfg
}

// ContextKey returns the locals key used to store the principal
func (g *Guard) ContextKey() string {
	return g.cfg.ContextKey
}

// Authenticate resolves the session of the request. Any failure goes to
// the Unauthorized handler.
func (g *Guard) Authenticate() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			raw, err := ExtractRawToken(ctx, g.extractors)
			if err != nil {
				return g.cfg.Unauthorized(ctx, err)
			}

			principal, err := g.cfg.Resolver.Resolve(ctx.Context(), raw)
			if err != nil {
				return g.cfg.Unauthorized(ctx, err)
			}

			if principal == nil {
				return g.cfg.Unauthorized(ctx, ErrMissingOrMalformed)
			}

			ctx.Locals(g.cfg.ContextKey, principal)

			if g.cfg.ContextEnricher != nil {
				ctx.SetContext(g.cfg.ContextEnricher(ctx.Context(), principal))
			}

			return next(ctx)
		}
	}
}

// RequireRoles rejects principals whose role is not in roles. It must run
// after Authenticate. An empty set allows every authenticated principal.
func (g *Guard) RequireRoles(roles ...string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			principal, ok := g.Principal(ctx)
			if !ok {
				return g.cfg.Unauthorized(ctx, ErrMissingOrMalformed)
			}

			if !roleAllowed(principal.GetRole(), roles) {
				return g.cfg.Forbidden(ctx, ErrRoleNotAllowed)
			}

			return next(ctx)
		}
	}
}

// Principal returns the principal stored by Authenticate
func (g *Guard) Principal(ctx router.Context) (Principal, bool) {
	p, ok := ctx.Locals(g.cfg.ContextKey).(Principal)
	return p, ok && p != nil
}

func roleAllowed(role string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, role) {
			return true
		}
	}
	return false
}
