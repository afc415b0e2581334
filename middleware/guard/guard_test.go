package guard_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts/middleware/guard"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type principal struct {
	id   string
	role string
}

func (p principal) GetID() string   { return p.id }
func (p principal) GetRole() string { return p.role }

type ctxKey struct{}

var errBadToken = errors.New("bad token")

func testResolver() guard.SessionResolver {
	return guard.SessionResolverFunc(func(_ context.Context, token string) (guard.Principal, error) {
		switch token {
		case "user-token":
			return principal{id: "u1", role: "user"}, nil
		case "admin-token":
			return principal{id: "a1", role: "admin"}, nil
		case "nil-token":
			return nil, nil
		default:
			return nil, errBadToken
		}
	})
}

func newServer() router.Server[*fiber.App] {
	return router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return fiber.New()
	})
}

func newApp(g *guard.Guard, routes []guard.Route) *fiber.App {
	srv := newServer()
	guard.Mount(srv.Router(), g, routes)
	return srv.WrappedRouter()
}

func whoami(g *guard.Guard) router.HandlerFunc {
	return func(c router.Context) error {
		p, ok := g.Principal(c)
		if !ok {
			return c.SendString("anonymous")
		}
		return c.SendString(p.GetID())
	}
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestNew_PanicsWithoutResolver(t *testing.T) {
	assert.Panics(t, func() {
		guard.New(guard.Config{})
	})
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := guard.GetDefaultConfig(guard.Config{Resolver: testResolver()})
	assert.Equal(t, "cookie:access_token,header:Authorization", cfg.TokenLookup)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Equal(t, "account", cfg.ContextKey)
	assert.NotNil(t, cfg.Unauthorized)
	assert.NotNil(t, cfg.Forbidden)
}

func TestGuard_Authenticate(t *testing.T) {
	g := guard.New(guard.Config{Resolver: testResolver()})
	app := newApp(g, []guard.Route{
		{Method: fiber.MethodGet, Path: "/private", Handler: whoami(g)},
		{Method: fiber.MethodGet, Path: "/public", Access: guard.Public, Handler: whoami(g)},
	})

	tests := []struct {
		name   string
		path   string
		setup  func(r *http.Request)
		status int
		body   string
	}{
		{
			name:   "bearer header",
			path:   "/private",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer user-token") },
			status: fiber.StatusOK,
			body:   "u1",
		},
		{
			name:   "scheme is case insensitive",
			path:   "/private",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "bearer admin-token") },
			status: fiber.StatusOK,
			body:   "a1",
		},
		{
			name:   "cookie",
			path:   "/private",
			setup:  func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: "user-token"}) },
			status: fiber.StatusOK,
			body:   "u1",
		},
		{
			name: "cookie wins over header",
			path: "/private",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "access_token", Value: "admin-token"})
				r.Header.Set("Authorization", "Bearer user-token")
			},
			status: fiber.StatusOK,
			body:   "a1",
		},
		{
			name:   "missing token",
			path:   "/private",
			setup:  func(r *http.Request) {},
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "wrong scheme",
			path:   "/private",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Basic user-token") },
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "resolver error",
			path:   "/private",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer forged") },
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "nil principal",
			path:   "/private",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer nil-token") },
			status: fiber.StatusUnauthorized,
		},
		{
			name:   "public route skips the guard",
			path:   "/public",
			setup:  func(r *http.Request) {},
			status: fiber.StatusOK,
			body:   "anonymous",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, tt.path, nil)
			tt.setup(req)

			status, body := do(t, app, req)
			assert.Equal(t, tt.status, status)
			if tt.body != "" {
				assert.Equal(t, tt.body, body)
			}
		})
	}
}

func TestGuard_RequireRoles(t *testing.T) {
	g := guard.New(guard.Config{Resolver: testResolver()})
	app := newApp(g, []guard.Route{
		{Method: fiber.MethodGet, Path: "/admin", Roles: []string{"ADMIN"}, Handler: whoami(g)},
		{Method: fiber.MethodGet, Path: "/any", Handler: whoami(g)},
	})

	req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	status, body := do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "a1", body)

	req = httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	status, _ = do(t, app, req)
	assert.Equal(t, fiber.StatusForbidden, status)

	req = httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	status, _ = do(t, app, req)
	assert.Equal(t, fiber.StatusUnauthorized, status, "authentication runs before the role check")

	req = httptest.NewRequest(fiber.MethodGet, "/any", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	status, _ = do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestGuard_RequireRolesWithoutAuthenticate(t *testing.T) {
	g := guard.New(guard.Config{Resolver: testResolver()})
	srv := newServer()
	srv.Router().Get("/", guard.Compose(func(c router.Context) error {
		return c.SendString("ok")
	}, g.RequireRoles("admin")))

	status, _ := do(t, srv.WrappedRouter(), httptest.NewRequest(fiber.MethodGet, "/", nil))
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestGuard_CustomHandlersAndEnricher(t *testing.T) {
	var unauthorizedErr error

	g := guard.New(guard.Config{
		Resolver:    testResolver(),
		TokenLookup: "query:token",
		ContextKey:  "who",
		ContextEnricher: func(ctx context.Context, p guard.Principal) context.Context {
			return context.WithValue(ctx, ctxKey{}, p.GetID())
		},
		Unauthorized: func(c router.Context, err error) error {
			unauthorizedErr = err
			return c.Status(fiber.StatusTeapot).SendString("nope")
		},
		Forbidden: func(c router.Context, err error) error {
			return c.Status(fiber.StatusPaymentRequired).SendString(err.Error())
		},
	})
	assert.Equal(t, "who", g.ContextKey())

	app := newApp(g, []guard.Route{
		{Method: fiber.MethodGet, Path: "/ctx", Handler: func(c router.Context) error {
			id, _ := c.Context().Value(ctxKey{}).(string)
			return c.SendString(id)
		}},
		{Method: fiber.MethodGet, Path: "/admin", Roles: []string{"admin"}, Handler: whoami(g)},
	})

	status, body := do(t, app, httptest.NewRequest(fiber.MethodGet, "/ctx?token=user-token", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "u1", body)

	status, body = do(t, app, httptest.NewRequest(fiber.MethodGet, "/ctx?token=forged", nil))
	assert.Equal(t, fiber.StatusTeapot, status)
	assert.Equal(t, "nope", body)
	assert.ErrorIs(t, unauthorizedErr, errBadToken)

	status, body = do(t, app, httptest.NewRequest(fiber.MethodGet, "/admin?token=user-token", nil))
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	assert.Equal(t, guard.ErrRoleNotAllowed.Error(), body)
}

func TestGuard_Chain(t *testing.T) {
	g := guard.New(guard.Config{Resolver: testResolver()})
	noop := func(next router.HandlerFunc) router.HandlerFunc { return next }

	assert.Len(t, g.Chain(guard.Route{Access: guard.Public}), 0)
	assert.Len(t, g.Chain(guard.Route{Access: guard.Public, Middleware: []router.MiddlewareFunc{noop}}), 1)
	assert.Len(t, g.Chain(guard.Route{}), 1)
	assert.Len(t, g.Chain(guard.Route{Roles: []string{"admin"}, Middleware: []router.MiddlewareFunc{noop}}), 3)
}

func TestCompose_RunsInOrder(t *testing.T) {
	var calls []string
	trace := func(name string) router.MiddlewareFunc {
		return func(next router.HandlerFunc) router.HandlerFunc {
			return func(c router.Context) error {
				calls = append(calls, name)
				return next(c)
			}
		}
	}

	srv := newServer()
	srv.Router().Get("/", guard.Compose(func(c router.Context) error {
		calls = append(calls, "handler")
		return c.SendString("ok")
	}, trace("first"), nil, trace("second")))

	status, _ := do(t, srv.WrappedRouter(), httptest.NewRequest(fiber.MethodGet, "/", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []string{"first", "second", "handler"}, calls)
}

func TestMount_RouteMiddlewareRunsAfterGuard(t *testing.T) {
	var seen string
	g := guard.New(guard.Config{Resolver: testResolver()})
	capture := func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if p, ok := g.Principal(c); ok {
				seen = p.GetID()
			}
			return next(c)
		}
	}

	app := newApp(g, []guard.Route{
		{Name: "things.list", Method: fiber.MethodGet, Path: "/things", Middleware: []router.MiddlewareFunc{capture}, Handler: whoami(g)},
		{Name: "things.delete", Method: fiber.MethodDelete, Path: "/things/:id", Roles: []string{"admin"}, Handler: whoami(g)},
	})

	req := httptest.NewRequest(fiber.MethodGet, "/things", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	status, _ := do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "u1", seen)

	req = httptest.NewRequest(fiber.MethodDelete, "/things/1", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	status, body := do(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "a1", body)
}

func TestMount_PanicsOnUnsupportedMethod(t *testing.T) {
	g := guard.New(guard.Config{Resolver: testResolver()})
	assert.Panics(t, func() {
		newApp(g, []guard.Route{{Method: "TRACE", Path: "/", Handler: whoami(g)}})
	})
}

func TestAccess_String(t *testing.T) {
	assert.Equal(t, "protected", guard.Protected.String())
	assert.Equal(t, "public", guard.Public.String())
}
