package accounts

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts/middleware/guard"
	"github.com/goliatone/go-accounts/middleware/ratelimit"
	"github.com/goliatone/go-accounts/middleware/requestid"
	"github.com/goliatone/go-router"
)

// RouterConfig holds what RegisterRoutes needs beyond the controller
type RouterConfig struct {
	Controller *AccountController
	Resolver   guard.SessionResolver
	RateLimit  ratelimit.Config
	// Metrics serves GET /metrics when set. It runs on the fiber app
	// underneath the router.
	Metrics fiber.Handler
	// HealthCheck is run by GET /healthz when set
	HealthCheck func(ctx context.Context) error
	Logger      Logger
}

// Routes returns the route table of the API. limit guards the public
// credential endpoints.
func Routes(ctrl *AccountController, limit router.MiddlewareFunc) []guard.Route {
	limited := []router.MiddlewareFunc{limit}
	admin := []string{RoleAdmin.String()}

	return []guard.Route{
		{Name: "auth.register", Method: http.MethodPost, Path: "/auth/register", Access: guard.Public, Middleware: limited, Handler: ctrl.Register},
		{Name: "auth.login", Method: http.MethodPost, Path: "/auth/login", Access: guard.Public, Middleware: limited, Handler: ctrl.Login},
		{Name: "auth.verify-email", Method: http.MethodPost, Path: "/auth/verify-email", Access: guard.Public, Handler: ctrl.VerifyEmail},
		{Name: "auth.activate-account", Method: http.MethodPost, Path: "/auth/activate-account", Access: guard.Public, Handler: ctrl.ActivateAccount},
		{Name: "auth.forgot-password", Method: http.MethodPost, Path: "/auth/forgot-password", Access: guard.Public, Middleware: limited, Handler: ctrl.ForgotPassword},
		{Name: "auth.reset-password", Method: http.MethodPost, Path: "/auth/reset-password", Access: guard.Public, Middleware: limited, Handler: ctrl.ResetPassword},
		{Name: "auth.refresh", Method: http.MethodPost, Path: "/auth/refresh", Access: guard.Public, Handler: ctrl.Refresh},
		{Name: "auth.resend-verification", Method: http.MethodPost, Path: "/auth/resend-verification", Access: guard.Public, Middleware: limited, Handler: ctrl.ResendVerification},

		{Name: "auth.logout", Method: http.MethodPost, Path: "/auth/logout", Handler: ctrl.Logout},
		{Name: "auth.me", Method: http.MethodGet, Path: "/auth/me", Handler: ctrl.Me},
		{Name: "auth.profile", Method: http.MethodPut, Path: "/auth/profile", Handler: ctrl.UpdateProfile},

		{Name: "users.list", Method: http.MethodGet, Path: "/users", Roles: admin, Handler: ctrl.ListAccounts},
		{Name: "users.invite", Method: http.MethodPost, Path: "/users/invite", Roles: admin, Handler: ctrl.Invite},
		{Name: "users.get", Method: http.MethodGet, Path: "/users/:id", Roles: admin, Handler: ctrl.GetAccount},
		{Name: "users.profile", Method: http.MethodPut, Path: "/users/:id/profile", Roles: admin, Handler: ctrl.UpdateAccountProfile},
		{Name: "users.delete", Method: http.MethodDelete, Path: "/users/:id", Roles: admin, Handler: ctrl.DeleteAccount},
	}
}

// RegisterRoutes mounts the API under /api on r, plus /healthz. It
// returns the session guard protecting the table.
func RegisterRoutes[T any](r router.Router[T], cfg RouterConfig) *guard.Guard {
	if cfg.Controller == nil {
		panic("Missing AccountController in router config...")
	}

	logger := routerLogger(cfg)

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewSessionResolver(cfg.Controller.Lifecycle.Tokens(), cfg.Controller.Lifecycle, logger)
	}

	g := NewSessionGuard(resolver, logger)

	if cfg.RateLimit.LimitReached == nil {
		cfg.RateLimit.LimitReached = RateLimitReached(logger)
	}
	limit := ratelimit.New(cfg.RateLimit)

	r.Get("/healthz", func(c router.Context) error {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(c.Context()); err != nil {
				logger.Error("health check failed", "error", err)
				return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			}
		}
		return c.JSON(router.StatusOK, map[string]any{"status": "ok"})
	}).SetName("healthz")

	api := r.Group("/api")
	guard.Mount(api, g, Routes(cfg.Controller, limit))

	return g
}

// NewServer builds the fiber backed server for the API. Request ids,
// request logging and /metrics run at the fiber level ahead of every
// route.
func NewServer(cfg RouterConfig, fiberConfig ...fiber.Config) (router.Server[*fiber.App], *guard.Guard) {
	logger := routerLogger(cfg)

	fcfg := fiber.Config{
		UnescapePath:          true,
		StrictRouting:         false,
		DisableStartupMessage: true,
	}
	if len(fiberConfig) > 0 {
		fcfg = fiberConfig[0]
	}

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app := router.DefaultFiberOptions(fiber.New(fcfg))
		app.Use(requestid.New(), RequestLogger(logger))
		if cfg.Metrics != nil {
			app.Get("/metrics", cfg.Metrics).Name("metrics")
		}
		return app
	})

	g := RegisterRoutes(srv.Router(), cfg)

	return srv, g
}

func routerLogger(cfg RouterConfig) Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	if cfg.Controller != nil && cfg.Controller.Logger != nil {
		return cfg.Controller.Logger
	}
	return defLogger{}
}
