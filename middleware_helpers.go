package accounts

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts/middleware/guard"
	"github.com/goliatone/go-accounts/middleware/requestid"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// NewSessionGuard builds the guard used by the route table. Failures are
// rendered as JSON errors.
func NewSessionGuard(resolver guard.SessionResolver, logger Logger) *guard.Guard {
	if logger == nil {
		logger = defLogger{}
	}

	return guard.New(guard.Config{
		Resolver:        resolver,
		TokenLookup:     DefaultTokenLookup,
		AuthScheme:      "Bearer",
		ContextKey:      DefaultContextKey,
		ContextEnricher: ContextEnricherAdapter,
		Unauthorized: func(c router.Context, err error) error {
			logger.Debug("session rejected", "path", c.Path(), "error", err)
			return WriteError(c, logger, sessionError(err))
		},
		Forbidden: func(c router.Context, err error) error {
			logger.Info("role rejected", "path", c.Path(), "error", err)
			return WriteError(c, logger, ErrForbidden)
		},
	})
}

// sessionError maps a guard failure to the error rendered to the client
func sessionError(err error) error {
	switch {
	case goerrors.Is(err, guard.ErrMissingOrMalformed):
		return ErrUnableToFindSession
	case IsTokenExpiredError(err):
		return ErrTokenExpired
	case IsMalformedError(err):
		return ErrTokenMalformed
	default:
		return ErrUnauthorized
	}
}

// ContextEnricherAdapter stores the resolved account in the request context
func ContextEnricherAdapter(ctx context.Context, p guard.Principal) context.Context {
	account, ok := p.(*AccountView)
	if !ok {
		return ctx
	}
	return WithAccountContext(ctx, account)
}

// RateLimitReached renders ErrRateLimited
func RateLimitReached(logger Logger) router.HandlerFunc {
	return func(c router.Context) error {
		logger.Warn("rate limit reached", "ip", c.IP(), "path", c.Path())
		return WriteError(c, logger, ErrRateLimited)
	}
}

// RequestLogger logs method, path, status and latency of every request
func RequestLogger(logger Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		logger.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start).String(),
			"request_id", requestid.FromCtx(c),
		)

		return err
	}
}
