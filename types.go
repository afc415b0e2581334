package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the logging contract used across the package. Args are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Notifier delivers the out-of-band messages of the credential lifecycle.
// Implementations are fire and forget, a failure never rolls back the
// operation that triggered it.
type Notifier interface {
	SendVerification(ctx context.Context, email, name, token string) error
	SendPasswordReset(ctx context.Context, email, name, token string) error
	SendInvitation(ctx context.Context, email, name, token string) error
}

// Config holds the options the lifecycle and the HTTP layer need
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetVerificationTTL() time.Duration
	GetResetTTL() time.Duration
	GetInvitationTTL() time.Duration
	GetBcryptCost() int
	GetUseHashid() bool
	GetCookieSecure() bool
}

// PasswordHasher hashes and compares account secrets
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print(line("[ERR] ACCOUNTS ", msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print(line("[WRN] ACCOUNTS ", msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print(line("[INF] ACCOUNTS ", msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print(line("[DBG] ACCOUNTS ", msg, args))
}

func line(prefix, msg string, args []any) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	b.WriteString("\n")
	return b.String()
}

// DefaultLogger returns the printf logger used when none is configured
func DefaultLogger() Logger {
	return defLogger{}
}
