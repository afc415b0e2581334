package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// commandTimeout bounds every lifecycle transaction
const commandTimeout = time.Second * 10

// handlerBase carries the collaborators shared by the lifecycle commands
type handlerBase struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	notifier Notifier
	activity ActivitySink
	logger   Logger
	cfg      Config
	now      func() time.Time
}

func newHandlerBase(deps Dependencies) *handlerBase {
	b := &handlerBase{
		repo:     deps.Repo,
		hasher:   deps.Hasher,
		notifier: deps.Notifier,
		activity: normalizeActivitySink(deps.Activity),
		logger:   deps.Logger,
		cfg:      deps.Config,
		now:      deps.Clock,
	}

	if b.hasher == nil {
		b.hasher = NewBcryptHasher(b.cfg.GetBcryptCost())
	}

	if b.notifier == nil {
		b.notifier = noopNotifier{}
	}

	if b.logger == nil {
		b.logger = defLogger{}
	}

	if b.now == nil {
		b.now = time.Now
	}

	return b
}

func (b *handlerBase) ttl(d, def time.Duration) time.Duration {
	return durationOr(d, def)
}

func (b *handlerBase) hashPassword(password string) (string, error) {
	hash, err := b.hasher.HashPassword(password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return "", richErr
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return hash, nil
}

func (b *handlerBase) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = b.now()
	}

	if err := b.activity.Record(ctx, event); err != nil {
		b.logger.Warn("activity sink error", "event", event.EventType, "error", err)
	}
}

// notify runs send after the triggering transaction committed. A failure is
// logged and reported as false, never returned.
func (b *handlerBase) notify(kind, email string, send func() error) bool {
	if err := send(); err != nil {
		b.logger.Error("notification delivery failed", "kind", kind, "email", email, "error", err)
		return false
	}
	return true
}

func cancelled(ctx context.Context, operation string) error {
	return goerrors.Wrap(
		ctx.Err(),
		goerrors.CategoryOperation,
		"context cancelled during "+operation,
	)
}

func asCommandError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeInternalServerError)
}

// isExpired treats an expiry strictly before now as expired
func isExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && expiresAt.Before(now)
}

type noopNotifier struct{}

func (noopNotifier) SendVerification(context.Context, string, string, string) error  { return nil }
func (noopNotifier) SendPasswordReset(context.Context, string, string, string) error { return nil }
func (noopNotifier) SendInvitation(context.Context, string, string, string) error    { return nil }
