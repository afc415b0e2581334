package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ResendVerificationMessage struct {
	Email string `json:"email" example:"mario@example.com" doc:"Account email"`
}

func (e ResendVerificationMessage) Type() string { return "account.resend_verification" }

// ResendVerificationHandler issues a fresh verification token, replacing
// any earlier one
type ResendVerificationHandler struct {
	*handlerBase
}

func NewResendVerificationHandler(deps Dependencies) *ResendVerificationHandler {
	return &ResendVerificationHandler{handlerBase: newHandlerBase(deps)}
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "verification resend")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	token, err := RandomOpaqueToken()
	if err != nil {
		return err
	}

	expiresAt := h.now().Add(h.ttl(h.cfg.GetVerificationTTL(), DefaultVerificationTTL))

	var account *Account

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err = h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
		}

		if account.EmailVerified {
			return ErrAlreadyVerified
		}

		if err := h.repo.Accounts().SetVerificationTokenTx(ctx, tx, account.ID, token, expiresAt); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification token")
		}

		return nil
	})

	if err != nil {
		return asCommandError(err, "verification resend transaction failed")
	}

	sent := h.notify("verification", account.Email, func() error {
		return h.notifier.SendVerification(ctx, account.Email, account.DisplayName(), token)
	})

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventVerificationResent,
		Actor:     accountActor(account.ID.String()),
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"verification_sent": sent,
		},
	})

	return nil
}
