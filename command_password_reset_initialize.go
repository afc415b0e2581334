package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// PasswordResetRequestedMessage is returned whether or not the email exists
const PasswordResetRequestedMessage = "If the email exists you will receive a link to reset your password"

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"mario@example.com" doc:"Account email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "account.password_reset" }

type InitializePasswordResetResponse struct {
	Message string
}

type InitializePasswordResetHandler struct {
	*handlerBase
}

func NewInitializePasswordResetHandler(deps Dependencies) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{handlerBase: newHandlerBase(deps)}
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "password reset initialization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	token, err := RandomOpaqueToken()
	if err != nil {
		return err
	}

	expiresAt := h.now().Add(h.ttl(h.cfg.GetResetTTL(), DefaultResetTTL))

	var account *Account

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			// unknown emails get the same answer
			if repository.IsRecordNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		if err := h.repo.Accounts().SetResetTokenTx(ctx, tx, found.ID, token, expiresAt); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset token")
		}

		account = found
		return nil
	})

	if err != nil {
		return asCommandError(err, "failed to initialize password reset")
	}

	if account != nil {
		sent := h.notify("password_reset", account.Email, func() error {
			return h.notifier.SendPasswordReset(ctx, account.Email, account.DisplayName(), token)
		})

		h.record(ctx, ActivityEvent{
			EventType: ActivityEventPasswordResetRequested,
			Actor:     accountActor(account.ID.String()),
			AccountID: account.ID.String(),
			Metadata: map[string]any{
				"reset_sent": sent,
			},
		})
	} else {
		h.logger.Info("password reset requested for unknown email")
	}

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{
			Message: PasswordResetRequestedMessage,
		})
	}

	return nil
}
