package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08" doc:"Reset password token"`
	Password string `json:"password" example:"some_secret_word" doc:"Password"`
}

func (e FinalizePasswordResetMessage) Type() string { return "account.password_reset.finalize" }

type FinalizePasswordResetHandler struct {
	*handlerBase
}

func NewFinalizePasswordResetHandler(deps Dependencies) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{handlerBase: newHandlerBase(deps)}
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "password reset finalization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	passwordHash, err := h.hashPassword(event.Password)
	if err != nil {
		return err
	}

	var account *Account

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err = h.repo.Accounts().GetByResetTokenTx(ctx, tx, event.Token)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve password reset token")
		}

		if isExpired(account.ResetExpiresAt, h.now()) {
			return ErrExpiredToken
		}

		consumed, err := h.repo.Accounts().ConsumeResetTokenTx(ctx, tx, account.ID, event.Token, passwordHash)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account password")
		}

		// lost the race against another reset with the same token
		if !consumed {
			return ErrInvalidToken
		}

		return nil
	})

	if err != nil {
		return asCommandError(err, "failed to finalize password reset")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     accountActor(account.ID.String()),
		AccountID: account.ID.String(),
	})

	return nil
}
