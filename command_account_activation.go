package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type VerifyEmailMessage struct {
	Token string `json:"token" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08" doc:"Verification token"`
}

func (e VerifyEmailMessage) Type() string { return "account.verify_email" }

type ActivateAccountMessage struct {
	Token    string `json:"token" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08" doc:"Invitation token"`
	Password string `json:"password" example:"some_secret_word" doc:"Password"`
}

func (e ActivateAccountMessage) Type() string { return "account.activate" }

// VerifyEmailHandler consumes a verification token, marking the
// account verified without touching its password
type VerifyEmailHandler struct {
	*handlerBase
}

func NewVerifyEmailHandler(deps Dependencies) *VerifyEmailHandler {
	return &VerifyEmailHandler{handlerBase: newHandlerBase(deps)}
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "email verification")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	account, err := h.consumeVerification(ctx, event.Token, "")
	if err != nil {
		return asCommandError(err, "email verification failed")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor:     accountActor(account.ID.String()),
		AccountID: account.ID.String(),
	})

	return nil
}

// ActivateAccountHandler consumes an invitation token, setting the
// password and marking the account verified in one step
type ActivateAccountHandler struct {
	*handlerBase
}

func NewActivateAccountHandler(deps Dependencies) *ActivateAccountHandler {
	return &ActivateAccountHandler{handlerBase: newHandlerBase(deps)}
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "account activation")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	hash, err := h.hashPassword(event.Password)
	if err != nil {
		return err
	}

	account, err := h.consumeVerification(ctx, event.Token, hash)
	if err != nil {
		return asCommandError(err, "account activation failed")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventActivated,
		Actor:     accountActor(account.ID.String()),
		AccountID: account.ID.String(),
	})

	return nil
}

func (b *handlerBase) consumeVerification(ctx context.Context, token, passwordHash string) (*Account, error) {
	var account *Account

	err := b.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = b.repo.Accounts().GetByVerificationTokenTx(ctx, tx, token)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve verification token")
		}

		if isExpired(account.VerificationExpiresAt, b.now()) {
			return ErrExpiredToken
		}

		consumed, err := b.repo.Accounts().ConsumeVerificationTokenTx(ctx, tx, account.ID, token, passwordHash)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification token")
		}

		// a concurrent request cleared it first
		if !consumed {
			return ErrInvalidToken
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return account, nil
}
