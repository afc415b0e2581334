package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type InviteAccountMessage struct {
	Name       string `json:"name" example:"Luigi Verdi" doc:"Display name"`
	Email      string `json:"email" example:"luigi@example.com" doc:"Account email"`
	Role       Role   `json:"role" example:"user" doc:"Role assigned to the invited account"`
	InvitedBy  string `json:"-"`
	OnResponse func(resp *AccountCreatedResponse)
}

func (e InviteAccountMessage) Type() string { return "account.invite" }

type InviteAccountHandler struct {
	*handlerBase
}

func NewInviteAccountHandler(deps Dependencies) *InviteAccountHandler {
	return &InviteAccountHandler{handlerBase: newHandlerBase(deps)}
}

func (h *InviteAccountHandler) Execute(ctx context.Context, event InviteAccountMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "account invitation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InviteAccountHandler) execute(ctx context.Context, event InviteAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	role := event.Role
	if role == "" {
		role = RoleUser
	}

	if !role.IsValid() {
		return goerrors.New("unknown role", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidationFailed).
			WithMetadata(map[string]any{"role": role})
	}

	// nobody knows the cleartext, activation replaces it
	hash, err := RandomPasswordHash(h.hasher)
	if err != nil {
		return asCommandError(err, "failed to generate placeholder password")
	}

	token, err := RandomOpaqueToken()
	if err != nil {
		return err
	}

	expiresAt := h.now().Add(h.ttl(h.cfg.GetInvitationTTL(), DefaultInvitationTTL))

	account := &Account{
		Email:                 NormalizeEmail(event.Email),
		PasswordHash:          hash,
		Role:                  role,
		VerificationToken:     stringPtr(token),
		VerificationExpiresAt: timePtr(expiresAt),
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err = h.createAccountTx(ctx, tx, account, event.Name)
		return err
	})

	if err != nil {
		return asCommandError(err, "account invitation transaction failed")
	}

	name := displayName(event.Name, account.Email)
	sent := h.notify("invitation", account.Email, func() error {
		return h.notifier.SendInvitation(ctx, account.Email, name, token)
	})

	actor := systemActor
	if event.InvitedBy != "" {
		actor = accountActor(event.InvitedBy)
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventInvited,
		Actor:     actor,
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"role":            string(role),
			"invitation_sent": sent,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&AccountCreatedResponse{
			Account:          account.View(),
			NotificationSent: sent,
		})
	}

	return nil
}
