package accounts

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterAccountMessage struct {
	Name       string `json:"name" example:"Mario Rossi" doc:"Display name"`
	Email      string `json:"email" example:"mario@example.com" doc:"Account email"`
	Password   string `json:"password" example:"some_secret_word" doc:"Password"`
	OnResponse func(resp *AccountCreatedResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// AccountCreatedResponse is handed to OnResponse by register and invite
type AccountCreatedResponse struct {
	Account          *AccountView
	NotificationSent bool
}

type RegisterAccountHandler struct {
	*handlerBase
}

func NewRegisterAccountHandler(deps Dependencies) *RegisterAccountHandler {
	return &RegisterAccountHandler{handlerBase: newHandlerBase(deps)}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "account registration")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	hash, err := h.hashPassword(event.Password)
	if err != nil {
		return err
	}

	token, err := RandomOpaqueToken()
	if err != nil {
		return err
	}

	expiresAt := h.now().Add(h.ttl(h.cfg.GetVerificationTTL(), DefaultVerificationTTL))

	account := &Account{
		Email:                 NormalizeEmail(event.Email),
		PasswordHash:          hash,
		Role:                  RoleUser,
		VerificationToken:     stringPtr(token),
		VerificationExpiresAt: timePtr(expiresAt),
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err = h.createAccountTx(ctx, tx, account, event.Name)
		return err
	})

	if err != nil {
		return asCommandError(err, "account registration transaction failed")
	}

	name := displayName(event.Name, account.Email)
	sent := h.notify("verification", account.Email, func() error {
		return h.notifier.SendVerification(ctx, account.Email, name, token)
	})

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventRegistered,
		Actor:     accountActor(account.ID.String()),
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"verification_sent": sent,
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

// createAccountTx inserts account and its profile, rejecting a taken email
func (b *handlerBase) createAccountTx(ctx context.Context, tx bun.IDB, account *Account, name string) (*Account, error) {
	if _, err := b.repo.Accounts().GetByEmailTx(ctx, tx, account.Email); err == nil {
		return nil, ErrConflictEmail
	} else if !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
	}

	if b.cfg.GetUseHashid() {
		if id, err := hashid.NewUUID(account.Email); err == nil {
			account.ID = id
		}
	}

	now := b.now()
	account.CreatedAt = timePtr(now)
	account.UpdatedAt = timePtr(now)

	created, err := b.repo.Accounts().CreateTx(ctx, tx, account)
	if err != nil {
		if goerrors.Is(err, ErrConflictEmail) {
			return nil, ErrConflictEmail
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account")
	}

	if name = strings.TrimSpace(name); name != "" {
		profile, err := b.repo.Profiles().UpsertForAccountTx(ctx, tx, created.ID, ProfileUpdate{Name: &name})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account profile")
		}
		created.Profile = profile
	}

	return created, nil
}

func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return localPart(email)
}
