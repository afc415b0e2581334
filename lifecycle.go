package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Dependencies wires a Lifecycle. Repo and Config are required.
type Dependencies struct {
	Repo     RepositoryManager
	Config   Config
	Tokens   TokenService
	Hasher   PasswordHasher
	Notifier Notifier
	Activity ActivitySink
	Logger   Logger
	Clock    func() time.Time
}

// LoginResult holds the session assertions minted by Login
type LoginResult struct {
	Account          *AccountView
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshResult holds the access token minted by Refresh
type RefreshResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
}

// Lifecycle orchestrates the credential lifecycle of accounts
type Lifecycle struct {
	*handlerBase
	tokens TokenService

	register      *RegisterAccountHandler
	invite        *InviteAccountHandler
	verify        *VerifyEmailHandler
	activate      *ActivateAccountHandler
	resend        *ResendVerificationHandler
	resetInit     *InitializePasswordResetHandler
	resetFinalize *FinalizePasswordResetHandler
}

// NewLifecycle validates deps and builds the command handlers
func NewLifecycle(deps Dependencies) (*Lifecycle, error) {
	if deps.Repo == nil {
		return nil, goerrors.New("lifecycle requires a repository manager", goerrors.CategoryInternal)
	}

	if err := deps.Repo.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "invalid repository manager")
	}

	if deps.Config == nil {
		return nil, goerrors.New("lifecycle requires a config", goerrors.CategoryInternal)
	}

	if deps.Config.GetSigningKey() == "" {
		return nil, goerrors.New("signing key must not be empty", goerrors.CategoryValidation)
	}

	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	if deps.Logger == nil {
		deps.Logger = defLogger{}
	}

	if deps.Hasher == nil {
		deps.Hasher = NewBcryptHasher(deps.Config.GetBcryptCost())
	}

	if deps.Tokens == nil {
		deps.Tokens = NewTokenService(deps.Config, WithTokenClock(deps.Clock), WithTokenLogger(deps.Logger))
	}

	return &Lifecycle{
		handlerBase:   newHandlerBase(deps),
		tokens:        deps.Tokens,
		register:      NewRegisterAccountHandler(deps),
		invite:        NewInviteAccountHandler(deps),
		verify:        NewVerifyEmailHandler(deps),
		activate:      NewActivateAccountHandler(deps),
		resend:        NewResendVerificationHandler(deps),
		resetInit:     NewInitializePasswordResetHandler(deps),
		resetFinalize: NewFinalizePasswordResetHandler(deps),
	}, nil
}

// Tokens returns the TokenService used to mint session assertions
func (l *Lifecycle) Tokens() TokenService {
	return l.tokens
}

// Register creates an unverified account and sends its verification token
func (l *Lifecycle) Register(ctx context.Context, name, email, password string) (*AccountCreatedResponse, error) {
	var resp *AccountCreatedResponse
	err := l.register.Execute(ctx, RegisterAccountMessage{
		Name:     name,
		Email:    email,
		Password: password,
		OnResponse: func(r *AccountCreatedResponse) {
			resp = r
		},
	})
	return resp, err
}

// Invite creates an account with an unusable password and the given role
func (l *Lifecycle) Invite(ctx context.Context, name, email string, role Role, invitedBy string) (*AccountCreatedResponse, error) {
	var resp *AccountCreatedResponse
	err := l.invite.Execute(ctx, InviteAccountMessage{
		Name:      name,
		Email:     email,
		Role:      role,
		InvitedBy: invitedBy,
		OnResponse: func(r *AccountCreatedResponse) {
			resp = r
		},
	})
	return resp, err
}

func (l *Lifecycle) ActivateAccount(ctx context.Context, token, password string) error {
	return l.activate.Execute(ctx, ActivateAccountMessage{Token: token, Password: password})
}

func (l *Lifecycle) VerifyEmail(ctx context.Context, token string) error {
	return l.verify.Execute(ctx, VerifyEmailMessage{Token: token})
}

func (l *Lifecycle) ResendVerification(ctx context.Context, email string) error {
	return l.resend.Execute(ctx, ResendVerificationMessage{Email: email})
}

// ForgotPassword returns the same message for known and unknown emails
func (l *Lifecycle) ForgotPassword(ctx context.Context, email string) (string, error) {
	message := PasswordResetRequestedMessage
	err := l.resetInit.Execute(ctx, InitializePasswordResetMessage{
		Email: email,
		OnResponse: func(r *InitializePasswordResetResponse) {
			message = r.Message
		},
	})
	if err != nil {
		return "", err
	}
	return message, nil
}

func (l *Lifecycle) ResetPassword(ctx context.Context, token, password string) error {
	return l.resetFinalize.Execute(ctx, FinalizePasswordResetMessage{Token: token, Password: password})
}

// Authenticate checks the credentials. Unknown emails and wrong passwords
// both fail with ErrInvalidCredentials.
func (l *Lifecycle) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	account, err := l.findAccount(ctx, func(ctx context.Context, tx bun.Tx) (*Account, error) {
		return l.repo.Accounts().GetByEmailTx(ctx, tx, email)
	})

	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			l.record(ctx, ActivityEvent{
				EventType: ActivityEventLoginFailure,
				Actor:     ActorRef{Type: "unknown"},
				Metadata: map[string]any{
					"reason": "unknown_email",
				},
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := l.hasher.ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		l.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     accountActor(account.ID.String()),
			AccountID: account.ID.String(),
			Metadata: map[string]any{
				"reason": "invalid_password",
			},
		})
		if goerrors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, asCommandError(err, "failed to compare password")
	}

	return account, nil
}

// Login mints an access token for a verified account. With rememberMe it
// also mints a refresh token and stores it so it can be revoked.
func (l *Lifecycle) Login(ctx context.Context, account *Account, rememberMe bool) (*LoginResult, error) {
	select {
	case <-ctx.Done():
		return nil, cancelled(ctx, "login")
	default:
	}

	if account == nil {
		return nil, ErrInvalidCredentials
	}

	if !account.EmailVerified {
		l.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     accountActor(account.ID.String()),
			AccountID: account.ID.String(),
			Metadata: map[string]any{
				"reason": "email_not_verified",
			},
		})
		return nil, ErrEmailNotVerified
	}

	access, accessExp, err := l.tokens.MintAccess(account)
	if err != nil {
		return nil, asCommandError(err, "failed to mint access token")
	}

	result := &LoginResult{
		Account:         account.View(),
		AccessToken:     access,
		AccessExpiresAt: accessExp,
	}

	if rememberMe {
		refresh, refreshExp, err := l.tokens.MintRefresh(account)
		if err != nil {
			return nil, asCommandError(err, "failed to mint refresh token")
		}

		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()

		err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return l.repo.Accounts().SetRefreshTokenTx(ctx, tx, account.ID, &refresh)
		})
		if err != nil {
			return nil, asCommandError(err, "failed to store refresh token")
		}

		result.RefreshToken = refresh
		result.RefreshExpiresAt = refreshExp
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     accountActor(account.ID.String()),
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"remember_me": rememberMe,
		},
	})

	return result, nil
}

// Refresh mints a new access token from a refresh token that is valid,
// unexpired and still the one stored on the account
func (l *Lifecycle) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	claims, err := l.tokens.Verify(refreshToken)
	if err != nil {
		l.logger.Debug("refresh token rejected", "error", err)
		return nil, ErrInvalidRefreshToken
	}

	if !claims.IsRefresh() {
		return nil, ErrInvalidRefreshToken
	}

	account, err := l.findAccount(ctx, func(ctx context.Context, tx bun.Tx) (*Account, error) {
		return l.repo.Accounts().GetWithProfileTx(ctx, tx, claims.UserID())
	})
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	// revoked by logout or replaced by a newer login
	if account.RefreshToken == nil || *account.RefreshToken != refreshToken {
		return nil, ErrInvalidRefreshToken
	}

	access, accessExp, err := l.tokens.MintAccess(account)
	if err != nil {
		return nil, asCommandError(err, "failed to mint access token")
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityEventRefresh,
		Actor:     accountActor(account.ID.String()),
		AccountID: account.ID.String(),
	})

	return &RefreshResult{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
	}, nil
}

// Logout clears the stored refresh token
func (l *Lifecycle) Logout(ctx context.Context, accountID string) error {
	id, err := parseAccountID(accountID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return l.repo.Accounts().SetRefreshTokenTx(ctx, tx, id, nil)
	})
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return asCommandError(err, "failed to clear refresh token")
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     accountActor(accountID),
		AccountID: accountID,
	})

	return nil
}

// UpdateProfile writes the supplied profile fields, creating the profile
// when absent. A non nil Role in update changes the account role.
func (l *Lifecycle) UpdateProfile(ctx context.Context, accountID string, update ProfileUpdate) (*AccountView, error) {
	id, err := parseAccountID(accountID)
	if err != nil {
		return nil, err
	}

	if update.Role != nil && !update.Role.IsValid() {
		return nil, goerrors.New("unknown role", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidationFailed).
			WithMetadata(map[string]any{"role": *update.Role})
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var account *Account

	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := l.repo.Accounts().GetWithProfileTx(ctx, tx, accountID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
		}

		if update.Role != nil && *update.Role != current.Role {
			if err := l.repo.Accounts().UpdateRoleTx(ctx, tx, id, *update.Role); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update role")
			}
		}

		if !update.IsEmpty() {
			if _, err := l.repo.Profiles().UpsertForAccountTx(ctx, tx, id, update); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
			}
		}

		account, err = l.repo.Accounts().GetWithProfileTx(ctx, tx, accountID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reload account")
		}
		return nil
	})

	if err != nil {
		return nil, asCommandError(err, "profile update transaction failed")
	}

	meta := map[string]any{}
	if update.Role != nil {
		meta["role"] = string(*update.Role)
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityEventProfileUpdated,
		Actor:     accountActor(accountID),
		AccountID: accountID,
		Metadata:  meta,
	})

	return account.View(), nil
}

// GetAccount returns the account with its profile
func (l *Lifecycle) GetAccount(ctx context.Context, accountID string) (*AccountView, error) {
	account, err := l.findAccount(ctx, func(ctx context.Context, tx bun.Tx) (*Account, error) {
		return l.repo.Accounts().GetWithProfileTx(ctx, tx, accountID)
	})
	if err != nil {
		return nil, err
	}
	return account.View(), nil
}

// ListAccounts returns a page of accounts and the total count
func (l *Lifecycle) ListAccounts(ctx context.Context, limit, offset int) ([]*AccountView, int, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var records []*Account
	var total int

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		records, total, err = l.repo.Accounts().ListTx(ctx, tx, limit, offset)
		return err
	})
	if err != nil {
		return nil, 0, asCommandError(err, "failed to list accounts")
	}

	views := make([]*AccountView, 0, len(records))
	for _, r := range records {
		views = append(views, r.View())
	}

	return views, total, nil
}

// DeleteAccount removes the account together with its profile
func (l *Lifecycle) DeleteAccount(ctx context.Context, accountID, actorID string) error {
	id, err := parseAccountID(accountID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		deleted, err := l.repo.Accounts().DeleteTx(ctx, tx, id)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete account")
		}
		if !deleted {
			return ErrAccountNotFound
		}
		return nil
	})
	if err != nil {
		return asCommandError(err, "account deletion failed")
	}

	actor := systemActor
	if actorID != "" {
		actor = accountActor(actorID)
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityEventDeleted,
		Actor:     actor,
		AccountID: accountID,
	})

	return nil
}

// SeedAdmin creates a verified admin account unless the email is taken.
// It reports whether an account was created.
func (l *Lifecycle) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}

	hash, err := l.hashPassword(password)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := l.createAccountTx(ctx, tx, &Account{
			Email:         email,
			PasswordHash:  hash,
			Role:          RoleAdmin,
			EmailVerified: true,
		}, "")
		return err
	})

	if err != nil {
		if goerrors.Is(err, ErrConflictEmail) {
			return false, nil
		}
		return false, asCommandError(err, "failed to seed admin account")
	}

	l.logger.Info("seeded admin account", "email", email)
	return true, nil
}

func (l *Lifecycle) findAccount(ctx context.Context, find func(ctx context.Context, tx bun.Tx) (*Account, error)) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, cancelled(ctx, "account lookup")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var account *Account
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = find(ctx, tx)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
		}
		return nil
	})

	if err != nil {
		return nil, asCommandError(err, "account lookup failed")
	}

	return account, nil
}

func parseAccountID(accountID string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(accountID))
	if err != nil {
		return uuid.Nil, ErrAccountNotFound
	}
	return id, nil
}
