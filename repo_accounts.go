package accounts

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// Accounts is the credential store
type Accounts interface {
	repository.Repository[*Account]

	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)

	GetWithProfileTx(ctx context.Context, tx bun.IDB, id string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	GetByVerificationTokenTx(ctx context.Context, tx bun.IDB, token string) (*Account, error)
	GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*Account, error)
	ListTx(ctx context.Context, tx bun.IDB, limit, offset int) ([]*Account, int, error)

	SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error
	SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error
	ConsumeVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token, passwordHash string) (bool, error)
	ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token, passwordHash string) (bool, error)
	SetRefreshTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token *string) error
	UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role Role) error
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)
}

type accountsRepo struct {
	repository.Repository[*Account]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Accounts                        = (*accountsRepo)(nil)
	_ repository.Repository[*Account] = (*accountsRepo)(nil)
)

// NewAccountsRepository returns the bun backed Accounts store
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accountsRepo{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (a *accountsRepo) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

func (a *accountsRepo) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	return a.CreateTx(ctx, tx, account)
}

func (a *accountsRepo) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accountsRepo) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflictEmail
		}
		return nil, err
	}
	return created, nil
}

func (a *accountsRepo) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

// GetByIdentifierTx resolves identifier as an account ID or an email
func (a *accountsRepo) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	for _, opt := range resolveAccountIdentifier(identifier) {
		record := &Account{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where("?TableAlias.? = ?", bun.Ident(opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *accountsRepo) GetWithProfileTx(ctx context.Context, tx bun.IDB, id string) (*Account, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id,
			})
	}
	return a.findOne(ctx, tx, "id", strings.TrimSpace(id))
}

func (a *accountsRepo) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	return a.findOne(ctx, tx, "email", NormalizeEmail(email))
}

func (a *accountsRepo) GetByVerificationTokenTx(ctx context.Context, tx bun.IDB, token string) (*Account, error) {
	if token == "" {
		return nil, repository.NewRecordNotFound()
	}
	return a.findOne(ctx, tx, "verification_token", token)
}

func (a *accountsRepo) GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*Account, error) {
	if token == "" {
		return nil, repository.NewRecordNotFound()
	}
	return a.findOne(ctx, tx, "reset_token", token)
}

func (a *accountsRepo) findOne(ctx context.Context, tx bun.IDB, column string, value any) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Relation("Profile").
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"column": column,
				})
		}
		return nil, err
	}

	normalizeProfile(record)
	return record, nil
}

func (a *accountsRepo) ListTx(ctx context.Context, tx bun.IDB, limit, offset int) ([]*Account, int, error) {
	records := make([]*Account, 0)
	q := tx.NewSelect().
		Model(&records).
		Relation("Profile").
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.email ASC")

	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	for _, r := range records {
		normalizeProfile(r)
	}

	return records, total, nil
}

func (a *accountsRepo) SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	return a.updateByID(ctx, tx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("verification_token = ?", token).
			Set("verification_expires_at = ?", expiresAt)
	})
}

func (a *accountsRepo) SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	return a.updateByID(ctx, tx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("reset_token = ?", token).
			Set("reset_expires_at = ?", expiresAt)
	})
}

// ConsumeVerificationTokenTx marks the account verified and clears the
// token, only if token is still the stored one. When passwordHash is set
// the password is replaced in the same statement. It reports whether
// this call consumed the token.
func (a *accountsRepo) ConsumeVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token, passwordHash string) (bool, error) {
	q := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("email_verified = ?", true).
		Set("verification_token = NULL").
		Set("verification_expires_at = NULL").
		Set("updated_at = ?", a.now()).
		Where("id = ?", id).
		Where("verification_token = ?", token)

	if passwordHash != "" {
		q = q.Set("password_hash = ?", passwordHash)
	}

	return rowsAffected(q.Exec(ctx))
}

// ConsumeResetTokenTx replaces the password and clears the reset token,
// only if token is still the stored one.
func (a *accountsRepo) ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token, passwordHash string) (bool, error) {
	q := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("reset_token = NULL").
		Set("reset_expires_at = NULL").
		Set("updated_at = ?", a.now()).
		Where("id = ?", id).
		Where("reset_token = ?", token)

	return rowsAffected(q.Exec(ctx))
}

func (a *accountsRepo) SetRefreshTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token *string) error {
	return a.updateByID(ctx, tx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		if token == nil {
			return q.Set("refresh_token = NULL")
		}
		return q.Set("refresh_token = ?", *token)
	})
}

func (a *accountsRepo) UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role Role) error {
	return a.updateByID(ctx, tx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("role = ?", role)
	})
}

// DeleteTx removes the account and its profile
func (a *accountsRepo) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	if _, err := tx.NewDelete().
		Model((*Profile)(nil)).
		Where("account_id = ?", id).
		Exec(ctx); err != nil {
		return false, err
	}

	return rowsAffected(tx.NewDelete().
		Model((*Account)(nil)).
		Where("id = ?", id).
		Exec(ctx))
}

func (a *accountsRepo) updateByID(ctx context.Context, tx bun.IDB, id uuid.UUID, set func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	q := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("updated_at = ?", a.now()).
		Where("id = ?", id)

	ok, err := rowsAffected(set(q).Exec(ctx))
	if err != nil {
		return err
	}

	if !ok {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func rowsAffected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// normalizeProfile drops the zero Profile left by a LEFT JOIN without a match
func normalizeProfile(record *Account) {
	if record != nil && record.Profile != nil && record.Profile.ID == uuid.Nil {
		record.Profile = nil
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveAccountIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  NormalizeEmail(trimmed),
		})
	}

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
