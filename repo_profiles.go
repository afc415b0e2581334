package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles stores the optional 1:1 account profile
type Profiles interface {
	repository.Repository[*Profile]

	GetByAccountIDTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Profile, error)
	UpsertForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, update ProfileUpdate) (*Profile, error)
}

type profilesRepo struct {
	repository.Repository[*Profile]
	db  *bun.DB
	now func() time.Time
}

var _ Profiles = (*profilesRepo)(nil)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "account_id"
		},
	})

	return &profilesRepo{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (p *profilesRepo) GetByAccountIDTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Profile, error) {
	record := &Profile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.account_id = ?", accountID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"account_id": accountID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

// UpsertForAccountTx writes the supplied fields of update, creating the
// profile row when the account has none yet
func (p *profilesRepo) UpsertForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, update ProfileUpdate) (*Profile, error) {
	profile, err := p.GetByAccountIDTx(ctx, tx, accountID)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}

	now := p.now()

	if profile == nil {
		profile = &Profile{
			ID:        uuid.New(),
			AccountID: accountID,
			CreatedAt: timePtr(now),
			UpdatedAt: timePtr(now),
		}
		update.Apply(profile)
		return p.Repository.CreateTx(ctx, tx, profile)
	}

	if update.IsEmpty() {
		return profile, nil
	}

	update.Apply(profile)
	profile.UpdatedAt = timePtr(now)

	return p.Repository.UpdateTx(ctx, tx, profile, repository.UpdateByID(profile.ID.String()))
}
