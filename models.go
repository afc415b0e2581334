package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the credential record
type Account struct {
	bun.BaseModel         `bun:"table:accounts,alias:acc"`
	ID                    uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email                 string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash          string     `bun:"password_hash,notnull" json:"-"`
	Role                  Role       `bun:"role,notnull" json:"role,omitempty"`
	EmailVerified         bool       `bun:"email_verified,notnull" json:"email_verified"`
	VerificationToken     *string    `bun:"verification_token" json:"-"`
	VerificationExpiresAt *time.Time `bun:"verification_expires_at" json:"-"`
	ResetToken            *string    `bun:"reset_token" json:"-"`
	ResetExpiresAt        *time.Time `bun:"reset_expires_at" json:"-"`
	RefreshToken          *string    `bun:"refresh_token" json:"-"`
	Profile               *Profile   `bun:"rel:has-one,join:id=account_id" json:"profile,omitempty"`
	CreatedAt             *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt             *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Profile holds the optional personal data of an account
type Profile struct {
	bun.BaseModel `bun:"table:account_profiles,alias:prf"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,unique,type:uuid" json:"account_id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name"`
	BirthDate     *time.Time `bun:"birth_date" json:"birth_date,omitempty"`
	Address       *string    `bun:"address" json:"address,omitempty"`
	FiscalCode    *string    `bun:"fiscal_code" json:"fiscal_code,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// ProfileView is the public shape of a Profile
type ProfileView struct {
	Name       string     `json:"name"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Address    *string    `json:"address,omitempty"`
	FiscalCode *string    `json:"fiscal_code,omitempty"`
}

// AccountView is an Account without its secret and tokens.
// Every operation that hands an account to a caller returns one.
type AccountView struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	Role          Role         `json:"role"`
	EmailVerified bool         `json:"email_verified"`
	Profile       *ProfileView `json:"profile"`
	CreatedAt     *time.Time   `json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `json:"updated_at,omitempty"`
}

func (v *AccountView) GetID() string {
	if v == nil {
		return ""
	}
	return v.ID
}

func (v *AccountView) GetRole() string {
	if v == nil {
		return ""
	}
	return string(v.Role)
}

// View returns the public projection of the account
func (a *Account) View() *AccountView {
	if a == nil {
		return nil
	}
	v := &AccountView{
		ID:            a.ID.String(),
		Email:         a.Email,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.Profile != nil {
		v.Profile = &ProfileView{
			Name:       a.Profile.Name,
			BirthDate:  a.Profile.BirthDate,
			Address:    a.Profile.Address,
			FiscalCode: a.Profile.FiscalCode,
		}
	}
	return v
}

// DisplayName is the name used to greet the account holder
func (a *Account) DisplayName() string {
	if a == nil {
		return ""
	}
	if a.Profile != nil && a.Profile.Name != "" {
		return a.Profile.Name
	}
	return localPart(a.Email)
}

// ProfileUpdate carries the fields of a partial profile update.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Name       *string
	BirthDate  *time.Time
	Address    *string
	FiscalCode *string
	Role       *Role
}

// IsEmpty reports whether the update carries no profile field
func (p ProfileUpdate) IsEmpty() bool {
	return p.Name == nil && p.BirthDate == nil && p.Address == nil && p.FiscalCode == nil
}

// Apply writes the supplied fields into profile
func (p ProfileUpdate) Apply(profile *Profile) {
	if p.Name != nil {
		profile.Name = *p.Name
	}
	if p.BirthDate != nil {
		profile.BirthDate = p.BirthDate
	}
	if p.Address != nil {
		profile.Address = p.Address
	}
	if p.FiscalCode != nil {
		profile.FiscalCode = p.FiscalCode
	}
}

// NormalizeEmail lower cases and trims an address before it is stored or looked up
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}

func stringPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
