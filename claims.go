package accounts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType tells access and refresh assertions apart
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// SessionClaims is the claim set of a session assertion
type SessionClaims struct {
	jwt.RegisteredClaims
	UID      string    `json:"uid,omitempty"`
	Email    string    `json:"email,omitempty"`
	UserRole string    `json:"role,omitempty"`
	Type     TokenType `json:"typ,omitempty"`
}

// NewSessionClaims builds the claims for account. Registered
// time claims are filled in by TokenService.Mint.
func NewSessionClaims(account *Account, typ TokenType) *SessionClaims {
	id := account.ID.String()
	return &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: id,
		},
		UID:      id,
		Email:    account.Email,
		UserRole: string(account.Role),
		Type:     typ,
	}
}

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the account ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the account role
func (c *SessionClaims) Role() Role {
	return Role(c.UserRole)
}

// HasRole checks the role claim against role
func (c *SessionClaims) HasRole(role Role) bool {
	return c.Role() == role
}

// IsAccess reports whether the assertion was minted as an access token
func (c *SessionClaims) IsAccess() bool {
	return c.Type == TokenTypeAccess
}

// IsRefresh reports whether the assertion was minted as a refresh token
func (c *SessionClaims) IsRefresh() bool {
	return c.Type == TokenTypeRefresh
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
