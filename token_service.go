package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// OpaqueTokenBytes is the entropy of verification, reset and invitation tokens
const OpaqueTokenBytes = 32

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = time.Hour
	DefaultInvitationTTL   = 24 * time.Hour
)

// TokenService mints and verifies session assertions
type TokenService interface {
	Mint(claims *SessionClaims, ttl time.Duration) (string, time.Time, error)
	MintAccess(account *Account) (string, time.Time, error)
	MintRefresh(account *Account) (string, time.Time, error)
	Verify(tokenString string) (*SessionClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

// TokenServiceOption configures a TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenClock overrides the clock used for iat, exp and expiry checks
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance from cfg
func NewTokenService(cfg Config, opts ...TokenServiceOption) *TokenServiceImpl {
	ts := &TokenServiceImpl{
		signingKey: []byte(cfg.GetSigningKey()),
		accessTTL:  durationOr(cfg.GetAccessTokenTTL(), DefaultAccessTokenTTL),
		refreshTTL: durationOr(cfg.GetRefreshTokenTTL(), DefaultRefreshTokenTTL),
		issuer:     cfg.GetIssuer(),
		audience:   jwt.ClaimStrings(cfg.GetAudience()),
		logger:     defLogger{},
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// Mint signs claims with HS256, setting iat, exp, jti and the
// configured issuer and audience when the claims leave them empty
func (ts *TokenServiceImpl) Mint(claims *SessionClaims, ttl time.Duration) (string, time.Time, error) {
	if claims == nil {
		return "", time.Time{}, errors.New("claims must not be nil", errors.CategoryInternal)
	}

	if ttl <= 0 {
		return "", time.Time{}, errors.New("token TTL must be positive", errors.CategoryBadInput)
	}

	now := ts.now()
	expiresAt := now.Add(ttl)

	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	if claims.Issuer == "" {
		claims.Issuer = ts.issuer
	}

	if len(claims.Audience) == 0 && len(ts.audience) > 0 {
		claims.Audience = make(jwt.ClaimStrings, len(ts.audience))
		copy(claims.Audience, ts.audience)
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, expiresAt, nil
}

// MintAccess mints a short lived access token for account
func (ts *TokenServiceImpl) MintAccess(account *Account) (string, time.Time, error) {
	if account == nil {
		return "", time.Time{}, errors.New("account is required", errors.CategoryBadInput)
	}
	return ts.Mint(NewSessionClaims(account, TokenTypeAccess), ts.accessTTL)
}

// MintRefresh mints a long lived refresh token for account
func (ts *TokenServiceImpl) MintRefresh(account *Account) (string, time.Time, error) {
	if account == nil {
		return "", time.Time{}, errors.New("account is required", errors.CategoryBadInput)
	}
	return ts.Mint(NewSessionClaims(account, TokenTypeRefresh), ts.refreshTTL)
}

// Verify parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Verify(tokenString string) (*SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService verify encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService verify could not decode or validate claims")
	return nil, ErrTokenMalformed
}

// RandomOpaqueToken returns OpaqueTokenBytes of crypto/rand output, hex encoded
func RandomOpaqueToken() (string, error) {
	b := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate token")
	}
	return hex.EncodeToString(b), nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
