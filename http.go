package accounts

import (
	"time"

	"github.com/goliatone/go-router"
)

const (
	// DefaultContextKey is the router.Context locals key of the current account
	DefaultContextKey = "account"

	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// DefaultTokenLookup tries the access cookie before the bearer header
const DefaultTokenLookup = "cookie:" + AccessTokenCookie + ",header:" + router.HeaderAuthorization

// SessionCookies writes and clears the session cookies
type SessionCookies struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewSessionCookies(cfg Config) *SessionCookies {
	return &SessionCookies{
		secure:     cfg.GetCookieSecure(),
		accessTTL:  durationOr(cfg.GetAccessTokenTTL(), DefaultAccessTokenTTL),
		refreshTTL: durationOr(cfg.GetRefreshTokenTTL(), DefaultRefreshTokenTTL),
		now:        time.Now,
	}
}

// SetLogin sets the access cookie and, when present, the refresh cookie
func (s *SessionCookies) SetLogin(c router.Context, result *LoginResult) {
	s.SetAccess(c, result.AccessToken)
	if result.RefreshToken != "" {
		s.setCookie(c, RefreshTokenCookie, result.RefreshToken, s.refreshTTL)
	}
}

func (s *SessionCookies) SetAccess(c router.Context, token string) {
	s.setCookie(c, AccessTokenCookie, token, s.accessTTL)
}

// Clear expires both session cookies
func (s *SessionCookies) Clear(c router.Context) {
	s.cookieDel(c, AccessTokenCookie)
	s.cookieDel(c, RefreshTokenCookie)
}

func (s *SessionCookies) setCookie(c router.Context, name, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    val,
		Path:     "/",
		Expires:  s.now().Add(duration),
		MaxAge:   int(duration.Seconds()),
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: "Lax",
	})
}

func (s *SessionCookies) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  s.now().Add(-time.Hour * (24 * 365)),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: "Lax",
	})
}
