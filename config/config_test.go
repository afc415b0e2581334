package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.NoError(t, cfg.Validate(), "defaults start a development server")
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "0.0.0.0:3001", cfg.Address())
	assert.Equal(t, 15*time.Minute, cfg.GetAccessTokenTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.GetRefreshTokenTTL())
	assert.Equal(t, 24*time.Hour, cfg.GetVerificationTTL())
	assert.Equal(t, time.Hour, cfg.GetResetTTL())
	assert.Equal(t, 24*time.Hour, cfg.GetInvitationTTL())
	assert.Equal(t, 10, cfg.GetBcryptCost())
	assert.False(t, cfg.GetCookieSecure())
}

func TestApplyEnv(t *testing.T) {
	cfg := Defaults()

	err := cfg.applyEnv(mapLookup(map[string]string{
		"ACCOUNTS_SERVER_PORT":           "8080",
		"ACCOUNTS_SERVER_ENV":            "production",
		"ACCOUNTS_SERVER_COOKIE_SECURE":  "true",
		"ACCOUNTS_DATABASE_DRIVER":       "postgres",
		"ACCOUNTS_DATABASE_DSN":          "postgres://localhost/accounts",
		"ACCOUNTS_AUTH_SIGNING_KEY":      "k",
		"ACCOUNTS_AUTH_ACCESS_TTL":       "5m",
		"ACCOUNTS_AUTH_AUDIENCE":         "web, mobile ,",
		"ACCOUNTS_AUTH_USE_HASHID":       "1",
		"ACCOUNTS_RATE_LIMIT_PER_SECOND": "0.5",
		"ACCOUNTS_RATE_LIMIT_BURST":      "10",
		"ACCOUNTS_ADMIN_EMAIL":           "root@example.com",
		"UNRELATED":                      "ignored",
	}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.GetCookieSecure())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/accounts", cfg.Database.DSN)
	assert.Equal(t, "k", cfg.GetSigningKey())
	assert.Equal(t, 5*time.Minute, cfg.GetAccessTokenTTL())
	assert.Equal(t, []string{"web", "mobile"}, cfg.GetAudience())
	assert.True(t, cfg.GetUseHashid())
	assert.Equal(t, 0.5, cfg.RateLimit.PerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, "root@example.com", cfg.Admin.Email)
	assert.Equal(t, time.Hour, cfg.GetResetTTL(), "unset values keep their defaults")
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"ACCOUNTS_SERVER_PORT":           "eighty",
		"ACCOUNTS_SERVER_DEBUG":          "maybe",
		"ACCOUNTS_AUTH_REFRESH_TTL":      "a week",
		"ACCOUNTS_RATE_LIMIT_PER_SECOND": "fast",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			err := Defaults().applyEnv(mapLookup(map[string]string{key: value}))
			require.Error(t, err)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
			assert.Equal(t, key, richErr.Metadata["key"])
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(c *Config)
		field string
	}{
		{
			name:  "signing key outside development",
			edit:  func(c *Config) { c.Server.Env = "production" },
			field: "auth.signing_key",
		},
		{
			name:  "unknown driver",
			edit:  func(c *Config) { c.Database.Driver = "mysql" },
			field: "database.driver",
		},
		{
			name:  "missing dsn",
			edit:  func(c *Config) { c.Database.DSN = "" },
			field: "database.dsn",
		},
		{
			name:  "smtp without host",
			edit:  func(c *Config) { c.Email.Driver = "smtp" },
			field: "email.host",
		},
		{
			name:  "unknown email driver",
			edit:  func(c *Config) { c.Email.Driver = "pigeon" },
			field: "email.driver",
		},
		{
			name:  "port out of range",
			edit:  func(c *Config) { c.Server.Port = 70000 },
			field: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.edit(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
			assert.Contains(t, richErr.Metadata, tt.field)
		})
	}
}

func TestValidate_ProductionWithKey(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Env = "production"
	cfg.Auth.SigningKey = "a-real-key"
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	err := os.WriteFile(path, []byte(`
server:
  port: 4000
  env: staging
auth:
  signing_key: from-file
  issuer: accounts.example.com
  audience: [web]
  refresh_ttl: 72h
email:
  driver: smtp
  host: smtp.example.com
  frontend_url: https://app.example.com
`), 0o600)
	require.NoError(t, err)

	t.Setenv("ACCOUNTS_SERVER_PORT", "4100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.Server.Port, "the environment wins over the file")
	assert.Equal(t, "staging", cfg.Server.Env)
	assert.Equal(t, "from-file", cfg.GetSigningKey())
	assert.Equal(t, "accounts.example.com", cfg.GetIssuer())
	assert.Equal(t, []string{"web"}, cfg.GetAudience())
	assert.Equal(t, 72*time.Hour, cfg.GetRefreshTokenTTL())
	assert.Equal(t, 15*time.Minute, cfg.GetAccessTokenTTL(), "file values merge over the defaults")
	assert.Equal(t, "smtp.example.com", cfg.Email.Host)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o600))

	_, err = Load(path)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
}
