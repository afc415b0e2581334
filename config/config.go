package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ACCOUNTS_"

type Server struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Env          string `yaml:"env"`
	BaseURL      string `yaml:"base_url"`
	CookieSecure bool   `yaml:"cookie_secure"`
	Debug        bool   `yaml:"debug"`
}

type Database struct {
	// Driver is sqlite or postgres
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

type Auth struct {
	SigningKey      string        `yaml:"signing_key"`
	Issuer          string        `yaml:"issuer"`
	Audience        []string      `yaml:"audience"`
	AccessTTL       time.Duration `yaml:"access_ttl"`
	RefreshTTL      time.Duration `yaml:"refresh_ttl"`
	VerificationTTL time.Duration `yaml:"verification_ttl"`
	ResetTTL        time.Duration `yaml:"reset_ttl"`
	InvitationTTL   time.Duration `yaml:"invitation_ttl"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
	UseHashid       bool          `yaml:"use_hashid"`
}

type Email struct {
	// Driver is log or smtp
	Driver      string `yaml:"driver"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	From        string `yaml:"from"`
	FrontendURL string `yaml:"frontend_url"`
}

type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type Admin struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Config is the server configuration. It satisfies accounts.Config.
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Auth      Auth      `yaml:"auth"`
	Email     Email     `yaml:"email"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Admin     Admin     `yaml:"admin"`
}

// Defaults returns a development configuration
func Defaults() *Config {
	return &Config{
		Server: Server{
			Host:    "0.0.0.0",
			Port:    3001,
			Env:     "development",
			BaseURL: "http://localhost:3001",
		},
		Database: Database{
			Driver: "sqlite",
			DSN:    "file:accounts.db?cache=shared",
		},
		Auth: Auth{
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      7 * 24 * time.Hour,
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
			InvitationTTL:   24 * time.Hour,
			BcryptCost:      10,
		},
		Email: Email{
			Driver:      "log",
			Port:        587,
			From:        "noreply@localhost",
			FrontendURL: "http://localhost:3000",
		},
		RateLimit: RateLimit{
			PerSecond: 1,
			Burst:     5,
		},
	}
}

// Load reads path over the defaults, when given, then applies the
// ACCOUNTS_* environment
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to parse config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SERVER_HOST":        &c.Server.Host,
		"SERVER_ENV":         &c.Server.Env,
		"SERVER_BASE_URL":    &c.Server.BaseURL,
		"DATABASE_DRIVER":    &c.Database.Driver,
		"DATABASE_DSN":       &c.Database.DSN,
		"AUTH_SIGNING_KEY":   &c.Auth.SigningKey,
		"AUTH_ISSUER":        &c.Auth.Issuer,
		"EMAIL_DRIVER":       &c.Email.Driver,
		"EMAIL_HOST":         &c.Email.Host,
		"EMAIL_USERNAME":     &c.Email.Username,
		"EMAIL_PASSWORD":     &c.Email.Password,
		"EMAIL_FROM":         &c.Email.From,
		"EMAIL_FRONTEND_URL": &c.Email.FrontendURL,
		"ADMIN_EMAIL":        &c.Admin.Email,
		"ADMIN_PASSWORD":     &c.Admin.Password,
	}

	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":      &c.Server.Port,
		"EMAIL_PORT":       &c.Email.Port,
		"AUTH_BCRYPT_COST": &c.Auth.BcryptCost,
		"RATE_LIMIT_BURST": &c.RateLimit.Burst,
	}

	for key, dst := range ints {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return envError(key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"SERVER_COOKIE_SECURE": &c.Server.CookieSecure,
		"SERVER_DEBUG":         &c.Server.Debug,
		"DATABASE_DEBUG":       &c.Database.Debug,
		"AUTH_USE_HASHID":      &c.Auth.UseHashid,
	}

	for key, dst := range bools {
		if v, ok := lookup(envPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return envError(key, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"AUTH_ACCESS_TTL":       &c.Auth.AccessTTL,
		"AUTH_REFRESH_TTL":      &c.Auth.RefreshTTL,
		"AUTH_VERIFICATION_TTL": &c.Auth.VerificationTTL,
		"AUTH_RESET_TTL":        &c.Auth.ResetTTL,
		"AUTH_INVITATION_TTL":   &c.Auth.InvitationTTL,
	}

	for key, dst := range durations {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return envError(key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup(envPrefix + "RATE_LIMIT_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError("RATE_LIMIT_PER_SECOND", err)
		}
		c.RateLimit.PerSecond = f
	}

	if v, ok := lookup(envPrefix + "AUTH_AUDIENCE"); ok {
		c.Auth.Audience = splitList(v)
	}

	return nil
}

// Validate rejects configurations the server cannot start with.
// An empty signing key is only accepted in development.
func (c *Config) Validate() error {
	fields := map[string]any{}

	if c.Auth.SigningKey == "" && !c.IsDevelopment() {
		fields["auth.signing_key"] = "required outside development"
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		fields["database.driver"] = "must be sqlite or postgres"
	}

	if c.Database.DSN == "" {
		fields["database.dsn"] = "required"
	}

	switch c.Email.Driver {
	case "log":
	case "smtp":
		if c.Email.Host == "" {
			fields["email.host"] = "required by the smtp driver"
		}
	default:
		fields["email.driver"] = "must be log or smtp"
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		fields["server.port"] = "out of range"
	}

	if len(fields) > 0 {
		return goerrors.New("invalid configuration", goerrors.CategoryValidation).
			WithMetadata(fields)
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "" || c.Server.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Address is the listen address of the HTTP server
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

func (c *Config) GetSigningKey() string {
	return c.Auth.SigningKey
}

func (c *Config) GetIssuer() string {
	return c.Auth.Issuer
}

func (c *Config) GetAudience() []string {
	return c.Auth.Audience
}

func (c *Config) GetAccessTokenTTL() time.Duration {
	return c.Auth.AccessTTL
}

func (c *Config) GetRefreshTokenTTL() time.Duration {
	return c.Auth.RefreshTTL
}

func (c *Config) GetVerificationTTL() time.Duration {
	return c.Auth.VerificationTTL
}

func (c *Config) GetResetTTL() time.Duration {
	return c.Auth.ResetTTL
}

func (c *Config) GetInvitationTTL() time.Duration {
	return c.Auth.InvitationTTL
}

func (c *Config) GetBcryptCost() int {
	return c.Auth.BcryptCost
}

func (c *Config) GetUseHashid() bool {
	return c.Auth.UseHashid
}

func (c *Config) GetCookieSecure() bool {
	return c.Server.CookieSecure
}

func envError(key string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid environment variable").
		WithMetadata(map[string]any{"key": envPrefix + key})
}

func splitList(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
