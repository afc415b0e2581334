package accounts_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/migrations"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/mattn/go-sqlite3"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

type testConfig struct {
	signingKey   string
	issuer       string
	audience     []string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	verifyTTL    time.Duration
	resetTTL     time.Duration
	inviteTTL    time.Duration
	useHashid    bool
	cookieSecure bool
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey: testSigningKey,
		issuer:     "go-accounts-test",
		audience:   []string{"go-accounts"},
	}
}

func (c *testConfig) GetSigningKey() string               { return c.signingKey }
func (c *testConfig) GetIssuer() string                   { return c.issuer }
func (c *testConfig) GetAudience() []string               { return c.audience }
func (c *testConfig) GetAccessTokenTTL() time.Duration    { return c.accessTTL }
func (c *testConfig) GetRefreshTokenTTL() time.Duration   { return c.refreshTTL }
func (c *testConfig) GetVerificationTTL() time.Duration   { return c.verifyTTL }
func (c *testConfig) GetResetTTL() time.Duration          { return c.resetTTL }
func (c *testConfig) GetInvitationTTL() time.Duration     { return c.inviteTTL }
func (c *testConfig) GetBcryptCost() int                  { return bcrypt.MinCost }
func (c *testConfig) GetUseHashid() bool                  { return c.useHashid }
func (c *testConfig) GetCookieSecure() bool               { return c.cookieSecure }

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// testClock is a settable clock shared by the lifecycle and the token service
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	Kind  string
	Email string
	Name  string
	Token string
}

// recordingNotifier keeps every message so tests can read the tokens
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) record(kind, email, name, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{Kind: kind, Email: email, Name: name, Token: token})
	return nil
}

func (n *recordingNotifier) SendVerification(_ context.Context, email, name, token string) error {
	return n.record("verification", email, name, token)
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, name, token string) error {
	return n.record("reset", email, name, token)
}

func (n *recordingNotifier) SendInvitation(_ context.Context, email, name, token string) error {
	return n.record("invitation", email, name, token)
}

// Last returns the latest message of kind sent to email
func (n *recordingNotifier) Last(kind, email string) (sentMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind && n.sent[i].Email == email {
			return n.sent[i], true
		}
	}
	return sentMessage{}, false
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// MockActivitySink implements accounts.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockNotifier implements accounts.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendVerification(ctx context.Context, email, name, token string) error {
	return m.Called(ctx, email, name, token).Error(0)
}

func (m *MockNotifier) SendPasswordReset(ctx context.Context, email, name, token string) error {
	return m.Called(ctx, email, name, token).Error(0)
}

func (m *MockNotifier) SendInvitation(ctx context.Context, email, name, token string) error {
	return m.Called(ctx, email, name, token).Error(0)
}

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))

	t.Cleanup(func() {
		_ = bunDB.Close()
	})

	return bunDB
}

type lifecycleFixture struct {
	db        *bun.DB
	repo      accounts.RepositoryManager
	cfg       *testConfig
	clock     *testClock
	notifier  *recordingNotifier
	lifecycle *accounts.Lifecycle
}

func setupLifecycle(t *testing.T, opts ...func(*accounts.Dependencies)) *lifecycleFixture {
	t.Helper()

	db := setupTestDB(t)
	f := &lifecycleFixture{
		db:       db,
		repo:     accounts.NewRepositoryManager(db),
		cfg:      newTestConfig(),
		clock:    newTestClock(),
		notifier: &recordingNotifier{},
	}

	deps := accounts.Dependencies{
		Repo:     f.repo,
		Config:   f.cfg,
		Notifier: f.notifier,
		Logger:   testLogger{},
		Clock:    f.clock.Now,
	}

	for _, opt := range opts {
		opt(&deps)
	}

	lifecycle, err := accounts.NewLifecycle(deps)
	require.NoError(t, err)
	f.lifecycle = lifecycle

	return f
}

// registerVerified registers an account and consumes its verification token
func (f *lifecycleFixture) registerVerified(t *testing.T, name, email, password string) *accounts.AccountView {
	t.Helper()
	ctx := context.Background()

	resp, err := f.lifecycle.Register(ctx, name, email, password)
	require.NoError(t, err)

	msg, ok := f.notifier.Last("verification", accounts.NormalizeEmail(email))
	require.True(t, ok)
	require.NoError(t, f.lifecycle.VerifyEmail(ctx, msg.Token))

	return resp.Account
}
