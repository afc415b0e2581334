package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/goliatone/go-accounts/config"
	goerrors "github.com/goliatone/go-errors"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGooseDialect(t *testing.T) {
	dialect, err := GooseDialect(DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", dialect)

	dialect, err = GooseDialect(DriverPostgres)
	require.NoError(t, err)
	assert.Equal(t, "pgx", dialect)

	_, err = GooseDialect("oracle")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	assert.Equal(t, "oracle", richErr.Metadata["driver"])
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	db, err := Open(context.Background(), config.Database{Driver: "mysql", DSN: "x"})
	assert.Nil(t, db)
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()

	db, err := Open(ctx, config.Database{Driver: DriverSQLite, DSN: "file::memory:?cache=shared"})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, HealthCheck(db)(ctx))

	var enabled int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
	assert.Equal(t, 1, enabled)
}

func TestMigrate(t *testing.T) {
	original := gooseUpContext
	t.Cleanup(func() { gooseUpContext = original })

	var calledWith string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		calledWith = dir
		return nil
	}

	require.NoError(t, Migrate(context.Background(), nil, DriverSQLite))
	assert.Equal(t, ".", calledWith)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	err := Migrate(context.Background(), nil, DriverPostgres)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryInternal, richErr.Category)

	assert.Error(t, Migrate(context.Background(), nil, "oracle"))
}

func TestMigrate_AppliesSchema(t *testing.T) {
	ctx := context.Background()

	db, err := Open(ctx, config.Database{Driver: DriverSQLite, DSN: "file:migrate_test?mode=memory&cache=shared"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db.DB, DriverSQLite))

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
