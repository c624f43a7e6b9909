package database

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openMemory(t *testing.T) *sql.DB {
	t.Helper()

	db, dialect, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		Path:   "file::memory:?_pragma=foreign_keys(1)",
	}, testLogger())
	require.NoError(t, err)
	require.Equal(t, SQLite, dialect)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestListMigrations_SortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.up.sql":   {Data: []byte("SELECT 1")},
		"m/0001_a.up.sql":   {Data: []byte("SELECT 1")},
		"m/0001_a.down.sql": {Data: []byte("SELECT 1")},
		"m/README.md":       {Data: []byte("docs")},
	}

	names, err := ListMigrations(fsys, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, names)
}

func TestMigrator_ApplyBundledIsRepeatable(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	m := NewMigrator(db, SQLite, testLogger())

	applied, err := m.ApplyBundled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	applied, err = m.ApplyBundled(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	for _, table := range []string{"users", "days", "user_state"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestMigrator_FailedMigrationRollsBack(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	m := NewMigrator(db, SQLite, testLogger())

	fsys := fstest.MapFS{
		"m/0001_ok.up.sql":     {Data: []byte("CREATE TABLE ok_table (id INTEGER)")},
		"m/0002_broken.up.sql": {Data: []byte("CREATE TABLE broken (")},
	}

	applied, err := m.ApplyFS(ctx, fsys, "m")
	require.Error(t, err)
	assert.Equal(t, 1, applied)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDialect_Rebind(t *testing.T) {
	query := `SELECT * FROM days WHERE user_id = ? AND day = ?`

	assert.Equal(t, `SELECT * FROM days WHERE user_id = $1 AND day = $2`, Postgres.Rebind(query))
	assert.Equal(t, query, SQLite.Rebind(query))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect(" Postgres ")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}
