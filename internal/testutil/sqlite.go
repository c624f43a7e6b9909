// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/internal/database"
	"github.com/Proton-105/workout-ledger/pkg/config"
)

// MemoryDSN opens a private in-memory SQLite database with foreign keys on.
const MemoryDSN = "file::memory:?_pragma=foreign_keys(1)"

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenSQLite returns a migrated in-memory database closed at test cleanup.
func OpenSQLite(t testing.TB) (*sql.DB, database.Dialect) {
	t.Helper()

	ctx := context.Background()
	db, dialect, err := database.Open(ctx, config.DatabaseConfig{Driver: "sqlite", Path: MemoryDSN}, Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.NewMigrator(db, dialect, Logger()).ApplyBundled(ctx)
	require.NoError(t, err)

	return db, dialect
}
