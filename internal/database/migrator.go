// Package database opens the SQL backend and manages schema migrations.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"
)

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
)`

// Migrator applies plain .up.sql migrations in lexical order, recording each in schema_migrations.
type Migrator struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

// NewMigrator constructs a Migrator that logs through the provided logger instance.
func NewMigrator(db *sql.DB, dialect Dialect, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}

	return &Migrator{
		db:      db,
		dialect: dialect,
		log:     log,
	}
}

// ApplyBundled applies the embedded migrations for the migrator's dialect.
func (m *Migrator) ApplyBundled(ctx context.Context) (int, error) {
	return m.ApplyFS(ctx, Migrations, m.dialect.MigrationsRoot())
}

// ApplyDir applies *.up.sql files found in a directory on disk.
func (m *Migrator) ApplyDir(ctx context.Context, dir string) (int, error) {
	return m.ApplyFS(ctx, os.DirFS(dir), ".")
}

// ApplyFS scans root in fsys, finds *.up.sql, sorts them, and executes the pending ones sequentially.
// It returns the number of migrations applied.
func (m *Migrator) ApplyFS(ctx context.Context, fsys fs.FS, root string) (int, error) {
	files, err := ListMigrations(fsys, root)
	if err != nil {
		return 0, fmt.Errorf("read migrations dir %q: %w", root, err)
	}

	baseLog := m.log.With(slog.String("dir", root))

	if len(files) == 0 {
		baseLog.Info("no .up.sql migrations found")
		return 0, nil
	}

	if _, err := m.db.ExecContext(ctx, migrationsTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, name := range files {
		done, err := m.isApplied(ctx, name)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}

		if err := m.applyFile(ctx, baseLog, fsys, root, name); err != nil {
			return applied, err
		}
		applied++
	}

	return applied, nil
}

func (m *Migrator) isApplied(ctx context.Context, name string) (bool, error) {
	var found string
	err := m.db.QueryRowContext(ctx, m.dialect.Rebind(`SELECT name FROM schema_migrations WHERE name = ?`), name).Scan(&found)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("check migration %q: %w", name, err)
	}
}

func (m *Migrator) applyFile(ctx context.Context, baseLog *slog.Logger, fsys fs.FS, root, name string) error {
	scopedLog := baseLog.With(slog.String("file", name))
	scopedLog.Info("applying migration")

	data, err := fs.ReadFile(fsys, path.Join(root, name))
	if err != nil {
		return fmt.Errorf("read migration %q: %w", name, err)
	}

	statement := strings.TrimSpace(string(data))

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for migration %q: %w", name, err)
	}

	if statement == "" {
		scopedLog.Warn("migration is empty, recording only")
	} else if _, execErr := tx.ExecContext(ctx, statement); execErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			scopedLog.Error("rollback error", slog.Any("error", rbErr))
		}
		return fmt.Errorf("execute migration %q: %w", name, execErr)
	}

	record := m.dialect.Rebind(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`)
	if _, execErr := tx.ExecContext(ctx, record, name, time.Now().UTC().Format(time.RFC3339Nano)); execErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			scopedLog.Error("rollback error", slog.Any("error", rbErr))
		}
		return fmt.Errorf("record migration %q: %w", name, execErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %q: %w", name, commitErr)
	}

	return nil
}

func isUpMigration(name string) bool {
	return strings.HasSuffix(name, ".up.sql")
}

// ListMigrations returns all .up.sql files in dir in lexical order.
func ListMigrations(dir fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(dir, root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isUpMigration(e.Name()) {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}
