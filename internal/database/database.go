package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Proton-105/workout-ledger/pkg/config"
)

// Migrations holds the bundled schema for every supported dialect.
//
//go:embed migrations
var Migrations embed.FS

// Dialect names a supported SQL backend; the value doubles as the database/sql driver name.
type Dialect string

const (
	// Postgres is served by github.com/lib/pq.
	Postgres Dialect = "postgres"
	// SQLite is served by modernc.org/sqlite.
	SQLite Dialect = "sqlite"
)

// ParseDialect validates a configured driver name.
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(driver))) {
	case Postgres:
		return Postgres, nil
	case SQLite:
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// MigrationsRoot is the directory inside Migrations holding this dialect's files.
func (d Dialect) MigrationsRoot() string {
	return "migrations/" + string(d)
}

// Rebind rewrites '?' placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(string(dialect), cfg.DSN())
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}

	if dialect == SQLite {
		// a single connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping database: %w", err)
	}

	if log != nil {
		log.Info("database connected", slog.String("driver", string(dialect)))
	}

	return db, dialect, nil
}
