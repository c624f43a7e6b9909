// Package repository implements SQL-backed storage for users, days and user state.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/database"
	"github.com/Proton-105/workout-ledger/internal/domain"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Queries is the set of reads and writes the ledger performs.
type Queries interface {
	FindUser(ctx context.Context, id string) (*domain.User, error)
	FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	InsertUserIfAbsent(ctx context.Context, user domain.User) (bool, error)
	UpdateUser(ctx context.Context, user domain.User) (bool, error)

	GetState(ctx context.Context, userID string) (*domain.UserState, error)
	GetStateForUpdate(ctx context.Context, userID string) (*domain.UserState, error)
	InsertStateIfAbsent(ctx context.Context, state domain.UserState) (bool, error)
	UpdateState(ctx context.Context, state domain.UserState) error

	GetDay(ctx context.Context, userID string, date civil.Date) (*domain.DayRecord, error)
	InsertDayIfAbsent(ctx context.Context, record domain.DayRecord) (bool, error)
	ListDays(ctx context.Context, userID string) ([]domain.DayRecord, error)
	ListDaysBetween(ctx context.Context, userID string, from, to civil.Date) ([]domain.DayRecord, error)
}

// Store adds transactional units of work on top of Queries.
type Store interface {
	Queries
	// WithinTx runs fn inside one transaction; a non-nil error from fn rolls it back.
	WithinTx(ctx context.Context, fn func(q Queries) error) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlQueries struct {
	q       querier
	dialect database.Dialect
	log     *slog.Logger
}

// SQLStore implements Store over database/sql for PostgreSQL and SQLite.
type SQLStore struct {
	sqlQueries
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a new SQL-backed store.
func NewSQLStore(db *sql.DB, dialect database.Dialect, log *slog.Logger) *SQLStore {
	if log == nil {
		log = slog.Default()
	}

	return &SQLStore{
		sqlQueries: sqlQueries{q: db, dialect: dialect, log: log},
		db:         db,
	}
}

// WithinTx begins a transaction, hands fn a transaction-scoped Queries and commits when fn succeeds.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txQueries := &sqlQueries{q: tx, dialect: s.dialect, log: s.log}

	if err := fn(txQueries); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("rollback failed", slog.Any("error", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (r *sqlQueries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *sqlQueries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *sqlQueries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.dialect.Rebind(query), args...)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// timestamp scans TIMESTAMPTZ columns (time.Time) and SQLite TEXT columns alike.
type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *timestamp) parse(raw string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}
