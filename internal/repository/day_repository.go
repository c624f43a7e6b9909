package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/domain"
)

// GetDay returns the record for (userID, date) or ErrNotFound.
func (r *sqlQueries) GetDay(ctx context.Context, userID string, date civil.Date) (*domain.DayRecord, error) {
	const query = `
		SELECT user_id, day, status, created_at
		FROM days
		WHERE user_id = ? AND day = ?
	`

	record, err := scanDay(r.queryRow(ctx, query, userID, date.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		r.log.Error("failed to fetch day", slog.String("user_id", userID), slog.String("date", date.String()), slog.Any("error", err))
		return nil, fmt.Errorf("select day: %w", err)
	}

	return record, nil
}

// InsertDayIfAbsent writes the record unless the date is already taken; it reports whether a row was written.
func (r *sqlQueries) InsertDayIfAbsent(ctx context.Context, record domain.DayRecord) (bool, error) {
	const query = `
		INSERT INTO days (user_id, day, status, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO NOTHING
	`

	res, err := r.exec(ctx, query, record.UserID, record.Date.String(), string(record.Status), formatTimestamp(record.CreatedAt))
	if err != nil {
		r.log.Error("failed to insert day",
			slog.String("user_id", record.UserID),
			slog.String("date", record.Date.String()),
			slog.Any("error", err),
		)
		return false, fmt.Errorf("insert day: %w", err)
	}

	return affected(res)
}

// ListDays returns all records of userID ordered by date.
func (r *sqlQueries) ListDays(ctx context.Context, userID string) ([]domain.DayRecord, error) {
	const query = `
		SELECT user_id, day, status, created_at
		FROM days
		WHERE user_id = ?
		ORDER BY day
	`

	return r.listDays(ctx, query, userID)
}

// ListDaysBetween returns records of userID with from <= date <= to, ordered by date.
func (r *sqlQueries) ListDaysBetween(ctx context.Context, userID string, from, to civil.Date) ([]domain.DayRecord, error) {
	const query = `
		SELECT user_id, day, status, created_at
		FROM days
		WHERE user_id = ? AND day >= ? AND day <= ?
		ORDER BY day
	`

	return r.listDays(ctx, query, userID, from.String(), to.String())
}

func (r *sqlQueries) listDays(ctx context.Context, query string, args ...any) ([]domain.DayRecord, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select days: %w", err)
	}
	defer rows.Close()

	var records []domain.DayRecord
	for rows.Next() {
		record, err := scanDay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate days: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDay(row rowScanner) (*domain.DayRecord, error) {
	var (
		record    domain.DayRecord
		status    string
		createdAt timestamp
	)

	if err := row.Scan(&record.UserID, &record.Date, &status, &createdAt); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	record.Status = parsed
	record.CreatedAt = createdAt.Time

	return &record, nil
}
