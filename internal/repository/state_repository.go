package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/workout-ledger/internal/database"
	"github.com/Proton-105/workout-ledger/internal/domain"
)

const selectState = `
	SELECT user_id, skip_points, consec_workout, updated_at
	FROM user_state
	WHERE user_id = ?
`

// GetState returns the counters for userID or ErrNotFound.
func (r *sqlQueries) GetState(ctx context.Context, userID string) (*domain.UserState, error) {
	return r.getState(ctx, selectState, userID)
}

// GetStateForUpdate is GetState that also locks the row until the surrounding transaction ends.
// SQLite serializes writers on its own, so the lock clause is PostgreSQL only.
func (r *sqlQueries) GetStateForUpdate(ctx context.Context, userID string) (*domain.UserState, error) {
	query := selectState
	if r.dialect == database.Postgres {
		query += " FOR UPDATE"
	}
	return r.getState(ctx, query, userID)
}

func (r *sqlQueries) getState(ctx context.Context, query, userID string) (*domain.UserState, error) {
	var (
		state     domain.UserState
		updatedAt timestamp
	)

	err := r.queryRow(ctx, query, userID).Scan(&state.UserID, &state.SkipPoints, &state.ConsecWorkout, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		r.log.Error("failed to fetch user state", slog.String("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("select user state: %w", err)
	}
	state.UpdatedAt = updatedAt.Time

	return &state, nil
}

// InsertStateIfAbsent creates the initial counters unless they already exist.
func (r *sqlQueries) InsertStateIfAbsent(ctx context.Context, state domain.UserState) (bool, error) {
	const query = `
		INSERT INTO user_state (user_id, skip_points, consec_workout, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`

	res, err := r.exec(ctx, query, state.UserID, state.SkipPoints, state.ConsecWorkout, formatTimestamp(state.UpdatedAt))
	if err != nil {
		r.log.Error("failed to create user state", slog.String("user_id", state.UserID), slog.Any("error", err))
		return false, fmt.Errorf("insert user state: %w", err)
	}

	return affected(res)
}

// UpdateState persists new counter values.
func (r *sqlQueries) UpdateState(ctx context.Context, state domain.UserState) error {
	const query = `
		UPDATE user_state
		SET skip_points = ?, consec_workout = ?, updated_at = ?
		WHERE user_id = ?
	`

	res, err := r.exec(ctx, query, state.SkipPoints, state.ConsecWorkout, formatTimestamp(state.UpdatedAt), state.UserID)
	if err != nil {
		r.log.Error("failed to update user state", slog.String("user_id", state.UserID), slog.Any("error", err))
		return fmt.Errorf("update user state: %w", err)
	}

	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	return nil
}
