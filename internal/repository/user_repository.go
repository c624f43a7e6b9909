package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/workout-ledger/internal/domain"
)

// FindUser retrieves a user by slot identifier.
func (r *sqlQueries) FindUser(ctx context.Context, id string) (*domain.User, error) {
	const query = `
		SELECT id, display_name, telegram_id
		FROM users
		WHERE id = ?
	`

	return r.scanUser(r.queryRow(ctx, query, id), slog.String("user_id", id))
}

// FindUserByTelegramID retrieves the user mapped to a Telegram account.
func (r *sqlQueries) FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	if telegramID == 0 {
		return nil, ErrNotFound
	}

	const query = `
		SELECT id, display_name, telegram_id
		FROM users
		WHERE telegram_id = ?
	`

	return r.scanUser(r.queryRow(ctx, query, telegramID), slog.Int64("telegram_id", telegramID))
}

func (r *sqlQueries) scanUser(row *sql.Row, key slog.Attr) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.ID, &user.DisplayName, &user.TelegramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		r.log.Error("failed to fetch user", key, slog.Any("error", err))
		return nil, fmt.Errorf("select user: %w", err)
	}

	return &user, nil
}

// ListUsers returns every user ordered by id.
func (r *sqlQueries) ListUsers(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT id, display_name, telegram_id FROM users ORDER BY id`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.DisplayName, &user.TelegramID); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// InsertUserIfAbsent creates the user row unless the id already exists; it reports whether a row was written.
func (r *sqlQueries) InsertUserIfAbsent(ctx context.Context, user domain.User) (bool, error) {
	const query = `
		INSERT INTO users (id, display_name, telegram_id)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := r.exec(ctx, query, user.ID, user.DisplayName, user.TelegramID)
	if err != nil {
		r.log.Error("failed to create user", slog.String("user_id", user.ID), slog.Any("error", err))
		return false, fmt.Errorf("insert user: %w", err)
	}

	return affected(res)
}

// UpdateUser overwrites the mutable user fields.
func (r *sqlQueries) UpdateUser(ctx context.Context, user domain.User) (bool, error) {
	const query = `
		UPDATE users
		SET display_name = ?, telegram_id = ?
		WHERE id = ?
	`

	res, err := r.exec(ctx, query, user.DisplayName, user.TelegramID, user.ID)
	if err != nil {
		r.log.Error("failed to update user", slog.String("user_id", user.ID), slog.Any("error", err))
		return false, fmt.Errorf("update user: %w", err)
	}

	return affected(res)
}
