// Package handlers processes background tasks.
package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/domain"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/idempotency"
	"github.com/Proton-105/workout-ledger/internal/jobs"
	"github.com/Proton-105/workout-ledger/pkg/metrics"
)

// sentTTL outlives every retry of a day's reminder.
const sentTTL = 48 * time.Hour

// Ledger is what the reminder reads.
type Ledger interface {
	Users(ctx context.Context) ([]domain.User, error)
	HistoryBetween(ctx context.Context, userID string, from, to civil.Date) ([]domain.DayRecord, error)
}

// Notifier delivers a message to a Telegram user.
type Notifier interface {
	Notify(ctx context.Context, telegramID int64, text string) error
}

// ReminderHandler nudges linked users who have nothing recorded for the day.
type ReminderHandler struct {
	ledger   Ledger
	notifier Notifier
	sent     idempotency.Manager
	breaker  *apperrors.CircuitBreaker
	text     string
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// NewReminderHandler sends text through notifier, guarded by breaker. When sent is
// non-nil each (date, user) pair is delivered at most once across retries.
func NewReminderHandler(
	ledger Ledger,
	notifier Notifier,
	sent idempotency.Manager,
	breaker *apperrors.CircuitBreaker,
	text string,
	loc *time.Location,
	log *slog.Logger,
) *ReminderHandler {
	if breaker == nil {
		breaker = apperrors.NewCircuitBreaker("telegram", apperrors.DefaultBreakerSettings)
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}

	return &ReminderHandler{
		ledger:   ledger,
		notifier: notifier,
		sent:     sent,
		breaker:  breaker,
		text:     text,
		loc:      loc,
		now:      time.Now,
		log:      log.With(slog.String("component", "reminder")),
	}
}

// ProcessTask implements asynq.Handler. Per-user failures are counted, not retried,
// so one broken chat or lookup does not resend to everyone else. Scheduled tasks
// carry their date, so a retry after midnight still targets the scheduled day.
func (h *ReminderHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.ReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "reminder: failed to decode payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("decode reminder payload: %w", asynq.SkipRetry)
	}

	date := civil.Today(h.now(), h.loc)
	if payload.Date != "" {
		parsed, err := civil.Parse(payload.Date)
		if err != nil {
			return fmt.Errorf("reminder date %q: %w", payload.Date, asynq.SkipRetry)
		}
		date = parsed
	}

	return h.Remind(ctx, date)
}

// Remind messages every linked user with nothing recorded on date.
func (h *ReminderHandler) Remind(ctx context.Context, date civil.Date) error {
	users, err := h.ledger.Users(ctx)
	if err != nil {
		return err
	}

	for _, u := range users {
		if u.TelegramID == 0 {
			continue
		}

		days, err := h.ledger.HistoryBetween(ctx, u.ID, date, date)
		if err != nil {
			metrics.RecordReminder("failed")
			h.log.ErrorContext(ctx, "reminder lookup failed", slog.String("user_id", u.ID), slog.Any("error", err))
			continue
		}
		if len(days) > 0 {
			metrics.RecordReminder("skipped")
			continue
		}

		already, err := h.deliver(ctx, date, u)
		switch {
		case already:
			metrics.RecordReminder("already_sent")
		case err == nil:
			metrics.RecordReminder("sent")
			h.log.InfoContext(ctx, "reminder sent", slog.String("user_id", u.ID), slog.String("date", date.String()))
		case stderrors.Is(err, apperrors.ErrCircuitOpen):
			metrics.RecordReminder("circuit_open")
			h.log.WarnContext(ctx, "reminder suppressed by open circuit", slog.String("user_id", u.ID))
		default:
			metrics.RecordReminder("failed")
			h.log.ErrorContext(ctx, "reminder delivery failed", slog.String("user_id", u.ID), slog.Any("error", err))
		}
	}

	return nil
}

// deliver notifies u once per date. already reports a send made by an earlier or concurrent run.
func (h *ReminderHandler) deliver(ctx context.Context, date civil.Date, u domain.User) (already bool, err error) {
	send := func(ctx context.Context) ([]byte, error) {
		return nil, h.breaker.Call(func() error {
			return h.notifier.Notify(ctx, u.TelegramID, h.text)
		})
	}

	if h.sent == nil {
		_, err = send(ctx)
		return false, err
	}

	res, err := h.sent.Execute(ctx, idempotency.GenerateKey("reminder", date.String(), u.ID), sentTTL, send)
	if stderrors.Is(err, idempotency.ErrRequestInProgress) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return res.FromCache, nil
}
