package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// ErrReminderQueued is returned when a reminder for the same date is already pending.
var ErrReminderQueued = errors.New("reminder already queued for this date")

// Manager enqueues reminder tasks outside the cron schedule.
type Manager interface {
	EnqueueReminder(ctx context.Context, date string) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		client: asynq.NewClient(redisOpt),
		log:    log.With(slog.String("component", "jobs")),
	}
}

// EnqueueReminder queues a reminder for date, or for the processing day when date is empty.
func (m *manager) EnqueueReminder(ctx context.Context, date string) (*asynq.TaskInfo, error) {
	task, err := NewReminderTask(date)
	if err != nil {
		return nil, fmt.Errorf("build reminder task: %w", err)
	}

	info, err := m.client.EnqueueContext(ctx, task, reminderOptions(date)...)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		return nil, ErrReminderQueued
	case err != nil:
		return nil, fmt.Errorf("enqueue reminder: %w", err)
	}

	m.log.Info("reminder enqueued",
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue),
		slog.String("date", date),
	)
	return info, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}

// reminderOptions pins dated reminders to a task id so one date is never queued twice.
func reminderOptions(date string) []asynq.Option {
	if date == "" {
		return nil
	}
	return []asynq.Option{asynq.TaskID(TaskTypeReminder + ":" + date)}
}
