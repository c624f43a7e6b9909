package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/Proton-105/workout-ledger/internal/civil"
)

// localRunTimeout bounds one in-process reminder run.
const localRunTimeout = 2 * time.Minute

// Reminder sends the reminders of one day.
type Reminder interface {
	Remind(ctx context.Context, date civil.Date) error
}

// LocalScheduler fires reminders in process on the same cron spec as Scheduler.
// It serves deployments without Redis, where asynq cannot run; nothing is retried.
type LocalScheduler struct {
	scheduler gocron.Scheduler
	reminder  Reminder
	loc       *time.Location
	log       *slog.Logger
}

// NewLocalScheduler evaluates cronspec in loc and calls reminder for the local day.
func NewLocalScheduler(cronspec string, loc *time.Location, reminder Reminder, log *slog.Logger) (*LocalScheduler, error) {
	if cronspec == "" {
		cronspec = DefaultReminderCron
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "local-scheduler"))

	s, err := gocron.NewScheduler(gocron.WithLocation(loc), gocron.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("create local scheduler: %w", err)
	}

	ls := &LocalScheduler{scheduler: s, reminder: reminder, loc: loc, log: log}
	if _, err := s.NewJob(
		gocron.CronJob(cronspec, false),
		gocron.NewTask(ls.fire),
		gocron.WithName(TaskTypeReminder),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("register reminder cron %q: %w", cronspec, err)
	}

	return ls, nil
}

// Start begins firing jobs in the background.
func (s *LocalScheduler) Start() {
	s.log.Info("local reminder scheduler starting")
	s.scheduler.Start()
}

// Shutdown stops the scheduler and waits for a running reminder.
func (s *LocalScheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}

func (s *LocalScheduler) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), localRunTimeout)
	defer cancel()

	date := civil.Today(time.Now(), s.loc)
	if err := s.reminder.Remind(ctx, date); err != nil {
		s.log.Error("local reminder run failed", slog.String("date", date.String()), slog.Any("error", err))
	}
}
