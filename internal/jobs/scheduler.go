package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/Proton-105/workout-ledger/internal/civil"
)

// DefaultReminderCron fires at 21:00 in the scheduler location.
const DefaultReminderCron = "0 21 * * *"

// scheduleSync is how often the dated reminder config is refreshed.
const scheduleSync = time.Minute

// Scheduler enqueues the daily reminder on a cron spec.
type Scheduler interface {
	Start() error
	Shutdown()
}

type scheduler struct {
	manager  *asynq.PeriodicTaskManager
	cronspec string
	log      *slog.Logger
}

// NewScheduler evaluates cronspec in loc. Every enqueued reminder carries the date
// of the firing it belongs to.
func NewScheduler(redisOpt asynq.RedisConnOpt, cronspec string, loc *time.Location, log *slog.Logger) (Scheduler, error) {
	if cronspec == "" {
		cronspec = DefaultReminderCron
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}

	provider, err := newReminderSchedule(cronspec, loc)
	if err != nil {
		return nil, err
	}

	manager, err := asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		PeriodicTaskConfigProvider: provider,
		RedisConnOpt:               redisOpt,
		SchedulerOpts:              &asynq.SchedulerOpts{Location: loc},
		SyncInterval:               scheduleSync,
	})
	if err != nil {
		return nil, fmt.Errorf("reminder schedule: %w", err)
	}

	return &scheduler{manager: manager, cronspec: cronspec, log: log}, nil
}

// Start runs the scheduler in the background without installing signal handlers.
func (s *scheduler) Start() error {
	s.log.InfoContext(context.Background(), "scheduler: starting", slog.String("cron", s.cronspec))
	return s.manager.Start()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")

	s.manager.Shutdown()
}

// reminderSchedule stamps the reminder task with the date of the next firing. Once a
// firing passes, the next sync swaps in the following day's task.
type reminderSchedule struct {
	cronspec string
	schedule cron.Schedule
	loc      *time.Location
	now      func() time.Time
}

func newReminderSchedule(cronspec string, loc *time.Location) (*reminderSchedule, error) {
	schedule, err := cron.ParseStandard(cronspec)
	if err != nil {
		return nil, fmt.Errorf("reminder cron %q: %w", cronspec, err)
	}

	return &reminderSchedule{cronspec: cronspec, schedule: schedule, loc: loc, now: time.Now}, nil
}

// NextDate is the calendar day, in the schedule location, of the next firing.
func (r *reminderSchedule) NextDate() civil.Date {
	return civil.Of(r.schedule.Next(r.now().In(r.loc)))
}

// GetConfigs implements asynq.PeriodicTaskConfigProvider.
func (r *reminderSchedule) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	task, err := NewReminderTask(r.NextDate().String())
	if err != nil {
		return nil, err
	}

	return []*asynq.PeriodicTaskConfig{{Cronspec: r.cronspec, Task: task}}, nil
}
