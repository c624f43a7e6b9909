package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/domain"
	"github.com/Proton-105/workout-ledger/internal/jobs"
	"github.com/Proton-105/workout-ledger/internal/ledger"
)

// MigrateCmd implements the 'migrate' command.
type MigrateCmd struct{}

func (m *MigrateCmd) Run(root *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := root.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return a.migrate(ctx)
}

type recordFlags struct {
	User string `short:"u" required:"" help:"User id"`
	Date string `short:"d" help:"Day as YYYY-MM-DD (default today in the configured timezone)"`
}

// WorkoutCmd implements the 'workout' command.
type WorkoutCmd struct {
	recordFlags `embed:""`
}

func (w *WorkoutCmd) Run(root *CLI) error {
	return record(root, w.recordFlags, (*ledger.Service).RecordWorkout)
}

// SkipCmd implements the 'skip' command.
type SkipCmd struct {
	recordFlags `embed:""`
}

func (s *SkipCmd) Run(root *CLI) error {
	return record(root, s.recordFlags, (*ledger.Service).RecordSkip)
}

type recordFunc func(*ledger.Service, context.Context, string, civil.Date) (ledger.Outcome, error)

func record(root *CLI, flags recordFlags, fn recordFunc) error {
	ctx := context.Background()

	a, err := root.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.migrate(ctx); err != nil {
		return err
	}

	led, users, err := a.services(ctx)
	if err != nil {
		return err
	}

	date := civil.Today(time.Now(), a.loc)
	if flags.Date != "" {
		if date, err = civil.Parse(flags.Date); err != nil {
			return err
		}
	}

	outcome, err := fn(led, ctx, flags.User, date)
	if err != nil {
		return err
	}

	profile, err := users.Profile(ctx, flags.User)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s: %s (skip points %d/%d, streak %d)\n",
		profile.User.ID, date, outcome,
		profile.State.SkipPoints, domain.MaxSkipPoints, profile.State.ConsecWorkout)
	return nil
}

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	User string `short:"u" required:"" help:"User id"`
	From string `help:"First day, inclusive"`
	To   string `help:"Last day, inclusive"`
}

func (h *HistoryCmd) Run(root *CLI) error {
	ctx := context.Background()

	a, err := root.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	led := ledger.NewService(a.store, a.log)

	var days []domain.DayRecord
	if h.From != "" || h.To != "" {
		from, err := civil.Parse(h.From)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := civil.Parse(h.To)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		days, err = led.HistoryBetween(ctx, h.User, from, to)
		if err != nil {
			return err
		}
	} else if days, err = led.History(ctx, h.User); err != nil {
		return err
	}

	for _, d := range days {
		fmt.Printf("%s\t%s\n", d.Date, d.Status)
	}
	return nil
}

// UsersCmd implements the 'users' command.
type UsersCmd struct{}

func (u *UsersCmd) Run(root *CLI) error {
	ctx := context.Background()

	a, err := root.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	_, users, err := a.services(ctx)
	if err != nil {
		return err
	}

	profiles, err := users.Profiles(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSKIP POINTS\tSTREAK\tTELEGRAM")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
			p.User.ID, p.User.DisplayName, p.State.SkipPoints, p.State.ConsecWorkout, p.User.TelegramID)
	}
	return w.Flush()
}

// RemindCmd implements the 'remind' command.
type RemindCmd struct {
	Date string `short:"d" help:"Day to check as YYYY-MM-DD (default today when the worker runs)"`
}

func (r *RemindCmd) Run(root *CLI) error {
	ctx := context.Background()

	a, err := root.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if !a.cfg.IsRedisEnabled() {
		return fmt.Errorf("reminders need redis.addr to be configured")
	}
	if r.Date != "" {
		if _, err := civil.Parse(r.Date); err != nil {
			return err
		}
	}

	manager := jobs.NewManager(asynqRedisOpt(a), a.log)
	defer manager.Close()

	info, err := manager.EnqueueReminder(ctx, r.Date)
	if errors.Is(err, jobs.ErrReminderQueued) {
		fmt.Printf("reminder for %s is already queued\n", r.Date)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("enqueued %s (%s) on queue %s\n", info.Type, info.ID, info.Queue)
	return nil
}

func asynqRedisOpt(a *app) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	}
}
