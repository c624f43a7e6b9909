package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/viper"

	"github.com/Proton-105/workout-ledger/internal/database"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/ledger"
	"github.com/Proton-105/workout-ledger/internal/repository"
	"github.com/Proton-105/workout-ledger/internal/user"
	"github.com/Proton-105/workout-ledger/pkg/config"
	"github.com/Proton-105/workout-ledger/pkg/logger"
)

const sentryFlushTimeout = 2 * time.Second

// CLI is the command tree; global flags apply to every subcommand.
type CLI struct {
	Config string `short:"c" help:"Configuration file path (default ./configs/<APP_ENV>.yaml)" type:"path"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the web board, the bot and reminders"`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations"`
	Workout WorkoutCmd `cmd:"" help:"Record a workout"`
	Skip    SkipCmd    `cmd:"" help:"Spend a skip point on a day"`
	History HistoryCmd `cmd:"" help:"Print the days recorded for a user"`
	Users   UsersCmd   `cmd:"" help:"List users with their counters"`
	Remind  RemindCmd  `cmd:"" help:"Enqueue a reminder run now"`

	log *slog.Logger
}

func (c *CLI) logger() *slog.Logger {
	if c.log == nil {
		return slog.Default()
	}
	return c.log
}

// app holds what every subcommand shares once configuration is loaded.
type app struct {
	cfg     *config.Config
	viper   *viper.Viper
	log     *slog.Logger
	loc     *time.Location
	db      *sql.DB
	dialect database.Dialect
	store   *repository.SQLStore
	errors  *apperrors.Handler
}

// bootstrap loads configuration, builds the logger, initializes Sentry and opens the database.
func (c *CLI) bootstrap(ctx context.Context) (*app, error) {
	cfg, v, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}

	if cfg.Sentry.Enabled {
		env := cfg.Sentry.Environment
		if env == "" {
			env = cfg.AppEnv
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			SampleRate:  cfg.Sentry.SampleRate,
			Environment: env,
		}); err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)
	c.log = log

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	var (
		db      *sql.DB
		dialect database.Dialect
	)
	err = apperrors.WithRetry(ctx, func() error {
		var openErr error
		db, dialect, openErr = database.Open(ctx, cfg.Database, log)
		if openErr != nil {
			return apperrors.NewDatabaseError(openErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		viper:   v,
		log:     log,
		loc:     loc,
		db:      db,
		dialect: dialect,
		store:   repository.NewSQLStore(db, dialect, log),
		errors:  apperrors.NewHandler(log, cfg.Sentry.Enabled),
	}, nil
}

// migrate applies the migrations bundled for the configured dialect.
func (a *app) migrate(ctx context.Context) error {
	applied, err := database.NewMigrator(a.db, a.dialect, a.log).ApplyBundled(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	a.log.Info("database migrations applied", slog.Int("applied", applied))
	return nil
}

// services builds the ledger and the user service without a cache and bootstraps the slots.
func (a *app) services(ctx context.Context) (*ledger.Service, *user.Service, error) {
	led := ledger.NewService(a.store, a.log)
	users := user.NewService(led, nil, a.log)
	if err := users.Bootstrap(ctx, user.FromConfig(a.cfg.Users)); err != nil {
		return nil, nil, err
	}
	return led, users, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Error("error closing database", slog.Any("error", err))
	}
	if a.cfg.Sentry.Enabled {
		sentry.Flush(sentryFlushTimeout)
	}
}
