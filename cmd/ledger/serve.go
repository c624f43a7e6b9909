package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Proton-105/workout-ledger/internal/bot"
	"github.com/Proton-105/workout-ledger/internal/domain"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/health"
	"github.com/Proton-105/workout-ledger/internal/i18n"
	"github.com/Proton-105/workout-ledger/internal/idempotency"
	"github.com/Proton-105/workout-ledger/internal/jobs"
	jobhandlers "github.com/Proton-105/workout-ledger/internal/jobs/handlers"
	"github.com/Proton-105/workout-ledger/internal/ledger"
	"github.com/Proton-105/workout-ledger/internal/lifecycle"
	"github.com/Proton-105/workout-ledger/internal/ratelimit"
	"github.com/Proton-105/workout-ledger/internal/user"
	"github.com/Proton-105/workout-ledger/internal/usercache"
	"github.com/Proton-105/workout-ledger/internal/web"
	"github.com/Proton-105/workout-ledger/pkg/config"
	"github.com/Proton-105/workout-ledger/pkg/graceful"
	"github.com/Proton-105/workout-ledger/pkg/redis"
)

const (
	healthCheckTimeout = 3 * time.Second
	cleanupInterval    = time.Minute
	limiterStateMaxAge = 5 * time.Minute
	defaultShutdown    = 30 * time.Second
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct{}

func (s *ServeCmd) Run(root *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := root.bootstrap(ctx)
	if err != nil {
		return err
	}
	log := a.log

	log.Info("starting workout ledger",
		slog.String("env", a.cfg.AppEnv),
		slog.String("timezone", a.cfg.Timezone),
		slog.String("driver", string(a.dialect)),
		slog.String("http_port", a.cfg.Server.Port),
	)

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register(lifecycle.StageResources, "database", func(context.Context) error {
		a.close()
		return nil
	})

	if err := apperrors.WithRetry(ctx, func() error {
		if err := a.migrate(ctx); err != nil {
			return apperrors.NewDatabaseError(err)
		}
		return nil
	}); err != nil {
		return runShutdown(shutdown, a.cfg.Server.ShutdownTimeout, err)
	}

	checker := health.NewChecker(log, healthCheckTimeout)
	checker.AddCheck("database", health.NewDBChecker(a.db))

	// Redis is optional; every consumer has an in-process fallback.
	var (
		redisClient *redis.Client
		cacheKV     redis.KV
	)
	if a.cfg.IsRedisEnabled() {
		rc, err := redis.New(ctx, a.cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, using in-memory fallbacks", slog.Any("error", err))
		} else {
			redisClient = rc
			metricsClient := redis.NewMetricsClient(rc)
			cacheKV = metricsClient
			checker.AddCheck("redis", health.NewRedisChecker(metricsClient))
			shutdown.Register(lifecycle.StageResources, "redis", func(context.Context) error {
				return metricsClient.Close()
			})
		}
	}

	cache := usercache.NewCache(cacheKV, a.cfg.Redis.CacheTTL)
	led := ledger.NewService(a.store, log, ledger.WithInvalidator(cache))
	users := user.NewService(led, cache, log)

	configured := user.FromConfig(a.cfg.Users)
	if err := users.Bootstrap(ctx, configured); err != nil {
		return runShutdown(shutdown, a.cfg.Server.ShutdownTimeout, err)
	}

	guard, idem := buildRequestGuards(ctx, a, redisClient)

	probes := lifecycle.NewProbes(checker, log)
	shutdown.Register(lifecycle.StageIngress, "readiness", func(context.Context) error {
		probes.Drain()
		return nil
	})

	webServer, err := web.NewServer(web.Deps{
		Ledger:      led,
		Users:       users,
		Probes:      probes,
		Guard:       guard,
		Idempotency: idem,
		Errors:      a.errors,
		Config:      a.cfg.Web,
		Location:    a.loc,
		Log:         log,
	})
	if err != nil {
		return runShutdown(shutdown, a.cfg.Server.ShutdownTimeout, err)
	}

	var translations *i18n.Manager
	var telegram *bot.Bot
	if a.cfg.Bot.Enabled {
		translations, err = i18n.Load(a.cfg.Bot.Language)
		if err != nil {
			return runShutdown(shutdown, a.cfg.Server.ShutdownTimeout, err)
		}

		telegram, err = bot.New(bot.Deps{
			Config:       a.cfg.Bot,
			Ledger:       led,
			Users:        users,
			Translations: translations,
			Guard:        guard,
			Idempotency:  idem,
			Errors:       a.errors,
			Location:     a.loc,
			Log:          log,
		})
		if err != nil {
			return runShutdown(shutdown, a.cfg.Server.ShutdownTimeout, err)
		}
		checker.AddCheck("telegram", health.NewTelegramChecker(telegram.Telebot()))

		go telegram.Start()
		shutdown.Register(lifecycle.StageIngress, "telegram", func(context.Context) error {
			telegram.Stop()
			return nil
		})
	}

	if err := startReminders(a, led, telegram, translations, redisClient, idem, shutdown); err != nil {
		return runShutdown(shutdown, a.cfg.Server.ShutdownTimeout, err)
	}

	watchConfig(ctx, a, users, configured)

	httpServer := graceful.NewServer(log, a.cfg.Server, webServer.Handler())
	serveErr := httpServer.ListenAndServe(ctx)
	if serveErr != nil {
		log.Error("http server stopped", slog.Any("error", serveErr))
		stop()
	}

	log.Info("workout ledger shutting down")
	return runShutdown(shutdown, a.cfg.Server.ShutdownTimeout, serveErr)
}

// buildRequestGuards picks the Redis or in-memory backends for rate limiting and idempotency
// and starts their cleaners.
func buildRequestGuards(ctx context.Context, a *app, client *redis.Client) (*ratelimit.Guard, idempotency.Manager) {
	memoryLimiter := ratelimit.NewMemoryLimiter(a.log)
	var limiter ratelimit.Limiter = memoryLimiter

	memoryStore := idempotency.NewMemoryStore()
	var store idempotency.Store = memoryStore

	if client != nil {
		limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(client.Client, a.log), memoryLimiter, a.log)
		store = idempotency.NewRedisStore(client.Client, a.log)

		go ratelimit.NewCleaner(client.Client, memoryLimiter, a.log, cleanupInterval, limiterStateMaxAge).Run(ctx)
		go idempotency.NewCleaner(client.Client, memoryStore, a.log, cleanupInterval).Run(ctx)
	} else {
		go ratelimit.NewCleaner(nil, memoryLimiter, a.log, cleanupInterval, limiterStateMaxAge).Run(ctx)
		go idempotency.NewCleaner(nil, memoryStore, a.log, cleanupInterval).Run(ctx)
	}

	return ratelimit.NewGuard(ratelimit.NewRules(a.cfg.RateLimit), limiter), idempotency.NewManager(store, a.log)
}

// startReminders runs the daily reminder when jobs and the bot are enabled. With Redis it
// goes through the asynq scheduler and worker; without Redis an in-process cron fires it.
func startReminders(
	a *app,
	led *ledger.Service,
	telegram *bot.Bot,
	translations *i18n.Manager,
	client *redis.Client,
	sent idempotency.Manager,
	shutdown *lifecycle.Shutdown,
) error {
	if !a.cfg.Jobs.Enabled {
		return nil
	}
	if telegram == nil {
		a.log.Warn("reminders disabled: they need the telegram bot")
		return nil
	}

	text := translations.Translator(a.cfg.Bot.Language).T("reminder.text")
	reminder := jobhandlers.NewReminderHandler(led, telegram, sent,
		apperrors.NewCircuitBreaker("telegram", apperrors.DefaultBreakerSettings), text, a.loc, a.log)

	if client == nil {
		local, err := jobs.NewLocalScheduler(a.cfg.Jobs.ReminderCron, a.loc, reminder, a.log)
		if err != nil {
			return err
		}
		local.Start()
		shutdown.Register(lifecycle.StageWorkers, "local-scheduler", func(context.Context) error {
			return local.Shutdown()
		})
		return nil
	}

	redisOpt := asynqRedisOpt(a)

	worker := jobs.NewWorker(redisOpt, jobs.DefaultQueues, a.cfg.Jobs.Concurrency, a.log)
	worker.RegisterHandler(jobs.TaskTypeReminder, reminder)
	if err := worker.Start(); err != nil {
		return fmt.Errorf("start jobs worker: %w", err)
	}
	shutdown.Register(lifecycle.StageWorkers, "jobs-worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})

	scheduler, err := jobs.NewScheduler(redisOpt, a.cfg.Jobs.ReminderCron, a.loc, a.log)
	if err != nil {
		return fmt.Errorf("register reminder schedule: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start reminder scheduler: %w", err)
	}
	shutdown.Register(lifecycle.StageIngress, "jobs-scheduler", func(context.Context) error {
		scheduler.Shutdown()
		return nil
	})

	return nil
}

// watchConfig applies display name and Telegram mapping edits without a restart.
func watchConfig(ctx context.Context, a *app, users *user.Service, initial []domain.User) {
	var (
		mu      sync.Mutex
		current = initial
	)

	config.Watch(a.viper, func(cfg *config.Config) {
		mu.Lock()
		defer mu.Unlock()

		next := user.FromConfig(cfg.Users)
		if err := users.Reconcile(ctx, current, next); err != nil {
			a.log.Error("config reload failed", slog.Any("error", err))
			return
		}
		current = next
		a.log.Info("config reloaded", slog.Int("users", len(next)))
	}, func(err error) {
		a.log.Warn("ignoring invalid config edit", slog.Any("error", err))
	})
}

func runShutdown(shutdown *lifecycle.Shutdown, timeout time.Duration, cause error) error {
	if timeout <= 0 {
		timeout = defaultShutdown
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return errors.Join(cause, shutdown.Execute(ctx))
}
