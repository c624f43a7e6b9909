package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/workout-ledger/pkg/metrics"
)

// Worker provides APIs to register handlers and control the background worker lifecycle.
type Worker interface {
	RegisterHandler(taskType string, handler asynq.Handler)
	Start() error
	Shutdown()
}

type worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *slog.Logger
}

var _ Worker = (*worker)(nil)

const (
	defaultConcurrency = 2
	// workerShutdownTimeout bounds how long in-flight reminders may run during shutdown.
	workerShutdownTimeout = 20 * time.Second
)

// NewWorker constructs a Worker backed by an asynq.Server instance.
func NewWorker(redisOpt asynq.RedisConnOpt, queues map[string]int, concurrency int, log *slog.Logger) Worker {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if len(queues) == 0 {
		queues = DefaultQueues
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "jobs"))

	server := asynq.NewServer(redisOpt, asynq.Config{
		Queues:          queues,
		Concurrency:     concurrency,
		ShutdownTimeout: workerShutdownTimeout,
		Logger:          newAsynqLogger(log),
		IsFailure: func(err error) bool {
			return !errors.Is(err, asynq.SkipRetry)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.ErrorContext(ctx, "task failed",
				slog.String("type", task.Type()),
				slog.Int("retry", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err),
			)
		}),
	})

	mux := asynq.NewServeMux()
	mux.Use(observe(log))

	return &worker{
		server: server,
		mux:    mux,
		log:    log,
	}
}

// RegisterHandler wires a task type to the provided handler.
func (w *worker) RegisterHandler(taskType string, handler asynq.Handler) {
	w.mux.Handle(taskType, handler)
}

// Start begins processing in the background; it does not install signal handlers.
func (w *worker) Start() error {
	w.log.Info("jobs worker starting")
	return w.server.Start(w.mux)
}

// Shutdown waits for in-flight tasks and stops the worker.
func (w *worker) Shutdown() {
	w.log.Info("jobs worker shutting down")
	w.server.Shutdown()
}

// observe logs and times every processed task.
func observe(log *slog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, task)

			status := "ok"
			if err != nil {
				status = "error"
			}
			metrics.RecordTask(task.Type(), status, time.Since(start))
			log.DebugContext(ctx, "task processed",
				slog.String("type", task.Type()),
				slog.String("status", status),
				slog.Duration("duration", time.Since(start)),
			)
			return err
		})
	}
}
