package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// asynqLogger routes asynq's internal logging into slog.
type asynqLogger struct {
	log *slog.Logger
}

func newAsynqLogger(log *slog.Logger) *asynqLogger {
	if log == nil {
		log = slog.Default()
	}
	return &asynqLogger{log: log.With(slog.String("component", "asynq"))}
}

func (l *asynqLogger) Debug(args ...interface{}) { l.emit(slog.LevelDebug, args) }
func (l *asynqLogger) Info(args ...interface{})  { l.emit(slog.LevelInfo, args) }
func (l *asynqLogger) Warn(args ...interface{})  { l.emit(slog.LevelWarn, args) }
func (l *asynqLogger) Error(args ...interface{}) { l.emit(slog.LevelError, args) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.emit(slog.LevelError, args)
	os.Exit(1)
}

func (l *asynqLogger) emit(level slog.Level, args []interface{}) {
	l.log.Log(context.Background(), level, fmt.Sprint(args...))
}
