// Package logger builds the application's slog handler chain.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/workout-ledger/pkg/config"
)

// New creates the application logger: JSON or text output to stdout (and optionally a rotated file),
// sensitive attributes masked, error records forwarded to Sentry when enabled.
func New(cfg config.Config) *slog.Logger {
	return slog.New(NewHandler(cfg, os.Stdout))
}

// NewHandler assembles the handler chain writing to out.
func NewHandler(cfg config.Config, out io.Writer) slog.Handler {
	level := ParseLevel(cfg.Logger.Level)

	if cfg.Logger.File != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.Logger.File,
			MaxSize:    cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAge:     cfg.Logger.MaxAgeDays,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	var base slog.Handler
	if strings.EqualFold(cfg.Logger.Format, "text") {
		base = slog.NewTextHandler(out, opts)
	} else {
		base = slog.NewJSONHandler(out, opts)
	}

	base = base.WithAttrs([]slog.Attr{slog.String("env", cfg.AppEnv)})

	if cfg.Sentry.Enabled {
		sentryHandler := slogsentry.Option{Level: slog.LevelError}.NewSentryHandler()
		base = NewFanoutHandler(base, sentryHandler)
	}

	return NewMaskingHandler(base)
}

// ParseLevel maps a textual level to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
