package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/workout-ledger/pkg/logger"
	"github.com/Proton-105/workout-ledger/pkg/metrics"
)

// Handler logs errors, forwards serious ones to Sentry and picks the message shown to users.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

// NewHandler constructs a Handler; sentryEnabled gates reporting.
func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// Handle reports err and returns the user-facing message and whether the caller may retry.
// Errors that are not AppErrors are reported as high severity with the generic message.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log := h.log
	if log == nil {
		log = slog.Default()
	}

	code, severity, retryable, userMessage := "unknown", SeverityHigh, false, defaultUserMessage
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		code, severity, retryable = appErr.Code, appErr.Severity, appErr.Retryable
		if appErr.UserMessage != "" {
			userMessage = appErr.UserMessage
		}
	}

	metrics.RecordError(code, string(severity))

	level := slog.LevelError
	if severity == SeverityLow {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("code", code),
		slog.String("severity", string(severity)),
		slog.Bool("retryable", retryable),
		slog.Any("error", err),
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}
	log.LogAttrs(ctx, level, "request failed", attrs...)

	if h.sentryEnabled && (severity == SeverityHigh || severity == SeverityCritical) {
		h.report(ctx, err, code, severity)
	}

	return userMessage, retryable
}

func (h *Handler) report(ctx context.Context, err error, code string, severity Severity) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("code", code)
		scope.SetTag("severity", string(severity))
		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}
		hub.CaptureException(err)
	})
}
