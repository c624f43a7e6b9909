// Package metrics exposes the Prometheus instruments shared across the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations labeled by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	ledgerOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	skipPoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_skip_points",
			Help: "Skip points currently available per user",
		},
		[]string{"user"},
	)
	workoutStreak = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_workout_streak",
			Help: "Current consecutive workout streak per user",
		},
		[]string{"user"},
	)
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	remindersSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Total number of daily reminders by result",
		},
		[]string{"result"},
	)
	tasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_tasks_processed_total",
			Help: "Total number of background tasks processed by type and status",
		},
		[]string{"type", "status"},
	)
	taskDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobs_task_duration_seconds",
			Help:    "Duration of background tasks in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
	circuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per dependency: 0 closed, 1 open, 2 half-open",
		},
		[]string{"name"},
	)
)

// RecordLedgerOperation counts one ledger call and its latency.
func RecordLedgerOperation(operation, outcome string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	ledgerOperationsTotal.WithLabelValues(operation, outcome).Inc()
	ledgerOperationDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetUserState publishes the counters of one user.
func SetUserState(userID string, points, streak int) {
	if userID == "" {
		return
	}

	skipPoints.WithLabelValues(userID).Set(float64(points))
	workoutStreak.WithLabelValues(userID).Set(float64(streak))
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordHTTPRequest tracks a served request.
func RecordHTTPRequest(route, method string, code int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}

	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// RecordReminder counts a reminder delivery attempt.
func RecordReminder(result string) {
	if result == "" {
		result = "unknown"
	}

	remindersSentTotal.WithLabelValues(result).Inc()
}

// RecordTask counts one processed background task.
func RecordTask(taskType, status string, duration time.Duration) {
	tasksProcessedTotal.WithLabelValues(taskType, status).Inc()
	taskDurationSeconds.WithLabelValues(taskType).Observe(duration.Seconds())
}

// SetCircuitState publishes the state of a named circuit breaker.
func SetCircuitState(name string, state int) {
	if name == "" {
		name = "unknown"
	}

	circuitState.WithLabelValues(name).Set(float64(state))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
