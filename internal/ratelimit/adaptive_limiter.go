package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// primaryCooldown is how long the fallback serves alone after the primary fails.
const primaryCooldown = 30 * time.Second

var (
	rateLimitChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_checks_total",
		Help: "Total number of rate limit checks by backend and result.",
	}, []string{"backend", "result"})

	rateLimitRedisErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_redis_errors_total",
		Help: "Total number of Redis errors encountered by the limiter.",
	})
)

// AdaptiveLimiter prefers the shared Redis limiter. When Redis fails it switches to the
// in-memory limiter at half the limit for primaryCooldown before trying Redis again.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	downUntil time.Time
}

var _ Limiter = (*AdaptiveLimiter)(nil)

func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		log:      log,
		now:      time.Now,
	}
}

func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if a.primaryAvailable() {
		result, err := a.primary.Check(ctx, key, limit, window)
		if err == nil {
			rateLimitChecksTotal.WithLabelValues("redis", resultLabel(result.Allowed)).Inc()
			return result, nil
		}

		rateLimitRedisErrorsTotal.Inc()
		a.markPrimaryDown()
		a.log.Warn("redis limiter failed, using in-memory limits",
			slog.String("key", key),
			slog.Duration("cooldown", primaryCooldown),
			slog.Any("error", err),
		)
	}

	result, err := a.fallback.Check(ctx, key, max(limit/2, 1), window)
	if err != nil {
		return result, err
	}

	rateLimitChecksTotal.WithLabelValues("fallback", resultLabel(result.Allowed)).Inc()
	return result, nil
}

func (a *AdaptiveLimiter) primaryAvailable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.now().Before(a.downUntil)
}

func (a *AdaptiveLimiter) markPrimaryDown() {
	a.mu.Lock()
	a.downUntil = a.now().Add(primaryCooldown)
	a.mu.Unlock()
}

func resultLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "rejected"
}
