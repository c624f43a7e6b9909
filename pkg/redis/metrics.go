package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	redisRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_requests_total",
			Help: "Total number of Redis requests issued by the profile cache and health checks, by method.",
		},
		[]string{"method"},
	)
	redisErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total number of failed Redis requests by method. Cache misses are not errors.",
		},
		[]string{"method"},
	)
	redisRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_request_duration_seconds",
			Help:    "Redis request latency by method.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method"},
	)
)

// MetricsClient is a KV that records Prometheus metrics for every call.
type MetricsClient struct {
	next *Client
}

// NewMetricsClient creates an instrumented Redis client.
func NewMetricsClient(next *Client) *MetricsClient {
	return &MetricsClient{next: next}
}

func (m *MetricsClient) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	result, err := m.next.Get(ctx, key)
	if IsNil(err) {
		observe("get", start, nil)
	} else {
		observe("get", start, err)
	}
	return result, err
}

func (m *MetricsClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := m.next.Set(ctx, key, value, ttl)
	observe("set", start, err)
	return err
}

func (m *MetricsClient) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := m.next.Delete(ctx, key)
	observe("delete", start, err)
	return err
}

// Ping satisfies the health checker's Pinger.
func (m *MetricsClient) Ping(ctx context.Context) error {
	start := time.Now()
	err := m.next.Ping(ctx)
	observe("ping", start, err)
	return err
}

// Close closes the underlying client.
func (m *MetricsClient) Close() error {
	return m.next.Close()
}

func observe(method string, start time.Time, err error) {
	redisRequestsTotal.WithLabelValues(method).Inc()
	redisRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		redisErrorsTotal.WithLabelValues(method).Inc()
	}
}
