package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/internal/idempotency"
	"github.com/Proton-105/workout-ledger/internal/ratelimit"
	"github.com/Proton-105/workout-ledger/pkg/config"
	"github.com/Proton-105/workout-ledger/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mark("outer"), nil, mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestLogging_RecordsStatusAndCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), logger.Middleware, Logging(log))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/zzz/days", nil))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=404")
	assert.Contains(t, out, "correlation_id="+rec.Header().Get(logger.CorrelationIDHeader))
}

func TestRecovery(t *testing.T) {
	h := Recovery(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit(t *testing.T) {
	guard := ratelimit.NewGuard(ratelimit.NewRules(config.RateLimitConfig{
		Enabled:   true,
		PerClient: config.RateLimitRule{Limit: 2, Window: "1m"},
	}), ratelimit.NewMemoryLimiter(testLogger()))

	h := RateLimit(guard, ratelimit.ScopeClient, nil, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1001").Code)

	rejected := do("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.NotEmpty(t, rejected.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1000").Code)
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	var calls atomic.Int32
	h := Idempotency(idempotency.NewManager(idempotency.NewMemoryStore(), testLogger()), nil, time.Hour, testLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = fmt.Fprintf(w, `{"call":%d}`, n)
		}))

	post := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/workout", strings.NewReader(""))
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := post("k-1")
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(ReplayedHeader))

	second := post("k-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), calls.Load())

	post("")
	post("k-2")
	assert.Equal(t, int32(3), calls.Load())
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	var calls atomic.Int32
	h := Idempotency(idempotency.NewManager(idempotency.NewMemoryStore(), testLogger()), nil, time.Hour, testLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "down", http.StatusInternalServerError)
		}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/skip", nil)
		req.Header.Set(IdempotencyKeyHeader, "same")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}
	assert.Equal(t, int32(2), calls.Load())
}

type busyManager struct{}

func (busyManager) Execute(context.Context, string, time.Duration, idempotency.Operation) (*idempotency.Result, error) {
	return nil, idempotency.ErrRequestInProgress
}

func TestIdempotency_InProgress(t *testing.T) {
	h := Idempotency(busyManager{}, nil, time.Hour, testLogger())(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodPost, "/skip", nil)
	req.Header.Set(IdempotencyKeyHeader, "same")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	var seen string
	mux.HandleFunc("GET /api/users/{id}/days", func(w http.ResponseWriter, r *http.Request) {
		seen = r.Pattern
	})

	Metrics(mux).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/users/a/days", nil))
	assert.Equal(t, "GET /api/users/{id}/days", seen)
}
