package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Proton-105/workout-ledger/internal/idempotency"
)

const (
	// IdempotencyKeyHeader carries the client-chosen key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency store.
	ReplayedHeader = "Idempotent-Replayed"
)

type capturedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// replayHeaders are the response headers kept for replay.
var replayHeaders = []string{"Content-Type", "Location"}

// bufferedWriter holds a response in memory until the handler finishes.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// Idempotency replays the first response of a POST retried with the same Idempotency-Key.
// Requests without the header pass through. scope distinguishes callers sharing a key.
func Idempotency(manager idempotency.Manager, scope SubjectFunc, ttl time.Duration, log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if manager == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(IdempotencyKeyHeader)
			if raw == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			subject := ""
			if scope != nil {
				subject = scope(r)
			}
			key := idempotency.GenerateKey("http", r.Method, r.URL.Path, subject, raw)

			buf := &bufferedWriter{header: http.Header{}}
			ran := false

			result, err := manager.Execute(r.Context(), key, ttl, func(context.Context) ([]byte, error) {
				ran = true
				// r is passed as is so routing data set by the mux stays visible to outer middleware
				next.ServeHTTP(buf, r)
				if buf.status >= http.StatusInternalServerError {
					return nil, errServerFailure
				}
				return encodeCaptured(buf)
			})

			switch {
			case err == nil:
				if err := writeCaptured(w, result.Payload, result.FromCache); err != nil {
					log.Error("failed to write idempotent response", slog.String("key", key), slog.Any("error", err))
				}
			case errors.Is(err, idempotency.ErrRequestInProgress):
				http.Error(w, "A request with this Idempotency-Key is still in progress.", http.StatusConflict)
			case ran:
				if !errors.Is(err, errServerFailure) {
					log.Warn("idempotency store failed after handler ran", slog.String("key", key), slog.Any("error", err))
				}
				flush(w, buf)
			default:
				log.Warn("idempotency store unavailable", slog.String("key", key), slog.Any("error", err))
				next.ServeHTTP(w, r)
			}
		})
	}
}

func encodeCaptured(buf *bufferedWriter) ([]byte, error) {
	captured := capturedResponse{Status: buf.status, Header: http.Header{}, Body: buf.body.Bytes()}
	if captured.Status == 0 {
		captured.Status = http.StatusOK
	}
	for _, name := range replayHeaders {
		if v := buf.header.Get(name); v != "" {
			captured.Header.Set(name, v)
		}
	}
	return json.Marshal(captured)
}

func writeCaptured(w http.ResponseWriter, payload []byte, replayed bool) error {
	var captured capturedResponse
	if err := json.Unmarshal(payload, &captured); err != nil {
		return fmt.Errorf("decode stored response: %w", err)
	}

	for name, values := range captured.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	w.WriteHeader(captured.Status)
	_, err := w.Write(captured.Body)
	return err
}

func flush(w http.ResponseWriter, buf *bufferedWriter) {
	for name, values := range buf.header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	status := buf.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf.body.Bytes())
}

// errServerFailure keeps 5xx responses out of the store so a retry runs again.
var errServerFailure = errors.New("handler responded with a server error")
