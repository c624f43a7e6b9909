// Package idempotency replays the stored result of a request retried under the same key.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrRequestInProgress is returned while another request holds the key.
var ErrRequestInProgress = errors.New("request with this key is already in progress")

// DefaultTTL keeps completed results for a day.
const DefaultTTL = 24 * time.Hour

// lockTTL bounds how long a crashed request can block its key.
const lockTTL = time.Minute

// Operation produces the payload stored for replay.
type Operation func(ctx context.Context) ([]byte, error)

// Result is what Execute returns; FromCache marks a replay.
type Result struct {
	Payload   []byte
	FromCache bool
}

// Manager runs operations at most once per key.
type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store Store
	log   *slog.Logger
}

// NewManager builds a Manager over store.
func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store: store,
		log:   log,
	}
}

func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record != nil && record.Status == StatusCompleted {
		return &Result{Payload: record.Response, FromCache: true}, nil
	}

	locked, err := m.store.Lock(ctx, key, lockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		// the holder may have finished between Get and Lock
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if record != nil && record.Status == StatusCompleted {
			return &Result{Payload: record.Response, FromCache: true}, nil
		}
		return nil, ErrRequestInProgress
	}
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	payload, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: payload}, ttl); err != nil {
		return nil, err
	}

	return &Result{Payload: payload}, nil
}
