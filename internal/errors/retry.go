package errors

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy is a capped exponential backoff.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy covers a database that is still starting next to the service.
var DefaultRetryPolicy = RetryPolicy{
	Attempts: 4,
	Initial:  200 * time.Millisecond,
	Max:      5 * time.Second,
}

// WithRetry runs fn under DefaultRetryPolicy.
func WithRetry(ctx context.Context, fn func() error) error {
	return DefaultRetryPolicy.Do(ctx, fn)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts run out.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	attempts := max(p.Attempts, 1)
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn()
		if err == nil || !IsRetryable(err) || attempt >= attempts {
			return err
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff returns the wait after the given failed attempt, starting at Initial.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

// IsRetryable reports whether err carries a retryable AppError.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}
	return false
}
