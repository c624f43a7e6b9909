// Package ratelimit throttles web clients and ledger users with sliding windows.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets, at least 1.
func (r *Result) RetryAfter(now time.Time) int {
	if r == nil {
		return 1
	}
	secs := int(r.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter describes a rate-limiting strategy interface.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ErrLimitExceeded indicates the rate limit has been reached for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Guard applies configured rules through a Limiter.
type Guard struct {
	rules   *Rules
	limiter Limiter
}

// NewGuard binds rules to a limiter backend.
func NewGuard(rules *Rules, limiter Limiter) *Guard {
	return &Guard{rules: rules, limiter: limiter}
}

// Allow checks subject against the rule of scope. Disabled rules, whitelisted subjects
// and a nil Guard always pass. A rejected check returns ErrLimitExceeded with the result.
func (g *Guard) Allow(ctx context.Context, scope Scope, subject string) (*Result, error) {
	if g == nil || g.limiter == nil || g.rules == nil || !g.rules.Enabled() || g.rules.IsWhitelisted(subject) {
		return &Result{Allowed: true}, nil
	}

	limit, window, err := g.rules.Limit(scope)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		return &Result{Allowed: true}, nil
	}

	result, err := g.limiter.Check(ctx, string(scope)+":"+subject, limit, window)
	if err != nil {
		return result, err
	}
	if !result.Allowed {
		return result, ErrLimitExceeded
	}

	return result, nil
}
