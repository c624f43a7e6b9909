package errors

import (
	"errors"
	"sync"
	"time"

	"github.com/Proton-105/workout-ledger/pkg/metrics"
)

// BreakerSettings tune when a CircuitBreaker opens and how it recovers.
type BreakerSettings struct {
	// FailureRatio opens the circuit once failures/requests reaches it.
	FailureRatio float64
	// MinRequests is the sample size needed before FailureRatio is evaluated.
	MinRequests int
	// Cooldown is how long the circuit stays open before probing again.
	Cooldown time.Duration
	// Probes is the number of half-open calls that must succeed to close the circuit.
	Probes int
}

// DefaultBreakerSettings suit a chat API that is called a handful of times per reminder run.
var DefaultBreakerSettings = BreakerSettings{
	FailureRatio: 0.5,
	MinRequests:  4,
	Cooldown:     time.Minute,
	Probes:       2,
}

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

var (
	ErrCircuitOpen             = errors.New("circuit breaker is open")
	ErrHalfOpenTooManyRequests = errors.New("too many requests in half-open")
)

// CircuitBreaker stops calling a failing dependency once its failure ratio crosses the threshold.
type CircuitBreaker struct {
	name     string
	settings BreakerSettings

	mu       sync.Mutex
	state    State
	failures int
	requests int
	inFlight int
	openedAt time.Time
	now      func() time.Time
}

// NewCircuitBreaker builds a closed breaker for the dependency called name.
// Zero fields of settings fall back to DefaultBreakerSettings.
func NewCircuitBreaker(name string, settings BreakerSettings) *CircuitBreaker {
	if settings.FailureRatio <= 0 {
		settings.FailureRatio = DefaultBreakerSettings.FailureRatio
	}
	if settings.MinRequests <= 0 {
		settings.MinRequests = DefaultBreakerSettings.MinRequests
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = DefaultBreakerSettings.Cooldown
	}
	if settings.Probes <= 0 {
		settings.Probes = DefaultBreakerSettings.Probes
	}

	cb := &CircuitBreaker{name: name, settings: settings, now: time.Now}
	metrics.SetCircuitState(name, int(StateClosed))
	return cb
}

// Call runs fn unless the circuit is open. Errors from fn count as failures and are returned as is.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err == nil)
	return err
}

// State reports the current state, moving an expired open circuit to half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.expireLocked()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.expireLocked()
	switch cb.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight+cb.requests >= cb.settings.Probes {
			return ErrHalfOpenTooManyRequests
		}
	}

	cb.inFlight++
	return nil
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.inFlight--
	cb.requests++
	if !ok {
		cb.failures++
	}

	switch cb.state {
	case StateHalfOpen:
		if !ok {
			cb.setStateLocked(StateOpen)
		} else if cb.requests >= cb.settings.Probes {
			cb.setStateLocked(StateClosed)
		}
	case StateClosed:
		if cb.requests >= cb.settings.MinRequests &&
			float64(cb.failures)/float64(cb.requests) >= cb.settings.FailureRatio {
			cb.setStateLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) expireLocked() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.settings.Cooldown {
		cb.setStateLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) setStateLocked(next State) {
	cb.state = next
	cb.failures = 0
	cb.requests = 0
	if next == StateOpen {
		cb.openedAt = cb.now()
	}
	metrics.SetCircuitState(cb.name, int(next))
}
