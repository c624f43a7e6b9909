package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/Proton-105/workout-ledger/internal/health"
)

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Probes answers /healthz and /readyz. Readiness fails once draining starts
// or while any registered component check fails.
type Probes struct {
	log      *slog.Logger
	checker  *health.Checker
	draining atomic.Bool
}

var _ HealthChecker = (*Probes)(nil)

// NewProbes creates probes backed by checker; a nil checker makes readiness depend on draining only.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{log: log, checker: checker}
}

// Liveness reports success while the process can serve requests at all.
func (p *Probes) Liveness(ctx context.Context) error {
	p.log.Debug("liveness probe called")
	return nil
}

// Readiness runs component checks.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return fmt.Errorf("shutting down")
	}
	if p.checker == nil {
		return nil
	}

	report := p.checker.Check(ctx)
	if report.Healthy {
		return nil
	}
	return fmt.Errorf("unhealthy components: %s", strings.Join(report.Failing(), ", "))
}

// Report returns the detailed component report.
func (p *Probes) Report(ctx context.Context) health.Report {
	if p.checker == nil {
		return health.Report{Healthy: !p.draining.Load(), Components: map[string]string{}}
	}
	report := p.checker.Check(ctx)
	if p.draining.Load() {
		report.Healthy = false
	}
	return report
}

// Drain marks the service as not ready so load balancers stop routing to it.
func (p *Probes) Drain() {
	if p.draining.CompareAndSwap(false, true) {
		p.log.Info("readiness switched off for shutdown")
	}
}
