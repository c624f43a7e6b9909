package lifecycle

import "context"

// Stage orders shutdown hooks; lower stages finish before higher ones start.
type Stage int

const (
	// StageIngress stops accepting work: HTTP server, bot poller, job scheduler.
	StageIngress Stage = iota
	// StageWorkers drains in-flight background work.
	StageWorkers
	// StageResources closes connections: database, Redis, log flushers.
	StageResources
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Stage Stage
	Fn    func(ctx context.Context) error
}
