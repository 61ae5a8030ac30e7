package orchestrator

import (
	"context"
	"time"

	"courier/internal/logging"
	"courier/internal/queue"
)

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	State        State
	Running      bool
	Draining     bool
	Workers      int
	StatusCounts map[queue.Status]int
	LastError    string

	LastHousekeeping time.Time
	StaleRequeued    int64
}

// Status reports lifecycle state and per-status item counts. A store error is
// reported through LastError with zeroed counts.
func (o *Orchestrator) Status(ctx context.Context) Status {
	o.mu.RLock()
	status := Status{
		State:            o.state,
		Running:          o.state == StateRunning || o.state == StateStopping,
		Draining:         o.state == StateStopping,
		Workers:          o.workers,
		LastHousekeeping: o.lastHousekeeping.At,
		StaleRequeued:    o.lastHousekeeping.Requeued,
	}
	lastErr := o.lastErr
	o.mu.RUnlock()

	counts, err := o.store.StatusCounts(ctx)
	if err != nil {
		o.logger.Warn("failed to read queue stats", logging.Error(err))
		counts = queue.ZeroCounts()
		lastErr = err
	}
	status.StatusCounts = counts
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	return status
}
