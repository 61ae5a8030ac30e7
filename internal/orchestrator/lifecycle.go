package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courier/internal/logging"
	"courier/internal/queue"
)

const finalRequeueTimeout = 10 * time.Second

// Start spawns the worker pools and the housekeeping loop. Calling Start
// while already running logs and returns nil.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.RLock()
	state := o.state
	o.mu.RUnlock()
	if state != StateStopped {
		o.logger.Info("orchestrator already running; start ignored",
			logging.String("state", string(state)),
			logging.String(logging.FieldEventType, "start_ignored"),
		)
		return nil
	}

	o.setState(StateStarting)
	if _, err := o.store.StatusCounts(ctx); err != nil {
		o.setState(StateStopped)
		o.setLastError(err)
		return fmt.Errorf("orchestrator start: store unavailable: %w", err)
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	housekeepCtx, cancelHousekeep := context.WithCancel(ctx)
	drain := make(chan struct{})

	pools := []pool{
		{name: "interactive", band: queue.InteractiveBand, size: o.cfg.InteractiveWorkers, poll: o.cfg.InteractivePollInterval},
		{name: "background", band: queue.BackgroundBand, size: o.cfg.BackgroundWorkers, poll: o.cfg.BackgroundPollInterval},
	}
	total := 0
	for _, p := range pools {
		for i := 0; i < p.size; i++ {
			w := worker{
				id:   fmt.Sprintf("%s-%d-%s", p.name, i+1, uuid.NewString()[:8]),
				pool: p,
			}
			o.workerWG.Add(1)
			go o.runWorker(workerCtx, drain, w)
			total++
		}
	}
	o.housekeepWG.Add(1)
	go o.runHousekeeping(housekeepCtx)

	o.mu.Lock()
	o.state = StateRunning
	o.workers = total
	o.drain = drain
	o.cancelWorkers = cancelWorkers
	o.cancelHousekeep = cancelHousekeep
	o.mu.Unlock()

	o.logger.Info("orchestrator started",
		logging.Int("interactive_workers", o.cfg.InteractiveWorkers),
		logging.Int("background_workers", o.cfg.BackgroundWorkers),
		logging.Duration("housekeeping_interval", o.cfg.HousekeepingInterval),
		logging.String(logging.FieldEventType, "orchestrator_started"),
	)
	return nil
}

// Stop drains the pools. Workers get the drain timeout to finish their
// current item before being force-cancelled; any item still PROCESSING
// afterwards is requeued. Stop when not running is a no-op.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return nil
	}
	o.state = StateStopping
	drain := o.drain
	cancelWorkers := o.cancelWorkers
	cancelHousekeep := o.cancelHousekeep
	o.mu.Unlock()

	started := time.Now()
	o.logger.Info("orchestrator draining",
		logging.Duration("drain_timeout", o.cfg.DrainTimeout),
		logging.String(logging.FieldEventType, "orchestrator_draining"),
	)

	cancelHousekeep()
	o.housekeepWG.Wait()

	close(drain)
	done := make(chan struct{})
	go func() {
		o.workerWG.Wait()
		close(done)
	}()

	timer := time.NewTimer(o.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logging.WarnWithContext(o.logger, "drain timeout elapsed; cancelling in-flight items", "drain_timeout",
			logging.Duration("drain_timeout", o.cfg.DrainTimeout),
			logging.String(logging.FieldErrorHint, "raise queue.drain_timeout_seconds if handlers routinely run long"),
			logging.String(logging.FieldImpact, "in-flight items are requeued and will run again"),
		)
		cancelWorkers()
		<-done
	case <-ctx.Done():
		cancelWorkers()
		<-done
	}
	cancelWorkers()

	requeueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalRequeueTimeout)
	defer cancel()
	requeued, err := o.store.RequeueStale(requeueCtx, 0)
	if err != nil {
		o.setLastError(err)
		logging.ErrorWithContext(o.logger, "final requeue failed", "final_requeue_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "items left PROCESSING are recovered by the next housekeeping pass"),
		)
	}

	o.mu.Lock()
	o.state = StateStopped
	o.workers = 0
	o.drain = nil
	o.cancelWorkers = nil
	o.cancelHousekeep = nil
	o.mu.Unlock()

	o.logger.Info("orchestrator stopped",
		logging.Int64("requeued", requeued),
		logging.Duration("drain_duration", time.Since(started)),
		logging.String(logging.FieldEventType, "orchestrator_stopped"),
	)
	if err != nil {
		return fmt.Errorf("orchestrator stop: final requeue: %w", err)
	}
	return nil
}
