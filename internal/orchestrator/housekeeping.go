package orchestrator

import (
	"context"
	"errors"
	"time"

	"courier/internal/logging"
)

type housekeepingReport struct {
	At             time.Time
	Requeued       int64
	PurgedComplete int64
	PurgedDead     int64
	Err            error
}

func (o *Orchestrator) runHousekeeping(ctx context.Context) {
	defer o.housekeepWG.Done()

	ticker := time.NewTicker(o.cfg.HousekeepingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Housekeep(ctx)
		}
	}
}

// Housekeep runs one maintenance pass: requeue stale PROCESSING items and
// purge old COMPLETED and DEAD items. Errors are logged and never fatal.
func (o *Orchestrator) Housekeep(ctx context.Context) {
	report := housekeepingReport{At: o.clock.Now()}
	var errs []error

	requeued, err := o.store.RequeueStale(ctx, o.cfg.StaleTimeout)
	if err != nil {
		errs = append(errs, err)
		o.logHousekeepingError(ctx, "requeue stale items", err)
	}
	report.Requeued = requeued

	purged, err := o.store.PurgeCompleted(ctx, o.cfg.CompletedRetention)
	if err != nil {
		errs = append(errs, err)
		o.logHousekeepingError(ctx, "purge completed items", err)
	}
	report.PurgedComplete = purged

	purgedDead, err := o.store.PurgeDead(ctx, o.cfg.DeadRetention)
	if err != nil {
		errs = append(errs, err)
		o.logHousekeepingError(ctx, "purge dead items", err)
	}
	report.PurgedDead = purgedDead
	report.Err = errors.Join(errs...)

	o.mu.Lock()
	o.lastHousekeeping = report
	if report.Err != nil {
		o.lastErr = report.Err
	}
	o.mu.Unlock()

	if requeued > 0 {
		logging.WarnWithContext(o.logger, "requeued stale items", "stale_requeued",
			logging.Int64("count", requeued),
			logging.Duration("stale_timeout", o.cfg.StaleTimeout),
			logging.String(logging.FieldErrorHint, "a worker or process stopped mid-item; check for crashes or slow handlers"),
			logging.String(logging.FieldImpact, "items will run again"),
		)
	}
	if purged > 0 || purgedDead > 0 {
		o.logger.Info("purged old items",
			logging.Int64("completed", purged),
			logging.Int64("dead", purgedDead),
			logging.String(logging.FieldEventType, "items_purged"),
		)
	}
}

func (o *Orchestrator) logHousekeepingError(ctx context.Context, step string, err error) {
	if ctx.Err() != nil {
		return
	}
	logging.WarnWithContext(o.logger, "housekeeping step failed", "housekeeping_failed",
		logging.String("step", step),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check store connectivity"),
		logging.String(logging.FieldImpact, "retried on the next housekeeping pass"),
	)
}
