package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"courier/internal/dispatch"
	"courier/internal/logging"
	"courier/internal/queue"
	"courier/internal/services"
)

const finishTimeout = 10 * time.Second

type pool struct {
	name string
	band queue.Band
	size int
	poll time.Duration
}

type worker struct {
	id   string
	pool pool
}

func (o *Orchestrator) runWorker(ctx context.Context, drain <-chan struct{}, w worker) {
	defer o.workerWG.Done()

	ctx = services.WithPool(ctx, w.pool.name)
	ctx = services.WithWorkerID(ctx, w.id)
	logger := logging.WithContext(ctx, o.logger)
	logger.Debug("worker started", logging.String("band", w.pool.band.String()))

	for {
		if stopping(ctx, drain) {
			logger.Debug("worker exiting")
			return
		}

		item, err := o.store.Dequeue(ctx, w.pool.band.Min, w.pool.band.Max, w.id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.setLastError(err)
			logging.ErrorWithContext(logger, "failed to dequeue item", "queue_fetch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check store connectivity"),
			)
			o.wait(ctx, drain, o.cfg.ErrorBackoff)
			continue
		}
		if item == nil {
			o.wait(ctx, drain, w.pool.poll)
			continue
		}

		if err := o.runItem(ctx, logger, w, item); err != nil {
			o.setLastError(err)
			o.wait(ctx, drain, o.cfg.ErrorBackoff)
		}
	}
}

// runItem processes one claimed item and records its outcome. A non-nil error
// means the worker should back off before polling again.
func (o *Orchestrator) runItem(ctx context.Context, workerLogger *slog.Logger, w worker, item *queue.Item) (err error) {
	itemCtx := services.WithItemID(ctx, item.ID)
	itemCtx = services.WithTaskType(itemCtx, string(item.TaskType))
	if item.CorrelationID != "" {
		itemCtx = services.WithRequestID(itemCtx, item.CorrelationID)
	}
	logger := logging.WithContext(itemCtx, o.logger)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
			logging.ErrorWithContext(logger, "worker panicked while processing item", "worker_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "item stays PROCESSING until housekeeping requeues it"),
			)
		}
	}()

	logger.Debug("item claimed",
		logging.Int("priority", int(item.Priority)),
		logging.Int("attempt", item.AttemptCount+1),
		logging.Int("max_attempts", item.MaxAttempts),
	)
	started := time.Now()
	result := o.processor.Process(itemCtx, item.TaskType, item.Payload)
	elapsed := time.Since(started)

	// Force-cancelled mid-handler: leave the item PROCESSING so the final
	// requeue returns it to QUEUED without burning an attempt.
	if !result.Success && ctx.Err() != nil {
		logger.Info("item interrupted by shutdown",
			logging.String(logging.FieldEventType, "item_interrupted"),
			logging.Duration("elapsed", elapsed),
		)
		return nil
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(itemCtx), finishTimeout)
	defer cancel()

	if result.Success {
		if err := o.store.Complete(finishCtx, item.ID); err != nil {
			logging.ErrorWithContext(logger, "failed to mark item completed", "item_complete_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check store connectivity; the item will be requeued as stale"),
			)
			return err
		}
		o.metrics.recordOutcome(finishCtx, item.TaskType, w.pool.name, "completed", elapsed)
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "item_completed"),
			logging.Duration("duration", elapsed),
		}
		if result.Error != "" {
			attrs = append(attrs, logging.String("note", result.Error))
		}
		if len(result.Data) > 0 {
			attrs = append(attrs, logging.Any("result", result.Data))
		}
		logger.Info("item completed", logging.Args(attrs...)...)
		return nil
	}

	status, err := o.store.Fail(finishCtx, item.ID, result.Error)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to record item failure", "item_fail_failed",
			logging.Error(err),
			logging.String("item_error", result.Error),
			logging.String(logging.FieldErrorHint, "check store connectivity; the item will be requeued as stale"),
		)
		return err
	}
	o.metrics.recordOutcome(finishCtx, item.TaskType, w.pool.name, string(status), elapsed)

	if status == queue.StatusDead {
		o.handleDead(finishCtx, logger, item, result)
		return nil
	}
	logging.WarnWithContext(logger, "item failed; will retry", "item_retry",
		logging.String("item_error", result.Error),
		logging.Int("attempt", item.AttemptCount+1),
		logging.Int("max_attempts", item.MaxAttempts),
		logging.String(logging.FieldErrorHint, "see item_error; the item is requeued with backoff"),
		logging.String(logging.FieldImpact, "item delayed"),
	)
	return nil
}

func (o *Orchestrator) handleDead(ctx context.Context, logger *slog.Logger, item *queue.Item, result dispatch.Result) {
	dead := item.Clone()
	queue.ResolveFailure(dead, result.Error, o.clock.Now(), queue.Backoff{})
	dead.Status = queue.StatusDead

	logging.ErrorWithContext(logger, "item exhausted retries", "item_dead",
		logging.String("item_error", result.Error),
		logging.Int("attempts", dead.AttemptCount),
		logging.String(logging.FieldErrorHint, "inspect with `courier queue show` and retry with `courier queue retry`"),
		logging.Alert("dead_letter"),
	)
	if err := o.notifier.NotifyItemDead(ctx, dead); err != nil {
		logging.WarnWithContext(logger, "dead-letter notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operator not alerted about dead item"),
		)
	}
}

func stopping(ctx context.Context, drain <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-drain:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) wait(ctx context.Context, drain <-chan struct{}, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-drain:
	case <-timer.C:
	}
}
