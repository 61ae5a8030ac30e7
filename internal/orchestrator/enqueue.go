package orchestrator

import (
	"context"
	"time"

	"courier/internal/logging"
	"courier/internal/queue"
)

// EnqueueRequest is the producer-facing input to Enqueue.
type EnqueueRequest struct {
	TaskType      queue.TaskType
	UserID        string
	ChannelID     string
	Payload       map[string]any
	Priority      queue.Priority
	ScheduledFor  time.Time
	CorrelationID string
	ParentID      string
}

// Enqueue validates the request, builds a QUEUED item with the configured
// max_attempts, and persists it. It works whether or not the pools are running.
func (o *Orchestrator) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	item, err := queue.NewItem(queue.Spec{
		TaskType:      req.TaskType,
		Priority:      req.Priority,
		Payload:       req.Payload,
		MaxAttempts:   o.cfg.MaxAttempts,
		ScheduledFor:  req.ScheduledFor,
		UserID:        req.UserID,
		ChannelID:     req.ChannelID,
		CorrelationID: req.CorrelationID,
		ParentID:      req.ParentID,
	}, o.clock.Now())
	if err != nil {
		return "", err
	}
	id, err := o.store.Enqueue(ctx, item)
	if err != nil {
		return "", err
	}
	o.metrics.recordEnqueue(ctx, item.TaskType, item.Priority)
	attrs := append(logging.Item(id, string(item.TaskType)),
		logging.String("priority", item.Priority.String()),
		logging.String(logging.FieldCorrelationID, item.CorrelationID),
	)
	o.logger.Debug("item enqueued", logging.Args(attrs...)...)
	return id, nil
}
