package queue

import (
	"context"
	"time"
)

// Store is the durable storage contract the orchestrator depends on. Every
// mutation must be atomic: Dequeue selects and claims in one operation, and
// Complete/Fail behave like compare-and-swap on status.
type Store interface {
	// Enqueue persists a new QUEUED item and returns its id.
	Enqueue(ctx context.Context, item *Item) (string, error)
	// Dequeue claims the best eligible item with priority in [min, max],
	// ordered by priority, scheduled_for, then created_at. It returns nil, nil
	// when nothing is eligible.
	Dequeue(ctx context.Context, min, max Priority, workerID string) (*Item, error)
	// Complete marks a QUEUED or PROCESSING item COMPLETED. Terminal items are left untouched.
	Complete(ctx context.Context, id string) error
	// Fail records errMsg, increments attempt_count, and requeues with backoff or
	// dead-letters the item. It returns the resulting status.
	Fail(ctx context.Context, id, errMsg string) (Status, error)
	// RequeueStale returns PROCESSING items started more than timeout ago to
	// QUEUED. A zero timeout requeues every PROCESSING item.
	RequeueStale(ctx context.Context, timeout time.Duration) (int64, error)
	PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
	PurgeDead(ctx context.Context, olderThan time.Duration) (int64, error)
	// StatusCounts returns a count for every status, zero-filled.
	StatusCounts(ctx context.Context) (map[Status]int, error)
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Statuses []Status
	TaskType TaskType
	Limit    int
}

// AdminStore adds the operator surface used by the CLI and API.
type AdminStore interface {
	Store
	Get(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context, filter ListFilter) ([]*Item, error)
	// Retry moves a DEAD item back to QUEUED with its attempts reset.
	Retry(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// Clock supplies the current time to stores and the orchestrator.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Options configures behaviour shared by every backend.
type Options struct {
	Clock   Clock
	Backoff Backoff
}

// WithDefaults fills unset options.
func (o Options) WithDefaults() Options {
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	return o
}

// ZeroCounts returns a status count map with every status present.
func ZeroCounts() map[Status]int {
	counts := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		counts[status] = 0
	}
	return counts
}

// ResolveFailure applies Fail semantics to an in-memory copy of the item and
// reports the resulting status. Backends call it inside their atomic section.
func ResolveFailure(item *Item, errMsg string, now time.Time, backoff Backoff) Status {
	now = now.UTC()
	if item.Status.Terminal() {
		return item.Status
	}
	item.AttemptCount++
	item.LastError = errMsg
	item.WorkerID = ""
	item.StartedAt = nil
	if item.AttemptCount >= item.MaxAttempts {
		item.Status = StatusDead
		item.CompletedAt = &now
		return StatusDead
	}
	item.Status = StatusQueued
	next := backoff.NextSchedule(now, item.ID, item.AttemptCount)
	if next.Before(item.CreatedAt) {
		next = item.CreatedAt
	}
	item.ScheduledFor = next
	return StatusQueued
}
