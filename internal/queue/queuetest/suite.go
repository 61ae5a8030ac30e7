// Package queuetest holds the behavioural suite every queue.Store backend
// must pass. Backends call Run from their own tests with a factory that
// returns an empty store wired to the supplied options.
package queuetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"courier/internal/queue"
	"courier/internal/testsupport"
)

// Factory returns an empty store using opts. The factory owns cleanup.
type Factory func(t *testing.T, opts queue.Options) queue.AdminStore

// Epoch is the fake clock start used by every case.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	t     *testing.T
	ctx   context.Context
	clock *testsupport.FakeClock
	store queue.AdminStore
}

func newEnv(t *testing.T, factory Factory, backoff queue.Backoff) *env {
	t.Helper()
	clock := testsupport.NewFakeClock(Epoch)
	return &env{
		t:     t,
		ctx:   context.Background(),
		clock: clock,
		store: factory(t, queue.Options{Clock: clock, Backoff: backoff}),
	}
}

func (e *env) enqueue(taskType queue.TaskType, priority queue.Priority, mutate ...func(*queue.Spec)) *queue.Item {
	e.t.Helper()
	spec := queue.Spec{
		TaskType:    taskType,
		Priority:    priority,
		MaxAttempts: 3,
		Payload:     map[string]any{"text": "hello"},
	}
	for _, fn := range mutate {
		fn(&spec)
	}
	item, err := queue.NewItem(spec, e.clock.Now())
	if err != nil {
		e.t.Fatalf("NewItem: %v", err)
	}
	id, err := e.store.Enqueue(e.ctx, item)
	if err != nil {
		e.t.Fatalf("Enqueue: %v", err)
	}
	if id != item.ID {
		e.t.Fatalf("Enqueue returned id %q, want %q", id, item.ID)
	}
	return item
}

func (e *env) dequeue(band queue.Band, worker string) *queue.Item {
	e.t.Helper()
	item, err := e.store.Dequeue(e.ctx, band.Min, band.Max, worker)
	if err != nil {
		e.t.Fatalf("Dequeue: %v", err)
	}
	return item
}

func (e *env) get(id string) *queue.Item {
	e.t.Helper()
	item, err := e.store.Get(e.ctx, id)
	if err != nil {
		e.t.Fatalf("Get(%s): %v", id, err)
	}
	return item
}

func (e *env) counts() map[queue.Status]int {
	e.t.Helper()
	counts, err := e.store.StatusCounts(e.ctx)
	if err != nil {
		e.t.Fatalf("StatusCounts: %v", err)
	}
	return counts
}

var allBands = queue.Band{Min: queue.PriorityInteractive, Max: queue.PriorityBulk}

// Run executes the conformance suite.
func Run(t *testing.T, factory Factory) {
	t.Run("EnqueueDequeueRoundTrip", func(t *testing.T) { testRoundTrip(t, factory) })
	t.Run("DequeueEmpty", func(t *testing.T) { testDequeueEmpty(t, factory) })
	t.Run("PriorityOrdering", func(t *testing.T) { testPriorityOrdering(t, factory) })
	t.Run("FIFOWithinBand", func(t *testing.T) { testFIFOWithinBand(t, factory) })
	t.Run("BandIsolation", func(t *testing.T) { testBandIsolation(t, factory) })
	t.Run("DeferredEligibility", func(t *testing.T) { testDeferredEligibility(t, factory) })
	t.Run("EnqueueValidation", func(t *testing.T) { testEnqueueValidation(t, factory) })
	t.Run("CompleteIsTerminalIdempotent", func(t *testing.T) { testCompleteIdempotent(t, factory) })
	t.Run("RetryExhaustion", func(t *testing.T) { testRetryExhaustion(t, factory) })
	t.Run("FailAppliesBackoff", func(t *testing.T) { testFailBackoff(t, factory) })
	t.Run("RequeueStale", func(t *testing.T) { testRequeueStale(t, factory) })
	t.Run("Purge", func(t *testing.T) { testPurge(t, factory) })
	t.Run("OperatorRetryAndList", func(t *testing.T) { testOperatorRetry(t, factory) })
	t.Run("UnknownIDs", func(t *testing.T) { testUnknownIDs(t, factory) })
	t.Run("ConcurrentClaimsAreExclusive", func(t *testing.T) { testConcurrentClaims(t, factory) })
}

func testRoundTrip(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	item := e.enqueue(queue.TaskSkillInvocation, queue.PriorityNearInteractive, func(s *queue.Spec) {
		s.UserID = "user-1"
		s.ChannelID = "chan-1"
		s.CorrelationID = "corr-1"
		s.ParentID = "parent-1"
		s.Payload = map[string]any{"intent": "weather", "params": map[string]any{"city": "Oslo"}}
	})

	e.clock.Advance(time.Second)
	claimed := e.dequeue(queue.InteractiveBand, "worker-a")
	if claimed == nil {
		t.Fatal("expected an item")
	}
	if claimed.ID != item.ID {
		t.Fatalf("claimed %q, want %q", claimed.ID, item.ID)
	}
	if claimed.Status != queue.StatusProcessing || claimed.WorkerID != "worker-a" {
		t.Fatalf("unexpected claim state: status=%s worker=%q", claimed.Status, claimed.WorkerID)
	}
	if claimed.StartedAt == nil || !claimed.StartedAt.Equal(e.clock.Now()) {
		t.Fatalf("unexpected started_at: %v", claimed.StartedAt)
	}
	if claimed.TaskType != queue.TaskSkillInvocation || claimed.Priority != queue.PriorityNearInteractive {
		t.Fatalf("unexpected identity: %+v", claimed)
	}
	if claimed.UserID != "user-1" || claimed.ChannelID != "chan-1" || claimed.CorrelationID != "corr-1" || claimed.ParentID != "parent-1" {
		t.Fatalf("unexpected links: %+v", claimed)
	}
	if claimed.Payload["intent"] != "weather" {
		t.Fatalf("unexpected payload: %#v", claimed.Payload)
	}
	params, ok := claimed.Payload["params"].(map[string]any)
	if !ok || params["city"] != "Oslo" {
		t.Fatalf("unexpected nested payload: %#v", claimed.Payload["params"])
	}
	if !claimed.CreatedAt.Equal(Epoch) {
		t.Fatalf("unexpected created_at: %s", claimed.CreatedAt)
	}

	if err := e.store.Complete(e.ctx, item.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	done := e.get(item.ID)
	if done.Status != queue.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected completed item: %+v", done)
	}
	counts := e.counts()
	if counts[queue.StatusCompleted] != 1 || counts[queue.StatusQueued] != 0 || counts[queue.StatusProcessing] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func testDequeueEmpty(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	if got := e.dequeue(allBands, "w"); got != nil {
		t.Fatalf("expected nil from empty store, got %+v", got)
	}
	counts := e.counts()
	for _, status := range queue.AllStatuses() {
		value, ok := counts[status]
		if !ok {
			t.Fatalf("expected status %s present in counts", status)
		}
		if value != 0 {
			t.Fatalf("expected zero count for %s, got %d", status, value)
		}
	}
}

func testPriorityOrdering(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	bulk := e.enqueue(queue.TaskBulkIngestion, queue.PriorityBulk)
	e.clock.Advance(time.Millisecond)
	scheduled := e.enqueue(queue.TaskScheduledAction, queue.PriorityScheduled)
	e.clock.Advance(time.Millisecond)
	near := e.enqueue(queue.TaskSkillInvocation, queue.PriorityNearInteractive)
	e.clock.Advance(time.Millisecond)
	interactive := e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive)

	want := []string{interactive.ID, near.ID, scheduled.ID, bulk.ID}
	for i, id := range want {
		got := e.dequeue(allBands, "w")
		if got == nil || got.ID != id {
			t.Fatalf("position %d: got %+v, want %s", i, got, id)
		}
	}
}

func testFIFOWithinBand(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive).ID)
		e.clock.Advance(10 * time.Millisecond)
	}
	// Same created_at: ids break the tie in creation order.
	ids = append(ids, e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive).ID)
	ids = append(ids, e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive).ID)

	for i, id := range ids {
		got := e.dequeue(queue.InteractiveBand, "w")
		if got == nil || got.ID != id {
			t.Fatalf("position %d: got %+v, want %s", i, got, id)
		}
	}
}

func testBandIsolation(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	bulk := e.enqueue(queue.TaskBulkIngestion, queue.PriorityBulk)
	if got := e.dequeue(queue.InteractiveBand, "interactive-0"); got != nil {
		t.Fatalf("interactive band claimed background item %s", got.ID)
	}
	interactive := e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive)
	if got := e.dequeue(queue.BackgroundBand, "background-0"); got == nil || got.ID != bulk.ID {
		t.Fatalf("background band got %+v, want %s", got, bulk.ID)
	}
	if got := e.dequeue(queue.BackgroundBand, "background-0"); got != nil {
		t.Fatalf("background band claimed interactive item %s", got.ID)
	}
	if got := e.dequeue(queue.InteractiveBand, "interactive-0"); got == nil || got.ID != interactive.ID {
		t.Fatalf("interactive band got %+v, want %s", got, interactive.ID)
	}
}

func testDeferredEligibility(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	deferred := e.enqueue(queue.TaskScheduledAction, queue.PriorityScheduled, func(s *queue.Spec) {
		s.ScheduledFor = Epoch.Add(time.Hour)
	})
	e.clock.Advance(59 * time.Minute)
	if got := e.dequeue(allBands, "w"); got != nil {
		t.Fatalf("deferred item claimed early: %s", got.ID)
	}
	e.clock.Advance(time.Minute)
	got := e.dequeue(allBands, "w")
	if got == nil || got.ID != deferred.ID {
		t.Fatalf("expected deferred item at scheduled time, got %+v", got)
	}

	// An earlier schedule wins over an earlier creation within one band.
	late := e.enqueue(queue.TaskScheduledAction, queue.PriorityScheduled, func(s *queue.Spec) {
		s.ScheduledFor = e.clock.Now().Add(2 * time.Minute)
	})
	e.clock.Advance(time.Millisecond)
	early := e.enqueue(queue.TaskScheduledAction, queue.PriorityScheduled, func(s *queue.Spec) {
		s.ScheduledFor = e.clock.Now().Add(time.Minute)
	})
	e.clock.Advance(5 * time.Minute)
	if got := e.dequeue(allBands, "w"); got == nil || got.ID != early.ID {
		t.Fatalf("expected earliest schedule first, got %+v", got)
	}
	if got := e.dequeue(allBands, "w"); got == nil || got.ID != late.ID {
		t.Fatalf("expected later schedule second, got %+v", got)
	}
}

func testEnqueueValidation(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	bad := &queue.Item{
		ID:          queue.NewID(Epoch),
		Priority:    9,
		TaskType:    queue.TaskMessageReply,
		MaxAttempts: 1,
		CreatedAt:   Epoch,
	}
	if _, err := e.store.Enqueue(e.ctx, bad); !errors.Is(err, queue.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem for bad priority, got %v", err)
	}
	bad.Priority = queue.PriorityBulk
	bad.TaskType = "fax"
	if _, err := e.store.Enqueue(e.ctx, bad); !errors.Is(err, queue.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem for bad task type, got %v", err)
	}

	early := &queue.Item{
		Priority:     queue.PriorityScheduled,
		TaskType:     queue.TaskScheduledAction,
		MaxAttempts:  2,
		CreatedAt:    Epoch,
		ScheduledFor: Epoch.Add(-time.Hour),
	}
	id, err := e.store.Enqueue(e.ctx, early)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
	stored := e.get(id)
	if !stored.ScheduledFor.Equal(stored.CreatedAt) {
		t.Fatalf("expected scheduled_for normalized to created_at, got %s vs %s", stored.ScheduledFor, stored.CreatedAt)
	}
	if stored.Status != queue.StatusQueued || stored.AttemptCount != 0 {
		t.Fatalf("unexpected stored item: %+v", stored)
	}
}

func testCompleteIdempotent(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	item := e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive)
	if got := e.dequeue(queue.InteractiveBand, "w"); got == nil {
		t.Fatal("expected claim")
	}
	if err := e.store.Complete(e.ctx, item.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	first := e.get(item.ID)
	e.clock.Advance(time.Minute)
	if err := e.store.Complete(e.ctx, item.ID); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	status, err := e.store.Fail(e.ctx, item.ID, "late failure")
	if err != nil {
		t.Fatalf("Fail after complete: %v", err)
	}
	if status != queue.StatusCompleted {
		t.Fatalf("expected completed status from Fail, got %s", status)
	}
	after := e.get(item.ID)
	if after.Status != queue.StatusCompleted || after.AttemptCount != 0 || after.LastError != "" {
		t.Fatalf("terminal item mutated: %+v", after)
	}
	if !after.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatalf("completed_at changed from %s to %s", first.CompletedAt, after.CompletedAt)
	}

	// A queued item may also be completed directly.
	queued := e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive)
	if err := e.store.Complete(e.ctx, queued.ID); err != nil {
		t.Fatalf("Complete queued: %v", err)
	}
	if got := e.get(queued.ID); got.Status != queue.StatusCompleted {
		t.Fatalf("expected queued item completed, got %s", got.Status)
	}
}

func testRetryExhaustion(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	item := e.enqueue(queue.TaskSkillInvocation, queue.PriorityInteractive)
	want := []queue.Status{queue.StatusQueued, queue.StatusQueued, queue.StatusDead}
	for attempt, expected := range want {
		claimed := e.dequeue(queue.InteractiveBand, "w")
		if claimed == nil || claimed.ID != item.ID {
			t.Fatalf("attempt %d: expected claim of %s, got %+v", attempt+1, item.ID, claimed)
		}
		status, err := e.store.Fail(e.ctx, item.ID, fmt.Sprintf("failure %d", attempt+1))
		if err != nil {
			t.Fatalf("Fail: %v", err)
		}
		if status != expected {
			t.Fatalf("attempt %d: got %s, want %s", attempt+1, status, expected)
		}
		stored := e.get(item.ID)
		if stored.AttemptCount != attempt+1 {
			t.Fatalf("attempt %d: attempt_count=%d", attempt+1, stored.AttemptCount)
		}
		if stored.LastError != fmt.Sprintf("failure %d", attempt+1) {
			t.Fatalf("attempt %d: last_error=%q", attempt+1, stored.LastError)
		}
		if stored.WorkerID != "" || stored.StartedAt != nil {
			t.Fatalf("attempt %d: claim fields not cleared: %+v", attempt+1, stored)
		}
	}
	dead := e.get(item.ID)
	if dead.CompletedAt == nil {
		t.Fatal("expected completed_at on dead item")
	}
	if got := e.dequeue(allBands, "w"); got != nil {
		t.Fatalf("dead item claimed again: %s", got.ID)
	}
	status, err := e.store.Fail(e.ctx, item.ID, "extra")
	if err != nil || status != queue.StatusDead {
		t.Fatalf("Fail on dead item: status=%s err=%v", status, err)
	}
	if got := e.get(item.ID); got.AttemptCount != 3 || got.LastError != "failure 3" {
		t.Fatalf("dead item mutated: %+v", got)
	}
	if err := e.store.Complete(e.ctx, item.ID); err != nil {
		t.Fatalf("Complete on dead item: %v", err)
	}
	if got := e.get(item.ID); got.Status != queue.StatusDead {
		t.Fatalf("dead item completed: %s", got.Status)
	}
	if counts := e.counts(); counts[queue.StatusDead] != 1 {
		t.Fatalf("expected one dead item, got %v", counts)
	}
}

func testFailBackoff(t *testing.T, factory Factory) {
	backoff := queue.Backoff{Base: time.Minute, Max: time.Hour}
	e := newEnv(t, factory, backoff)
	item := e.enqueue(queue.TaskScheduledAction, queue.PriorityScheduled)
	if got := e.dequeue(allBands, "w"); got == nil {
		t.Fatal("expected claim")
	}
	status, err := e.store.Fail(e.ctx, item.ID, "transient")
	if err != nil || status != queue.StatusQueued {
		t.Fatalf("Fail: status=%s err=%v", status, err)
	}
	stored := e.get(item.ID)
	wantAt := backoff.NextSchedule(e.clock.Now(), item.ID, 1)
	if !stored.ScheduledFor.Equal(wantAt) {
		t.Fatalf("scheduled_for=%s, want %s", stored.ScheduledFor, wantAt)
	}
	if got := e.dequeue(allBands, "w"); got != nil {
		t.Fatal("item eligible before backoff elapsed")
	}
	e.clock.Set(wantAt)
	if got := e.dequeue(allBands, "w"); got == nil || got.ID != item.ID {
		t.Fatalf("expected item after backoff, got %+v", got)
	}
}

func testRequeueStale(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	stale := e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive)
	if got := e.dequeue(queue.InteractiveBand, "crashed"); got == nil || got.ID != stale.ID {
		t.Fatalf("expected claim of stale item, got %+v", got)
	}
	e.clock.Advance(10 * time.Minute)
	fresh := e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive)
	if got := e.dequeue(queue.InteractiveBand, "alive"); got == nil || got.ID != fresh.ID {
		t.Fatalf("expected claim of fresh item, got %+v", got)
	}
	e.clock.Advance(time.Minute)

	count, err := e.store.RequeueStale(e.ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("RequeueStale: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stale item, got %d", count)
	}
	recovered := e.get(stale.ID)
	if recovered.Status != queue.StatusQueued || recovered.WorkerID != "" || recovered.StartedAt != nil {
		t.Fatalf("unexpected recovered item: %+v", recovered)
	}
	if got := e.get(fresh.ID); got.Status != queue.StatusProcessing || got.WorkerID != "alive" {
		t.Fatalf("fresh item disturbed: %+v", got)
	}

	count, err = e.store.RequeueStale(e.ctx, 0)
	if err != nil {
		t.Fatalf("RequeueStale(0): %v", err)
	}
	if count != 1 {
		t.Fatalf("expected RequeueStale(0) to requeue the remaining item, got %d", count)
	}
	counts := e.counts()
	if counts[queue.StatusProcessing] != 0 || counts[queue.StatusQueued] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func testPurge(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	completed := e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive)
	if err := e.store.Complete(e.ctx, completed.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	dead := e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive, func(s *queue.Spec) { s.MaxAttempts = 1 })
	if status, err := e.store.Fail(e.ctx, dead.ID, "fatal"); err != nil || status != queue.StatusDead {
		t.Fatalf("Fail: status=%s err=%v", status, err)
	}
	pending := e.enqueue(queue.TaskMessageReply, queue.PriorityInteractive)

	e.clock.Advance(23 * time.Hour)
	if n, err := e.store.PurgeCompleted(e.ctx, 24*time.Hour); err != nil || n != 0 {
		t.Fatalf("early PurgeCompleted: n=%d err=%v", n, err)
	}
	e.clock.Advance(2 * time.Hour)
	if n, err := e.store.PurgeCompleted(e.ctx, 24*time.Hour); err != nil || n != 1 {
		t.Fatalf("PurgeCompleted: n=%d err=%v", n, err)
	}
	if _, err := e.store.Get(e.ctx, completed.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected purged item to be gone, got %v", err)
	}
	if n, err := e.store.PurgeDead(e.ctx, 7*24*time.Hour); err != nil || n != 0 {
		t.Fatalf("early PurgeDead: n=%d err=%v", n, err)
	}
	e.clock.Advance(7 * 24 * time.Hour)
	if n, err := e.store.PurgeDead(e.ctx, 7*24*time.Hour); err != nil || n != 1 {
		t.Fatalf("PurgeDead: n=%d err=%v", n, err)
	}
	if got := e.get(pending.ID); got.Status != queue.StatusQueued {
		t.Fatalf("queued item affected by purge: %+v", got)
	}
}

func testOperatorRetry(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	dead := e.enqueue(queue.TaskSkillInvocation, queue.PriorityNearInteractive, func(s *queue.Spec) { s.MaxAttempts = 1 })
	if _, err := e.store.Fail(e.ctx, dead.ID, "fatal"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	e.clock.Advance(time.Millisecond)
	queued := e.enqueue(queue.TaskBulkIngestion, queue.PriorityBulk)

	items, err := e.store.List(e.ctx, queue.ListFilter{Statuses: []queue.Status{queue.StatusDead}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].ID != dead.ID {
		t.Fatalf("unexpected dead list: %+v", items)
	}
	all, err := e.store.List(e.ctx, queue.ListFilter{})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 || all[0].ID != dead.ID || all[1].ID != queued.ID {
		t.Fatalf("expected list in creation order, got %+v", all)
	}
	byType, err := e.store.List(e.ctx, queue.ListFilter{TaskType: queue.TaskBulkIngestion, Limit: 5})
	if err != nil || len(byType) != 1 || byType[0].ID != queued.ID {
		t.Fatalf("unexpected task type filter: %+v err=%v", byType, err)
	}

	if err := e.store.Retry(e.ctx, queued.ID); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition retrying queued item, got %v", err)
	}
	e.clock.Advance(time.Minute)
	if err := e.store.Retry(e.ctx, dead.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	revived := e.get(dead.ID)
	if revived.Status != queue.StatusQueued || revived.AttemptCount != 0 || revived.CompletedAt != nil {
		t.Fatalf("unexpected revived item: %+v", revived)
	}
	if !revived.ScheduledFor.Equal(e.clock.Now()) {
		t.Fatalf("expected revived item eligible now, got %s", revived.ScheduledFor)
	}
	if got := e.dequeue(queue.InteractiveBand, "w"); got == nil || got.ID != dead.ID {
		t.Fatalf("expected revived item claimable, got %+v", got)
	}
}

func testUnknownIDs(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	missing := queue.NewID(Epoch)
	if _, err := e.store.Get(e.ctx, missing); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
	if err := e.store.Complete(e.ctx, missing); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Complete: expected ErrNotFound, got %v", err)
	}
	if _, err := e.store.Fail(e.ctx, missing, "x"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Fail: expected ErrNotFound, got %v", err)
	}
	if err := e.store.Retry(e.ctx, missing); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Retry: expected ErrNotFound, got %v", err)
	}
}

func testConcurrentClaims(t *testing.T, factory Factory) {
	e := newEnv(t, factory, queue.Backoff{})
	const total = 40
	for i := 0; i < total; i++ {
		e.enqueue(queue.TaskMessageReply, queue.Priority(i%2))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]string)
		dupes   []string
		wg      sync.WaitGroup
		errs    = make(chan error, 8)
	)
	for w := 0; w < 8; w++ {
		worker := fmt.Sprintf("worker-%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := e.store.Dequeue(e.ctx, queue.InteractiveBand.Min, queue.InteractiveBand.Max, worker)
				if err != nil {
					errs <- err
					return
				}
				if item == nil {
					return
				}
				mu.Lock()
				if prev, ok := claimed[item.ID]; ok {
					dupes = append(dupes, item.ID+" by "+prev+" and "+worker)
				}
				claimed[item.ID] = worker
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Dequeue: %v", err)
	}
	if len(dupes) > 0 {
		t.Fatalf("items claimed twice: %v", dupes)
	}
	if len(claimed) != total {
		t.Fatalf("claimed %d items, want %d", len(claimed), total)
	}
	if counts := e.counts(); counts[queue.StatusProcessing] != total {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
