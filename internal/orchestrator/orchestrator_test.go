package orchestrator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"courier/internal/dispatch"
	"courier/internal/orchestrator"
	"courier/internal/queue"
	"courier/internal/testsupport"
)

type funcProcessor func(ctx context.Context, taskType queue.TaskType, payload map[string]any) dispatch.Result

func (f funcProcessor) Process(ctx context.Context, taskType queue.TaskType, payload map[string]any) dispatch.Result {
	return f(ctx, taskType, payload)
}

func succeed() funcProcessor {
	return func(context.Context, queue.TaskType, map[string]any) dispatch.Result {
		return dispatch.Result{Success: true}
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	dead []*queue.Item
}

func (n *recordingNotifier) NotifyItemDead(_ context.Context, item *queue.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dead = append(n.dead, item)
	return nil
}

func (n *recordingNotifier) NotifyError(context.Context, error, string) error { return nil }
func (n *recordingNotifier) TestNotification(context.Context) error          { return nil }

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.dead)
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func countsOf(t *testing.T, store queue.Store) map[queue.Status]int {
	t.Helper()
	counts, err := store.StatusCounts(context.Background())
	if err != nil {
		t.Fatalf("StatusCounts: %v", err)
	}
	return counts
}

func TestHundredInteractiveItemsAllComplete(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2, 0))
	store := testsupport.MustOpenStore(t, cfg)

	var processed atomic.Int64
	orch := orchestrator.New(orchestrator.FromConfig(cfg), store, funcProcessor(
		func(context.Context, queue.TaskType, map[string]any) dispatch.Result {
			processed.Add(1)
			return dispatch.Result{Success: true}
		},
	))

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if _, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{
			TaskType: queue.TaskSkillInvocation,
			UserID:   "u1",
			Payload:  map[string]any{"intent": "ping", "n": i},
			Priority: queue.PriorityInteractive,
		}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}

	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 20*time.Second, "100 completions", func() bool {
		return countsOf(t, store)[queue.StatusCompleted] == 100
	})
	if err := orch.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	counts := countsOf(t, store)
	if counts[queue.StatusCompleted] != 100 || counts[queue.StatusQueued] != 0 || counts[queue.StatusProcessing] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if processed.Load() != 100 {
		t.Fatalf("expected each item processed once, got %d", processed.Load())
	}
}

func TestDispatcherEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 1))
	store := testsupport.MustOpenStore(t, cfg)

	skills := &countingSkills{}
	dispatcher := dispatch.New(dispatch.Options{Skills: skills})
	defer dispatcher.Close()
	orch := orchestrator.New(orchestrator.FromConfig(cfg), store, dispatcher)

	ctx := context.Background()
	if _, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{
		TaskType: queue.TaskSkillInvocation,
		Payload:  map[string]any{"intent": "weather"},
		Priority: queue.PriorityNearInteractive,
	}); err != nil {
		t.Fatalf("Enqueue skill: %v", err)
	}
	if _, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{
		TaskType: queue.TaskBulkIngestion,
		Payload:  map[string]any{"source": "Mail", "operation": "Import"},
		Priority: queue.PriorityBulk,
	}); err != nil {
		t.Fatalf("Enqueue bulk: %v", err)
	}

	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer orch.Stop(ctx)
	waitFor(t, 10*time.Second, "both items completed", func() bool {
		return countsOf(t, store)[queue.StatusCompleted] == 2
	})
	if got := skills.intents(); len(got) != 2 {
		t.Fatalf("expected two skill invocations, got %v", got)
	}
}

type countingSkills struct {
	mu   sync.Mutex
	seen []string
}

func (s *countingSkills) Invoke(_ context.Context, req dispatch.SkillRequest) (dispatch.SkillResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, req.Intent)
	return dispatch.SkillResponse{Success: true}, nil
}

func (s *countingSkills) intents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

func TestRetryExhaustionMovesItemToDead(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 0), testsupport.WithMaxAttempts(3))
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}

	var calls atomic.Int64
	orch := orchestrator.New(orchestrator.FromConfig(cfg), store, funcProcessor(
		func(context.Context, queue.TaskType, map[string]any) dispatch.Result {
			calls.Add(1)
			return dispatch.Result{Success: false, Error: "always broken"}
		},
	), orchestrator.WithNotifier(notifier))

	ctx := context.Background()
	id, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{TaskType: queue.TaskScheduledAction, Payload: map[string]any{"action": "x"}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 10*time.Second, "dead item", func() bool {
		return countsOf(t, store)[queue.StatusDead] == 1
	})
	if err := orch.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	item, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.AttemptCount != 3 || item.LastError != "always broken" {
		t.Fatalf("unexpected dead item: attempts=%d last_error=%q", item.AttemptCount, item.LastError)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected exactly 3 handler calls, got %d", calls.Load())
	}
	if notifier.count() != 1 {
		t.Fatalf("expected one dead-letter notification, got %d", notifier.count())
	}
	counts := countsOf(t, store)
	if counts[queue.StatusQueued] != 0 || counts[queue.StatusProcessing] != 0 || counts[queue.StatusFailed] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestStopMidHandlerRequeuesItem(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 0))
	store := testsupport.MustOpenStore(t, cfg)

	started := make(chan struct{})
	var once sync.Once
	ocfg := orchestrator.FromConfig(cfg)
	ocfg.DrainTimeout = 50 * time.Millisecond
	orch := orchestrator.New(ocfg, store, funcProcessor(
		func(ctx context.Context, _ queue.TaskType, _ map[string]any) dispatch.Result {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return dispatch.Result{Success: false, Error: ctx.Err().Error()}
		},
	))

	ctx := context.Background()
	id, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{TaskType: queue.TaskMessageReply, ChannelID: "c1"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("handler never started")
	}
	if err := orch.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	item, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Status != queue.StatusQueued {
		t.Fatalf("expected QUEUED after forced stop, got %s", item.Status)
	}
	if item.AttemptCount != 0 {
		t.Fatalf("interrupted item should not burn an attempt, got %d", item.AttemptCount)
	}
	if item.WorkerID != "" {
		t.Fatalf("worker id should be cleared, got %q", item.WorkerID)
	}
}

func TestStopWaitsForInFlightItem(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 0))
	store := testsupport.MustOpenStore(t, cfg)

	started := make(chan struct{})
	var once sync.Once
	orch := orchestrator.New(orchestrator.FromConfig(cfg), store, funcProcessor(
		func(context.Context, queue.TaskType, map[string]any) dispatch.Result {
			once.Do(func() { close(started) })
			time.Sleep(100 * time.Millisecond)
			return dispatch.Result{Success: true}
		},
	))

	ctx := context.Background()
	id, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{TaskType: queue.TaskSkillInvocation})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started
	if err := orch.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	item, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Status != queue.StatusCompleted {
		t.Fatalf("expected in-flight item to complete during drain, got %s", item.Status)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2, 1))
	store := testsupport.MustOpenStore(t, cfg)
	orch := orchestrator.New(orchestrator.FromConfig(cfg), store, succeed())
	ctx := context.Background()

	if err := orch.Stop(ctx); err != nil {
		t.Fatalf("Stop before Start should be a no-op, got %v", err)
	}
	if st := orch.Status(ctx); st.State != orchestrator.StateStopped || st.Running {
		t.Fatalf("unexpected initial status %+v", st)
	}

	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}
	st := orch.Status(ctx)
	if st.State != orchestrator.StateRunning || !st.Running || st.Draining || st.Workers != 3 {
		t.Fatalf("unexpected running status %+v", st)
	}
	if len(st.StatusCounts) != len(queue.AllStatuses()) {
		t.Fatalf("status counts should include every status: %v", st.StatusCounts)
	}

	if err := orch.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := orch.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if st := orch.Status(ctx); st.State != orchestrator.StateStopped || st.Workers != 0 {
		t.Fatalf("unexpected stopped status %+v", st)
	}

	// Restart after a clean stop.
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := orch.Stop(ctx); err != nil {
		t.Fatalf("final Stop: %v", err)
	}
}

func TestInteractiveWorkersIgnoreBackgroundBand(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 0))
	store := testsupport.MustOpenStore(t, cfg)
	orch := orchestrator.New(orchestrator.FromConfig(cfg), store, succeed())
	ctx := context.Background()

	bulkID, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{TaskType: queue.TaskBulkIngestion, Priority: queue.PriorityBulk})
	if err != nil {
		t.Fatalf("Enqueue bulk: %v", err)
	}
	if _, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{TaskType: queue.TaskMessageReply, Priority: queue.PriorityInteractive}); err != nil {
		t.Fatalf("Enqueue interactive: %v", err)
	}
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 10*time.Second, "interactive completion", func() bool {
		return countsOf(t, store)[queue.StatusCompleted] == 1
	})
	time.Sleep(100 * time.Millisecond)
	if err := orch.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	bulk, err := store.Get(ctx, bulkID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if bulk.Status != queue.StatusQueued {
		t.Fatalf("bulk item should be untouched by interactive workers, got %s", bulk.Status)
	}
}

func TestEnqueueValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(5))
	store := testsupport.MustOpenStore(t, cfg)
	orch := orchestrator.New(orchestrator.FromConfig(cfg), store, succeed())
	ctx := context.Background()

	if _, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{TaskType: "nonsense"}); !errors.Is(err, queue.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem for bad task type, got %v", err)
	}
	if _, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{TaskType: queue.TaskSkillInvocation, Priority: queue.Priority(9)}); !errors.Is(err, queue.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem for bad priority, got %v", err)
	}

	later := time.Now().Add(time.Hour)
	id, err := orch.Enqueue(ctx, orchestrator.EnqueueRequest{
		TaskType:      queue.TaskScheduledAction,
		UserID:        "u1",
		Priority:      queue.PriorityScheduled,
		ScheduledFor:  later,
		CorrelationID: "req-1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	item, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.MaxAttempts != 5 || item.CorrelationID != "req-1" || item.Payload["user_id"] != "u1" {
		t.Fatalf("unexpected stored item %+v", item)
	}
	if item.ScheduledFor.Before(later.Add(-time.Second)) {
		t.Fatalf("scheduled_for not preserved: %s", item.ScheduledFor)
	}
}

func TestHousekeepRequeuesStaleAndPurges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := testsupport.MustOpenStore(t, cfg, queue.Options{Clock: clock})
	ctx := context.Background()

	stale := testsupport.MustEnqueue(t, store, clock.Now(), queue.TaskSkillInvocation, queue.PriorityInteractive)
	done := testsupport.MustEnqueue(t, store, clock.Now(), queue.TaskSkillInvocation, queue.PriorityInteractive)
	if claimed, err := store.Dequeue(ctx, queue.PriorityInteractive, queue.PriorityInteractive, "w1"); err != nil || claimed == nil || claimed.ID != stale.ID {
		t.Fatalf("Dequeue: item=%v err=%v", claimed, err)
	}
	if err := store.Complete(ctx, done.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	ocfg := orchestrator.FromConfig(cfg)
	ocfg.StaleTimeout = 10 * time.Minute
	ocfg.CompletedRetention = time.Hour
	orch := orchestrator.New(ocfg, store, succeed(), orchestrator.WithClock(clock))

	orch.Housekeep(ctx)
	if counts := countsOf(t, store); counts[queue.StatusProcessing] != 1 || counts[queue.StatusCompleted] != 1 {
		t.Fatalf("nothing should change before the thresholds: %v", counts)
	}

	clock.Advance(2 * time.Hour)
	orch.Housekeep(ctx)
	counts := countsOf(t, store)
	if counts[queue.StatusProcessing] != 0 || counts[queue.StatusQueued] != 1 || counts[queue.StatusCompleted] != 0 {
		t.Fatalf("unexpected counts after housekeeping: %v", counts)
	}
	if st := orch.Status(ctx); st.StaleRequeued != 1 || st.LastError != "" {
		t.Fatalf("unexpected housekeeping status %+v", st)
	}
}

type brokenStore struct {
	queue.Store
}

func (brokenStore) StatusCounts(context.Context) (map[queue.Status]int, error) {
	return nil, errors.New("store offline")
}

func TestStartFailsWhenStoreUnavailable(t *testing.T) {
	orch := orchestrator.New(orchestrator.DefaultConfig(), brokenStore{}, succeed())
	ctx := context.Background()
	if err := orch.Start(ctx); err == nil {
		t.Fatal("expected Start to fail")
	}
	st := orch.Status(ctx)
	if st.State != orchestrator.StateStopped {
		t.Fatalf("expected stopped state, got %s", st.State)
	}
	if st.LastError == "" {
		t.Fatal("expected last error to be reported")
	}
}

// flakyStore fails the first dequeueFailures Dequeue calls and the first
// completeFailures Complete calls, then behaves like the wrapped store.
type flakyStore struct {
	queue.Store
	dequeueFailures  atomic.Int64
	completeFailures atomic.Int64
	dequeueCalls     atomic.Int64
}

func (s *flakyStore) Dequeue(ctx context.Context, minPriority, maxPriority queue.Priority, workerID string) (*queue.Item, error) {
	s.dequeueCalls.Add(1)
	if s.dequeueFailures.Add(-1) >= 0 {
		return nil, errors.New("database is locked")
	}
	return s.Store.Dequeue(ctx, minPriority, maxPriority, workerID)
}

func (s *flakyStore) Complete(ctx context.Context, id string) error {
	if s.completeFailures.Add(-1) >= 0 {
		return errors.New("disk I/O error")
	}
	return s.Store.Complete(ctx, id)
}

func TestWorkerSurvivesStoreErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 0))
	inner := testsupport.MustOpenStore(t, cfg)
	store := &flakyStore{Store: inner}
	store.dequeueFailures.Store(3)
	store.completeFailures.Store(1)

	ocfg := orchestrator.FromConfig(cfg)
	ocfg.ErrorBackoff = 10 * time.Millisecond
	ocfg.StaleTimeout = 50 * time.Millisecond
	ocfg.HousekeepingInterval = 50 * time.Millisecond

	var processed atomic.Int64
	orch := orchestrator.New(ocfg, store, funcProcessor(
		func(context.Context, queue.TaskType, map[string]any) dispatch.Result {
			processed.Add(1)
			return dispatch.Result{Success: true}
		},
	))
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, inner, time.Now(), queue.TaskSkillInvocation, queue.PriorityInteractive)

	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 10*time.Second, "item completion after store errors", func() bool {
		got, err := inner.Get(ctx, item.ID)
		return err == nil && got.Status == queue.StatusCompleted
	})
	st := orch.Status(ctx)
	if err := orch.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if st.State != orchestrator.StateRunning {
		t.Fatalf("store errors must not stop the orchestrator, state %s", st.State)
	}
	if st.LastError == "" {
		t.Fatal("expected store errors to be reported through LastError")
	}
	if calls := store.dequeueCalls.Load(); calls < 4 {
		t.Fatalf("worker stopped polling after dequeue errors, %d calls", calls)
	}
	// The failed Complete leaves the item PROCESSING until housekeeping
	// requeues it, so the handler runs a second time.
	if processed.Load() < 2 {
		t.Fatalf("expected the item to be retried after the failed Complete, processed %d", processed.Load())
	}
}

type requeueFailingStore struct {
	queue.Store
}

func (requeueFailingStore) RequeueStale(context.Context, time.Duration) (int64, error) {
	return 0, errors.New("requeue stale items: database is locked")
}

func TestHousekeepContinuesAfterRequeueError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	inner := testsupport.MustOpenStore(t, cfg, queue.Options{Clock: clock})
	ctx := context.Background()

	done := testsupport.MustEnqueue(t, inner, clock.Now(), queue.TaskSkillInvocation, queue.PriorityInteractive)
	if err := inner.Complete(ctx, done.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	ocfg := orchestrator.FromConfig(cfg)
	ocfg.CompletedRetention = time.Hour
	orch := orchestrator.New(ocfg, requeueFailingStore{Store: inner}, succeed(), orchestrator.WithClock(clock))

	clock.Advance(2 * time.Hour)
	orch.Housekeep(ctx)

	if counts := countsOf(t, inner); counts[queue.StatusCompleted] != 0 {
		t.Fatalf("purge should still run after the requeue step fails: %v", counts)
	}
	st := orch.Status(ctx)
	if !strings.Contains(st.LastError, "requeue stale items") {
		t.Fatalf("expected requeue failure in LastError, got %q", st.LastError)
	}
}
