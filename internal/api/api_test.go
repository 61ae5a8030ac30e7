package api

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"courier/internal/orchestrator"
	"courier/internal/queue"
	"courier/internal/services"
)

type mockQueueReader struct {
	items    []*queue.Item
	stats    map[queue.Status]int
	itemErr  error
	statsErr error
}

func (m *mockQueueReader) List(context.Context, queue.ListFilter) ([]*queue.Item, error) {
	return m.items, m.itemErr
}

func (m *mockQueueReader) StatusCounts(context.Context) (map[queue.Status]int, error) {
	return m.stats, m.statsErr
}

func (m *mockQueueReader) Get(_ context.Context, id string) (*queue.Item, error) {
	for _, item := range m.items {
		if item.ID == id {
			return item, nil
		}
	}
	if m.itemErr != nil {
		return nil, m.itemErr
	}
	return nil, queue.ErrNotFound
}

func TestFromQueueItem(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	item := &queue.Item{
		ID:           "01J0000000000000000000000A",
		Priority:     queue.PriorityNearInteractive,
		Status:       queue.StatusProcessing,
		TaskType:     queue.TaskSkillInvocation,
		Payload:      map[string]any{"intent": "weather"},
		AttemptCount: 1,
		MaxAttempts:  3,
		WorkerID:     "interactive-0-abcd1234",
		CreatedAt:    created,
		ScheduledFor: created,
		StartedAt:    &started,
		UserID:       "u1",
	}
	dto := FromQueueItem(item)
	if dto.Priority != "near_interactive" || dto.PriorityValue != 1 {
		t.Fatalf("unexpected priority %q/%d", dto.Priority, dto.PriorityValue)
	}
	if dto.Status != "processing" || dto.TaskType != "skill_invocation" {
		t.Fatalf("unexpected status/type %q/%q", dto.Status, dto.TaskType)
	}
	if dto.CreatedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected createdAt %q", dto.CreatedAt)
	}
	if dto.StartedAt == "" || dto.CompletedAt != "" {
		t.Fatalf("unexpected started/completed %q/%q", dto.StartedAt, dto.CompletedAt)
	}
	if dto.Payload["intent"] != "weather" {
		t.Fatalf("payload not carried: %#v", dto.Payload)
	}
	if got := FromQueueItem(nil); got.ID != "" {
		t.Fatalf("expected zero DTO for nil item, got %+v", got)
	}
}

func TestFromOrchestratorStatusZeroFillsCounts(t *testing.T) {
	status := FromOrchestratorStatus(orchestrator.Status{
		State:        orchestrator.StateRunning,
		Running:      true,
		Workers:      6,
		StatusCounts: map[queue.Status]int{queue.StatusQueued: 4},
	})
	if status.State != "running" || !status.Running || status.Workers != 6 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Counts["queued"] != 4 {
		t.Fatalf("queued = %d, want 4", status.Counts["queued"])
	}
	for _, s := range queue.AllStatuses() {
		if _, ok := status.Counts[string(s)]; !ok {
			t.Fatalf("missing count for %s", s)
		}
	}
	if status.LastHousekeeping != "" {
		t.Fatalf("expected empty housekeeping time, got %q", status.LastHousekeeping)
	}
}

func TestQueueService(t *testing.T) {
	now := time.Now().UTC()
	reader := &mockQueueReader{
		items: []*queue.Item{{ID: "a", TaskType: queue.TaskBulkIngestion, Status: queue.StatusQueued, CreatedAt: now}},
		stats: map[queue.Status]int{queue.StatusQueued: 1},
	}
	svc := NewQueueService(reader)

	items, err := svc.List(context.Background(), queue.ListFilter{})
	if err != nil || len(items) != 1 {
		t.Fatalf("List = %v, %v", items, err)
	}
	stats, err := svc.Stats(context.Background())
	if err != nil || stats["queued"] != 1 || stats["dead"] != 0 {
		t.Fatalf("Stats = %v, %v", stats, err)
	}
	item, err := svc.Describe(context.Background(), "a")
	if err != nil || item == nil || item.ID != "a" {
		t.Fatalf("Describe = %+v, %v", item, err)
	}
	missing, err := svc.Describe(context.Background(), "nope")
	if err != nil || missing != nil {
		t.Fatalf("Describe(missing) = %+v, %v", missing, err)
	}

	boom := errors.New("boom")
	if _, err := NewQueueService(&mockQueueReader{itemErr: boom}).List(context.Background(), queue.ListFilter{}); !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
	if NewQueueService(nil) != nil {
		t.Fatal("expected nil service for nil reader")
	}
}

type queueActionStub struct {
	items    map[string]*QueueItem
	retryErr error
	retried  []string
}

func (s *queueActionStub) Describe(_ context.Context, id string) (*QueueItem, error) {
	return s.items[id], nil
}

func (s *queueActionStub) Retry(_ context.Context, id string) error {
	if s.retryErr != nil {
		return s.retryErr
	}
	s.retried = append(s.retried, id)
	return nil
}

func TestRetryDeadItemsByID(t *testing.T) {
	stub := &queueActionStub{items: map[string]*QueueItem{
		"dead":   {ID: "dead", Status: "dead"},
		"queued": {ID: "queued", Status: "queued"},
	}}
	result, err := RetryDeadItemsByID(context.Background(), stub, []string{"dead", "queued", "missing"})
	if err != nil {
		t.Fatalf("RetryDeadItemsByID: %v", err)
	}
	if result.UpdatedCount != 1 || len(stub.retried) != 1 || stub.retried[0] != "dead" {
		t.Fatalf("unexpected retries %+v / %v", result, stub.retried)
	}
	want := []RetryItemOutcome{RetryItemUpdated, RetryItemNotDead, RetryItemNotFound}
	for i, outcome := range want {
		if result.Items[i].Outcome != outcome {
			t.Fatalf("item %d outcome = %s, want %s", i, result.Items[i].Outcome, outcome)
		}
	}
}

func TestRetryDeadItemsByIDRace(t *testing.T) {
	stub := &queueActionStub{
		items:    map[string]*QueueItem{"dead": {ID: "dead", Status: "dead"}},
		retryErr: queue.ErrInvalidTransition,
	}
	result, err := RetryDeadItemsByID(context.Background(), stub, []string{"dead"})
	if err != nil {
		t.Fatalf("RetryDeadItemsByID: %v", err)
	}
	if result.UpdatedCount != 0 || result.Items[0].Outcome != RetryItemNotDead {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestEnqueueRequestDefaultsPriorityByTaskType(t *testing.T) {
	cases := map[string]queue.Priority{
		"message_reply":    queue.PriorityInteractive,
		"skill_invocation": queue.PriorityNearInteractive,
		"scheduled_action": queue.PriorityScheduled,
		"bulk_ingestion":   queue.PriorityBulk,
	}
	for taskType, want := range cases {
		req, err := EnqueueRequest{TaskType: taskType}.ToOrchestrator()
		if err != nil {
			t.Fatalf("%s: %v", taskType, err)
		}
		if req.Priority != want {
			t.Fatalf("%s: priority = %v, want %v", taskType, req.Priority, want)
		}
	}
}

func TestEnqueueRequestExplicitFields(t *testing.T) {
	req, err := EnqueueRequest{
		TaskType:     "message_reply",
		Priority:     "bulk",
		ChannelID:    "c1",
		ScheduledFor: "2026-05-01T10:00:00Z",
		Payload:      map[string]any{"content": "hi"},
	}.ToOrchestrator()
	if err != nil {
		t.Fatalf("ToOrchestrator: %v", err)
	}
	if req.Priority != queue.PriorityBulk || req.ChannelID != "c1" {
		t.Fatalf("unexpected request %+v", req)
	}
	if !req.ScheduledFor.Equal(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected scheduledFor %v", req.ScheduledFor)
	}

	numeric, err := EnqueueRequest{TaskType: "bulk_ingestion", Priority: "1"}.ToOrchestrator()
	if err != nil || numeric.Priority != queue.PriorityNearInteractive {
		t.Fatalf("numeric priority = %v, %v", numeric.Priority, err)
	}
}

func TestEnqueueRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		req  EnqueueRequest
		want string
	}{
		{"missing type", EnqueueRequest{}, "taskType is required"},
		{"unknown type", EnqueueRequest{TaskType: "video_encode"}, "not a known task type"},
		{"bad priority", EnqueueRequest{TaskType: "message_reply", Priority: "7"}, "not a priority band"},
		{"bad schedule", EnqueueRequest{TaskType: "message_reply", ScheduledFor: "tomorrow"}, "not an RFC3339 timestamp"},
		{"long correlation", EnqueueRequest{TaskType: "message_reply", CorrelationID: strings.Repeat("x", 129)}, "correlationId exceeds 128"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.req.ToOrchestrator()
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q missing %q", err, tc.want)
			}
		})
	}
}

func TestSortQueueItemsNewestFirst(t *testing.T) {
	items := []QueueItem{
		{ID: "a", CreatedAt: "2026-01-01T00:00:00.000Z"},
		{ID: "c", CreatedAt: "2026-01-02T00:00:00.000Z"},
		{ID: "b", CreatedAt: "2026-01-02T00:00:00.000Z"},
	}
	sorted := SortQueueItemsNewestFirst(items)
	if sorted[0].ID != "c" || sorted[1].ID != "b" || sorted[2].ID != "a" {
		t.Fatalf("unexpected order %v", []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
	}
	if items[0].ID != "a" {
		t.Fatal("input slice mutated")
	}
}
