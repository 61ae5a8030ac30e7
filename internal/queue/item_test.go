package queue_test

import (
	"errors"
	"testing"
	"time"

	"courier/internal/queue"
)

func TestNewItemDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item, err := queue.NewItem(queue.Spec{
		TaskType:    queue.TaskMessageReply,
		Priority:    queue.PriorityInteractive,
		MaxAttempts: 3,
		UserID:      "u-1",
		ChannelID:   "c-1",
	}, now)
	if err != nil {
		t.Fatalf("NewItem returned error: %v", err)
	}
	if item.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if item.Status != queue.StatusQueued {
		t.Fatalf("expected queued status, got %s", item.Status)
	}
	if !item.ScheduledFor.Equal(now) {
		t.Fatalf("expected scheduled_for to default to now, got %s", item.ScheduledFor)
	}
	if item.Payload == nil {
		t.Fatal("expected payload map")
	}
	if item.Payload[queue.PayloadUserID] != "u-1" || item.Payload[queue.PayloadChannelID] != "c-1" {
		t.Fatalf("expected producer identity mirrored into payload, got %#v", item.Payload)
	}
	if !item.Eligible(now) {
		t.Fatal("expected item to be eligible immediately")
	}
}

func TestNewItemClampsPastSchedule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item, err := queue.NewItem(queue.Spec{
		TaskType:     queue.TaskScheduledAction,
		Priority:     queue.PriorityScheduled,
		MaxAttempts:  1,
		ScheduledFor: now.Add(-time.Hour),
	}, now)
	if err != nil {
		t.Fatalf("NewItem returned error: %v", err)
	}
	if !item.ScheduledFor.Equal(item.CreatedAt) {
		t.Fatalf("expected scheduled_for clamped to created_at, got %s", item.ScheduledFor)
	}
}

func TestNewItemDeferredEligibility(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item, err := queue.NewItem(queue.Spec{
		TaskType:     queue.TaskBulkIngestion,
		Priority:     queue.PriorityBulk,
		MaxAttempts:  1,
		ScheduledFor: now.Add(time.Hour),
	}, now)
	if err != nil {
		t.Fatalf("NewItem returned error: %v", err)
	}
	if item.Eligible(now.Add(59 * time.Minute)) {
		t.Fatal("expected item to be ineligible before scheduled_for")
	}
	if !item.Eligible(now.Add(time.Hour)) {
		t.Fatal("expected item to be eligible at scheduled_for")
	}
}

func TestNewItemRejectsInvalidInput(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		spec queue.Spec
	}{
		{"priority above bulk", queue.Spec{TaskType: queue.TaskMessageReply, Priority: 4, MaxAttempts: 1}},
		{"negative priority", queue.Spec{TaskType: queue.TaskMessageReply, Priority: -1, MaxAttempts: 1}},
		{"unknown task type", queue.Spec{TaskType: "email_digest", MaxAttempts: 1}},
		{"zero max attempts", queue.Spec{TaskType: queue.TaskMessageReply}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := queue.NewItem(tc.spec, now)
			if !errors.Is(err, queue.ErrInvalidItem) {
				t.Fatalf("expected ErrInvalidItem, got %v", err)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	if p, ok := queue.ParsePriority("near-interactive"); !ok || p != queue.PriorityNearInteractive {
		t.Fatalf("unexpected priority parse: %v %v", p, ok)
	}
	if p, ok := queue.ParsePriority("3"); !ok || p != queue.PriorityBulk {
		t.Fatalf("unexpected numeric priority parse: %v %v", p, ok)
	}
	if _, ok := queue.ParsePriority("7"); ok {
		t.Fatal("expected out-of-range priority to be rejected")
	}
	if s, ok := queue.ParseStatus(" DEAD "); !ok || s != queue.StatusDead {
		t.Fatalf("unexpected status parse: %v %v", s, ok)
	}
	if _, ok := queue.ParseTaskType("unknown"); ok {
		t.Fatal("expected unknown task type to be rejected")
	}
	if !queue.StatusCompleted.Terminal() || !queue.StatusDead.Terminal() || queue.StatusQueued.Terminal() {
		t.Fatal("unexpected terminal classification")
	}
	if !queue.InteractiveBand.Contains(queue.PriorityNearInteractive) || queue.InteractiveBand.Contains(queue.PriorityScheduled) {
		t.Fatal("unexpected interactive band membership")
	}
}

func TestResolveFailureExhaustsAfterMaxAttempts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item, err := queue.NewItem(queue.Spec{TaskType: queue.TaskSkillInvocation, MaxAttempts: 3}, now)
	if err != nil {
		t.Fatalf("NewItem returned error: %v", err)
	}
	backoff := queue.Backoff{}
	for attempt := 1; attempt <= 2; attempt++ {
		item.Status = queue.StatusProcessing
		item.WorkerID = "w"
		if got := queue.ResolveFailure(item, "boom", now, backoff); got != queue.StatusQueued {
			t.Fatalf("attempt %d: expected queued, got %s", attempt, got)
		}
		if item.WorkerID != "" || item.StartedAt != nil {
			t.Fatalf("attempt %d: expected claim fields cleared", attempt)
		}
	}
	item.Status = queue.StatusProcessing
	if got := queue.ResolveFailure(item, "final", now, backoff); got != queue.StatusDead {
		t.Fatalf("expected dead after third failure, got %s", got)
	}
	if item.AttemptCount != 3 || item.LastError != "final" || item.CompletedAt == nil {
		t.Fatalf("unexpected dead item: %+v", item)
	}
	if got := queue.ResolveFailure(item, "again", now, backoff); got != queue.StatusDead || item.AttemptCount != 3 {
		t.Fatalf("expected terminal item untouched, got %s attempts=%d", got, item.AttemptCount)
	}
}
