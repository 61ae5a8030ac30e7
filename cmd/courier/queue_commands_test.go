package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"courier/internal/api"
	"courier/internal/queue"
	"courier/internal/testsupport"
)

func TestEnqueueAndListWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "enqueue", "message_reply", "--user", "u-1", "--payload", `{"text":"hi"}`)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		t.Fatal("expected item id on stdout")
	}

	item, err := env.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if item.Priority != queue.PriorityInteractive {
		t.Fatalf("priority = %v, want interactive default", item.Priority)
	}
	if item.Payload["text"] != "hi" {
		t.Fatalf("payload = %v", item.Payload)
	}

	out, _, err = runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "message_reply")
	requireContains(t, out, "interactive")

	out, _, err = runCLI(t, env.configPath, "queue", "show", id)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "u-1")
	requireContains(t, out, `"text": "hi"`)
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	env := setupCLITestEnv(t)

	cases := [][]string{
		{"enqueue", "not_a_type"},
		{"enqueue", "message_reply", "--priority", "urgent"},
		{"enqueue", "message_reply", "--payload", "[1,2]"},
		{"enqueue", "message_reply", "--at", "tomorrow"},
	}
	for _, args := range cases {
		if _, _, err := runCLI(t, env.configPath, args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}

	items, err := env.store.List(context.Background(), queue.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected nothing enqueued, got %d items", len(items))
	}
}

func TestQueueStatsJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	now := time.Now()
	testsupport.MustEnqueue(t, env.store, now, queue.TaskBulkIngestion, queue.PriorityBulk)
	testsupport.MustEnqueue(t, env.store, now, queue.TaskMessageReply, queue.PriorityInteractive)

	out, _, err := runCLI(t, env.configPath, "--json", "queue", "stats")
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	var resp api.QueueStatsResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if resp.Counts[string(queue.StatusQueued)] != 2 {
		t.Fatalf("queued count = %d, want 2", resp.Counts[string(queue.StatusQueued)])
	}

	out, _, err = runCLI(t, env.configPath, "queue", "stats")
	if err != nil {
		t.Fatalf("queue stats text: %v", err)
	}
	requireContains(t, out, "total")
}

func TestQueueRetryDeadItem(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	dead, err := queue.NewItem(queue.Spec{
		TaskType:    queue.TaskSkillInvocation,
		Priority:    queue.PriorityNearInteractive,
		MaxAttempts: 1,
	}, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	if _, err := env.store.Enqueue(ctx, dead); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := env.store.Dequeue(ctx, queue.PriorityInteractive, queue.PriorityBulk, "test-worker")
	if err != nil || claimed == nil {
		t.Fatalf("dequeue = %v, %v", claimed, err)
	}
	status, err := env.store.Fail(ctx, claimed.ID, "boom")
	if err != nil || status != queue.StatusDead {
		t.Fatalf("fail = %v, %v", status, err)
	}
	queued := testsupport.MustEnqueue(t, env.store, time.Now(), queue.TaskMessageReply, queue.PriorityInteractive)

	out, _, err := runCLI(t, env.configPath, "queue", "list", "--status", "dead")
	if err != nil {
		t.Fatalf("list dead: %v", err)
	}
	requireContains(t, out, dead.ID)
	requireContains(t, out, "boom")
	if strings.Contains(out, queued.ID) {
		t.Fatalf("status filter leaked queued item: %s", out)
	}

	out, _, err = runCLI(t, env.configPath, "queue", "retry", dead.ID, queued.ID, "missing")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireContains(t, out, dead.ID+": requeued")
	requireContains(t, out, queued.ID+": not dead")
	requireContains(t, out, "missing: not found")
	requireContains(t, out, "Retried 1 item(s)")

	item, err := env.store.Get(ctx, dead.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.Status != queue.StatusQueued || item.AttemptCount != 0 {
		t.Fatalf("retried item = %s attempts %d", item.Status, item.AttemptCount)
	}
}

func TestQueueRequeueStaleAndPurge(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	testsupport.MustEnqueue(t, env.store, time.Now(), queue.TaskScheduledAction, queue.PriorityScheduled)
	if _, err := env.store.Dequeue(ctx, queue.PriorityInteractive, queue.PriorityBulk, "w"); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "queue", "requeue-stale", "--timeout", "0")
	if err != nil {
		t.Fatalf("requeue-stale: %v", err)
	}
	requireContains(t, out, "Requeued 1 item(s)")

	out, _, err = runCLI(t, env.configPath, "--json", "queue", "purge", "--completed-hours", "1", "--dead-days", "1")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	var result api.MaintenanceResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode purge: %v\n%s", err, out)
	}
	if result.PurgedCompleted != 0 || result.PurgedDead != 0 {
		t.Fatalf("unexpected purge result %+v", result)
	}
}

func TestQueueCommandsThroughDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	out, _, err := runCLI(t, env.configPath, "--json", "enqueue", "bulk_ingestion", "--priority", "scheduled")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var resp api.EnqueueResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil || resp.ID == "" {
		t.Fatalf("decode enqueue: %v\n%s", err, out)
	}

	out, _, err = runCLI(t, env.configPath, "--json", "queue", "show", resp.ID)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	var shown api.QueueItemResponse
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decode show: %v\n%s", err, out)
	}
	if shown.Item.Priority != "scheduled" || shown.Item.TaskType != "bulk_ingestion" {
		t.Fatalf("unexpected item %+v", shown.Item)
	}

	if _, _, err := runCLI(t, env.configPath, "queue", "show", "nope"); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestTruncateCollapsesWhitespace(t *testing.T) {
	got := truncate("line one\n  line two", 40)
	if got != "line one line two" {
		t.Fatalf("truncate = %q", got)
	}
	long := truncate(strings.Repeat("x", 50), 10)
	if len([]rune(long)) != 10 || !strings.HasSuffix(long, "…") {
		t.Fatalf("truncate long = %q", long)
	}
}
