package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courier/internal/api"
	"courier/internal/config"
	"courier/internal/daemon"
	"courier/internal/dispatch"
	"courier/internal/ipc"
	"courier/internal/logging"
	"courier/internal/orchestrator"
	"courier/internal/preflight"
	"courier/internal/queue"
	"courier/internal/testsupport"
)

type okProcessor struct{}

func (okProcessor) Process(context.Context, queue.TaskType, map[string]any) dispatch.Result {
	return dispatch.Result{Success: true}
}

func passingPreflight(context.Context, *config.Config, preflight.Pinger) []preflight.Result {
	return []preflight.Result{{Name: "Data directory", Passed: true}}
}

type harness struct {
	cfg     *config.Config
	store   queue.AdminStore
	logPath string
	client  *ipc.Client
}

func newHarness(t *testing.T) harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 1))
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	logPath := filepath.Join(cfg.Paths.LogDir, "courier-test.log")

	orch := orchestrator.New(orchestrator.FromConfig(cfg), store, okProcessor{}, orchestrator.WithLogger(logger))
	d, err := daemon.New(cfg, store, orch, logger, daemon.WithPreflight(passingPreflight), daemon.WithLogPath(logPath))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = d.Stop(stopCtx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// Unix socket paths are length limited, so keep them out of deep temp dirs.
	sockDir, err := os.MkdirTemp("", "cipc")
	if err != nil {
		t.Fatalf("mkdir socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })
	socket := filepath.Join(sockDir, "courier.sock")

	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return harness{cfg: cfg, store: store, logPath: logPath, client: client}
}

func TestIPCStartStatusStop(t *testing.T) {
	h := newHarness(t)

	startResp, err := h.client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}
	again, err := h.client.Start()
	if err != nil || !again.Started {
		t.Fatalf("second start = %+v, %v", again, err)
	}

	status, err := h.client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.Queue.Workers != 2 {
		t.Fatalf("workers = %d, want 2", status.Queue.Workers)
	}
	if status.QueueDBPath != h.cfg.QueueDBPath() {
		t.Fatalf("queue db path = %q", status.QueueDBPath)
	}

	stopResp, err := h.client.Stop()
	if err != nil || !stopResp.Stopped {
		t.Fatalf("Stop RPC = %+v, %v", stopResp, err)
	}
	status, err = h.client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestIPCQueueOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.client.Enqueue(api.EnqueueRequest{
		TaskType: string(queue.TaskBulkIngestion),
		UserID:   "u-1",
		Payload:  map[string]any{"source": "archive"},
	})
	if err != nil {
		t.Fatalf("Enqueue RPC failed: %v", err)
	}

	item, err := h.client.QueueDescribe(id)
	if err != nil {
		t.Fatalf("QueueDescribe RPC failed: %v", err)
	}
	if item == nil || item.Priority != "bulk" || item.Status != string(queue.StatusQueued) {
		t.Fatalf("unexpected item: %+v", item)
	}
	missing, err := h.client.QueueDescribe("nope")
	if err != nil || missing != nil {
		t.Fatalf("describe missing = %+v, %v", missing, err)
	}

	if _, err := h.client.Enqueue(api.EnqueueRequest{TaskType: "unknown"}); err == nil {
		t.Fatal("expected validation error for unknown task type")
	}

	items, err := h.client.QueueList(ipc.QueueListRequest{Statuses: []string{"queued"}})
	if err != nil {
		t.Fatalf("QueueList RPC failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != id {
		t.Fatalf("unexpected list: %+v", items)
	}
	if _, err := h.client.QueueList(ipc.QueueListRequest{Statuses: []string{"bogus"}}); err == nil {
		t.Fatal("expected error for unknown status filter")
	}

	stats, err := h.client.QueueStats()
	if err != nil {
		t.Fatalf("QueueStats RPC failed: %v", err)
	}
	if stats["queued"] != 1 || stats["dead"] != 0 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	claimed, err := h.store.Dequeue(ctx, queue.PriorityScheduled, queue.PriorityBulk, "w-1")
	if err != nil || claimed == nil {
		t.Fatalf("dequeue: %v", err)
	}
	zero := 0
	requeued, err := h.client.QueueRequeueStale(&zero)
	if err != nil {
		t.Fatalf("QueueRequeueStale RPC failed: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("requeued = %d, want 1", requeued)
	}

	result, err := h.client.QueueRetry([]string{id, "missing"})
	if err != nil {
		t.Fatalf("QueueRetry RPC failed: %v", err)
	}
	if result.UpdatedCount != 0 || len(result.Items) != 2 {
		t.Fatalf("unexpected retry result: %+v", result)
	}
	if result.Items[0].Outcome != api.RetryItemNotDead || result.Items[1].Outcome != api.RetryItemNotFound {
		t.Fatalf("unexpected outcomes: %+v", result.Items)
	}

	purge, err := h.client.QueuePurge(ipc.QueuePurgeRequest{})
	if err != nil {
		t.Fatalf("QueuePurge RPC failed: %v", err)
	}
	if purge.PurgedCompleted != 0 || purge.PurgedDead != 0 {
		t.Fatalf("unexpected purge result: %+v", purge)
	}
}

func TestIPCLogTail(t *testing.T) {
	h := newHarness(t)
	if err := os.WriteFile(h.logPath, []byte("first\nitem_id=abc second\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	resp, err := h.client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail RPC failed: %v", err)
	}
	if len(resp.Lines) != 2 || resp.Lines[1] != "third" {
		t.Fatalf("unexpected lines: %#v", resp.Lines)
	}

	filtered, err := h.client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 10, Match: "item_id=abc"})
	if err != nil {
		t.Fatalf("LogTail RPC failed: %v", err)
	}
	if len(filtered.Lines) != 1 {
		t.Fatalf("unexpected filtered lines: %#v", filtered.Lines)
	}

	follow, err := h.client.LogTail(ipc.LogTailRequest{Offset: resp.Offset, Follow: true, WaitMillis: 100})
	if err != nil {
		t.Fatalf("LogTail follow RPC failed: %v", err)
	}
	if len(follow.Lines) != 0 || follow.Offset != resp.Offset {
		t.Fatalf("unexpected follow result: %+v", follow)
	}
}

func TestIPCTestNotificationWithoutTopic(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if resp.Sent {
		t.Fatal("expected no notification without a topic")
	}
}
