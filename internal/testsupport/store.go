package testsupport

import (
	"context"
	"testing"
	"time"

	"courier/internal/config"
	"courier/internal/queue"
	"courier/internal/queue/sqlitestore"
)

// MustOpenStore opens a SQLite-backed store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Options) *sqlitestore.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	var options queue.Options
	if len(opts) > 0 {
		options = opts[0]
	}
	store, err := sqlitestore.Open(cfg.QueueDBPath(), options)
	if err != nil {
		t.Fatalf("sqlitestore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustEnqueue builds and stores an item with the given type and priority.
func MustEnqueue(t testing.TB, store queue.Store, now time.Time, taskType queue.TaskType, priority queue.Priority) *queue.Item {
	t.Helper()

	item, err := queue.NewItem(queue.Spec{
		TaskType:    taskType,
		Priority:    priority,
		MaxAttempts: 3,
		Payload:     map[string]any{"text": "hello"},
	}, now)
	if err != nil {
		t.Fatalf("queue.NewItem: %v", err)
	}
	if _, err := store.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return item
}
