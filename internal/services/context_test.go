package services_test

import (
	"context"
	"testing"

	"courier/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, "01HZX")
	ctx = services.WithTaskType(ctx, "message_reply")
	ctx = services.WithPool(ctx, "interactive")
	ctx = services.WithWorkerID(ctx, "worker-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ItemIDFromContext(ctx); !ok || id != "01HZX" {
		t.Fatalf("unexpected item id: %v %v", id, ok)
	}
	if tt, ok := services.TaskTypeFromContext(ctx); !ok || tt != "message_reply" {
		t.Fatalf("unexpected task type: %v %v", tt, ok)
	}
	if pool, ok := services.PoolFromContext(ctx); !ok || pool != "interactive" {
		t.Fatalf("unexpected pool: %v %v", pool, ok)
	}
	if wid, ok := services.WorkerIDFromContext(ctx); !ok || wid != "worker-1" {
		t.Fatalf("unexpected worker id: %v %v", wid, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPool(ctx, "")
	ctx = services.WithItemID(ctx, "")
	if _, ok := services.PoolFromContext(ctx); ok {
		t.Fatal("expected no pool value")
	}
	if _, ok := services.ItemIDFromContext(ctx); ok {
		t.Fatal("expected no item id value")
	}
}
