package pgstore_test

import (
	"context"
	"os"
	"testing"

	"courier/internal/queue"
	"courier/internal/queue/pgstore"
	"courier/internal/queue/queuetest"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("COURIER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COURIER_TEST_POSTGRES_DSN not set")
	}
	return dsn
}

func TestConformance(t *testing.T) {
	dsn := testDSN(t)
	queuetest.Run(t, func(t *testing.T, opts queue.Options) queue.AdminStore {
		ctx := context.Background()
		store, err := pgstore.Open(ctx, dsn, opts)
		if err != nil {
			t.Fatalf("pgstore.Open: %v", err)
		}
		if err := store.Reset(ctx); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := pgstore.Open(context.Background(), "", queue.Options{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
