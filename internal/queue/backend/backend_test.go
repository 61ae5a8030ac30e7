package backend_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"courier/internal/config"
	"courier/internal/queue"
	"courier/internal/queue/backend"
	"courier/internal/queue/sqlitestore"
	"courier/internal/services"
	"courier/internal/testsupport"
)

func TestOpenSQLite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := backend.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*sqlitestore.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if got := backend.Describe(cfg); got != filepath.Join(cfg.Paths.DataDir, "queue.db") {
		t.Fatalf("Describe = %q", got)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Store.Backend = "etcd"
	_, err := backend.Open(context.Background(), cfg, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Store.Backend = config.BackendPostgres
	cfg.Store.DSN = ""
	if _, err := backend.Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestOptionsConvertsBackoff(t *testing.T) {
	cfg := config.Default()
	cfg.Queue.RetryBackoffBaseSeconds = 5
	cfg.Queue.RetryBackoffMaxSeconds = 600
	clock := testsupport.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	opts := backend.Options(&cfg, clock)
	if opts.Backoff.Base != 5*time.Second || opts.Backoff.Max != 10*time.Minute {
		t.Fatalf("unexpected backoff %+v", opts.Backoff)
	}
	if opts.Clock != queue.Clock(clock) {
		t.Fatal("expected supplied clock")
	}
	if backend.Options(nil, nil).Clock != queue.SystemClock {
		t.Fatal("expected system clock default")
	}
}
