// Package backend opens the item store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"time"

	"courier/internal/config"
	"courier/internal/queue"
	"courier/internal/queue/pgstore"
	"courier/internal/queue/redisstore"
	"courier/internal/queue/sqlitestore"
	"courier/internal/services"
)

// Options derives the shared store options from configuration. A nil clock
// uses the system clock.
func Options(cfg *config.Config, clock queue.Clock) queue.Options {
	opts := queue.Options{Clock: clock}
	if cfg != nil {
		opts.Backoff = queue.Backoff{
			Base: time.Duration(cfg.Queue.RetryBackoffBaseSeconds) * time.Second,
			Max:  time.Duration(cfg.Queue.RetryBackoffMaxSeconds) * time.Second,
		}
	}
	return opts.WithDefaults()
}

// Open connects to the configured backend. The caller owns the returned store
// and must Close it.
func Open(ctx context.Context, cfg *config.Config, clock queue.Clock) (queue.AdminStore, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "store", "open", "config is required", nil)
	}
	opts := Options(cfg, clock)

	switch cfg.Store.Backend {
	case config.BackendSQLite, "":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		store, err := sqlitestore.Open(cfg.QueueDBPath(), opts)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		store, err := pgstore.Open(ctx, cfg.Store.DSN, opts)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.BackendRedis:
		store, err := redisstore.Open(ctx, redisstore.Config{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			Prefix:   cfg.Store.RedisPrefix,
		}, opts)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return store, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "store", "open",
			fmt.Sprintf("unsupported backend %q", cfg.Store.Backend), nil)
	}
}

// Describe returns a short location string for status output. Credentials in
// DSNs are never included.
func Describe(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		return "postgres"
	case config.BackendRedis:
		return "redis://" + cfg.Store.RedisAddr
	default:
		return cfg.QueueDBPath()
	}
}
