package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendSQLite:
		return nil
	case BackendPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn must be set when store.backend is postgres (or export COURIER_STORE_DSN)")
		}
		return nil
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr must be set when store.backend is redis")
		}
		if c.Store.RedisDB < 0 {
			return errors.New("store.redis_db must not be negative")
		}
		return nil
	default:
		return fmt.Errorf("store.backend: unsupported value %q (want sqlite, postgres, or redis)", c.Store.Backend)
	}
}

func (c *Config) validateQueue() error {
	q := c.Queue
	if err := ensurePositiveMap(map[string]int{
		"queue.interactive_workers":           q.InteractiveWorkers,
		"queue.interactive_poll_interval_ms":  q.InteractivePollIntervalMS,
		"queue.background_poll_interval_ms":   q.BackgroundPollIntervalMS,
		"queue.max_attempts":                  q.MaxAttempts,
		"queue.stale_timeout_seconds":         q.StaleTimeoutSeconds,
		"queue.drain_timeout_seconds":         q.DrainTimeoutSeconds,
		"queue.housekeeping_interval_seconds": q.HousekeepingIntervalSeconds,
		"queue.completed_retention_hours":     q.CompletedRetentionHours,
		"queue.dead_retention_days":           q.DeadRetentionDays,
		"queue.error_backoff_seconds":         q.ErrorBackoffSeconds,
	}); err != nil {
		return err
	}
	if err := ensureNonNegativeMap(map[string]int{
		"queue.background_workers":         q.BackgroundWorkers,
		"queue.handler_timeout_seconds":    q.HandlerTimeoutSeconds,
		"queue.retry_backoff_base_seconds": q.RetryBackoffBaseSeconds,
		"queue.retry_backoff_max_seconds":  q.RetryBackoffMaxSeconds,
	}); err != nil {
		return err
	}
	if q.RetryBackoffBaseSeconds > 0 && q.RetryBackoffMaxSeconds < q.RetryBackoffBaseSeconds {
		return errors.New("queue.retry_backoff_max_seconds must be at least queue.retry_backoff_base_seconds")
	}
	if q.HandlerTimeoutSeconds > 0 && q.StaleTimeoutSeconds <= q.HandlerTimeoutSeconds {
		return errors.New("queue.stale_timeout_seconds must be greater than queue.handler_timeout_seconds")
	}
	return nil
}

func (c *Config) validateGateway() error {
	if c.Gateway.MaxMessageLength < 0 {
		return errors.New("gateway.max_message_length must not be negative")
	}
	return ensureNonNegativeMap(map[string]int{
		"gateway.timeout_seconds":     c.Gateway.TimeoutSeconds,
		"gateway.context_ttl_seconds": c.Gateway.ContextTTLSeconds,
		"gateway.history_limit":       c.Gateway.HistoryLimit,
	})
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case "", ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider: unsupported value %q (want openai or gemini)", c.LLM.Provider)
	}
	if c.LLM.TimeoutSeconds < 0 {
		return errors.New("llm.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

// ensurePositiveMap reports the first offending key in sorted order so error
// messages are stable.
func ensurePositiveMap(values map[string]int) error {
	for _, key := range sortedKeys(values) {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func ensureNonNegativeMap(values map[string]int) error {
	for _, key := range sortedKeys(values) {
		if values[key] < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	return nil
}

func sortedKeys(values map[string]int) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
