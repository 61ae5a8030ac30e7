package orchestrator

import (
	"time"

	"courier/internal/config"
)

// Config holds the explicit values the orchestrator runs with.
type Config struct {
	InteractiveWorkers      int
	BackgroundWorkers       int
	InteractivePollInterval time.Duration
	BackgroundPollInterval  time.Duration
	MaxAttempts             int
	StaleTimeout            time.Duration
	DrainTimeout            time.Duration
	HousekeepingInterval    time.Duration
	CompletedRetention      time.Duration
	DeadRetention           time.Duration
	ErrorBackoff            time.Duration
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return FromConfig(nil)
}

// FromConfig converts the [queue] section of the TOML configuration. A nil
// cfg yields the defaults.
func FromConfig(cfg *config.Config) Config {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	q := cfg.Queue
	return Config{
		InteractiveWorkers:      q.InteractiveWorkers,
		BackgroundWorkers:       q.BackgroundWorkers,
		InteractivePollInterval: time.Duration(q.InteractivePollIntervalMS) * time.Millisecond,
		BackgroundPollInterval:  time.Duration(q.BackgroundPollIntervalMS) * time.Millisecond,
		MaxAttempts:             q.MaxAttempts,
		StaleTimeout:            time.Duration(q.StaleTimeoutSeconds) * time.Second,
		DrainTimeout:            time.Duration(q.DrainTimeoutSeconds) * time.Second,
		HousekeepingInterval:    time.Duration(q.HousekeepingIntervalSeconds) * time.Second,
		CompletedRetention:      time.Duration(q.CompletedRetentionHours) * time.Hour,
		DeadRetention:           time.Duration(q.DeadRetentionDays) * 24 * time.Hour,
		ErrorBackoff:            time.Duration(q.ErrorBackoffSeconds) * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.InteractiveWorkers < 0 {
		c.InteractiveWorkers = 0
	}
	if c.BackgroundWorkers < 0 {
		c.BackgroundWorkers = 0
	}
	if c.InteractivePollInterval <= 0 {
		c.InteractivePollInterval = 500 * time.Millisecond
	}
	if c.BackgroundPollInterval <= 0 {
		c.BackgroundPollInterval = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = 10 * time.Minute
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if c.HousekeepingInterval <= 0 {
		c.HousekeepingInterval = time.Minute
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = 24 * time.Hour
	}
	if c.DeadRetention <= 0 {
		c.DeadRetention = 7 * 24 * time.Hour
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 2 * time.Second
	}
	return c
}
