package scheduler

import (
	"time"

	"github.com/smallbiznis/revenuepulse/internal/config"
)

// Config controls how each scheduled report run is bounded.
type Config struct {
	RunTimeout time.Duration
	// RetryDelay is how long the loop waits after failing to read the schedule.
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunTimeout: config.DefaultRunTimeout,
		RetryDelay: time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{RunTimeout: cfg.RunTimeoutOrDefault()}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaults.RetryDelay
	}
	return c
}
