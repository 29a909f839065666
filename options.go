package tempo

import (
	"fmt"
	"time"
)

// Option adjusts a Config.
type Option func(*Config) error

// NewConfig returns DefaultConfig with opts applied in order.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// WithPollInterval sets the worker cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("tempo: poll interval must be positive, got %s", d)
		}
		c.PollInterval = d
		return nil
	}
}

// WithRetryBackoff sets the fixed delay applied before a retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return fmt.Errorf("tempo: retry backoff must not be negative, got %s", d)
		}
		c.RetryBackoff = d
		return nil
	}
}

// WithReconcileInterval sets how often pending jobs are re-indexed.
// Zero disables the periodic sweep.
func WithReconcileInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return fmt.Errorf("tempo: reconcile interval must not be negative, got %s", d)
		}
		c.ReconcileInterval = d
		return nil
	}
}

// WithStaleJobThreshold sets how long a job may stay in_progress before
// it is reaped. Zero disables reaping.
func WithStaleJobThreshold(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return fmt.Errorf("tempo: stale job threshold must not be negative, got %s", d)
		}
		c.StaleJobThreshold = d
		return nil
	}
}

// WithDefaultMaxRetries sets the retry budget used when a create request
// omits one.
func WithDefaultMaxRetries(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("tempo: default max retries must be at least 1, got %d", n)
		}
		c.DefaultMaxRetries = n
		return nil
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.ShutdownTimeout = d
		return nil
	}
}
