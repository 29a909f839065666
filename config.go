package tempo

import "time"

// Config holds process-wide engine configuration. None of these values are
// configurable per job.
type Config struct {
	// PollInterval is how often the worker loop queries the scheduling
	// index for due jobs.
	PollInterval time.Duration

	// RetryBackoff is the delay added to a failed job's scheduled_at
	// before it becomes eligible again.
	RetryBackoff time.Duration

	// ReconcileInterval is how often the worker re-indexes pending jobs
	// that are missing from the scheduling index. Zero disables the
	// periodic sweep; a sweep still runs once at start.
	ReconcileInterval time.Duration

	// StaleJobThreshold is how long a job may stay in_progress before the
	// reconcile sweep assumes its worker died and records a failed
	// attempt. Zero disables reaping.
	StaleJobThreshold time.Duration

	// DefaultMaxRetries is applied when a create request leaves
	// max_retries unset.
	DefaultMaxRetries int

	// ShutdownTimeout bounds how long Stop waits for an in-flight cycle.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		RetryBackoff:      5 * time.Minute,
		ReconcileInterval: 1 * time.Minute,
		StaleJobThreshold: 10 * time.Minute,
		DefaultMaxRetries: 3,
		ShutdownTimeout:   30 * time.Second,
	}
}
