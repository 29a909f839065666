package lifecycle

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tempohq/tempo/backoff"
	"github.com/tempohq/tempo/ext"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for scheduling and timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(b backoff.Strategy) Option {
	return func(m *Manager) { m.backoff = b }
}

// WithClaimer replaces the default StoreClaimer.
func WithClaimer(c Claimer) Option {
	return func(m *Manager) { m.claimer = c }
}

// WithExtensions sets the extension registry notified of transitions.
func WithExtensions(r *ext.Registry) Option {
	return func(m *Manager) { m.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithDefaultMaxRetries sets the max_retries applied when a create
// request leaves it unset.
func WithDefaultMaxRetries(n int) Option {
	return func(m *Manager) { m.defaultMaxRetries = n }
}

// WithStaleJobThreshold sets how long a job may stay in_progress before
// Reconcile treats its worker as lost. Zero disables reaping.
func WithStaleJobThreshold(d time.Duration) Option {
	return func(m *Manager) { m.staleThreshold = d }
}
