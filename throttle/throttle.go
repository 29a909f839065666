package throttle

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Config defines the dispatch rate for one job type.
type Config struct {
	// JobType is the handler type tag the limit applies to.
	JobType string `json:"job_type" mapstructure:"job_type"`

	// RateLimit is the maximum sustained dispatches per second. Zero
	// disables rate limiting for the type.
	RateLimit float64 `json:"rate_limit" mapstructure:"rate_limit"`

	// RateBurst is the token bucket size. Defaults to 1 if RateLimit is
	// set but RateBurst is zero.
	RateBurst int `json:"rate_burst" mapstructure:"rate_burst"`
}

// Limiter enforces per-type dispatch rates. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	limiters map[string]*rate.Limiter
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the clock used to refill buckets.
func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// New creates a Limiter with the given per-type configurations.
func New(configs []Config, opts ...Option) *Limiter {
	l := &Limiter{
		clock:    clockwork.NewRealClock(),
		limiters: make(map[string]*rate.Limiter, len(configs)),
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, cfg := range configs {
		l.set(cfg)
	}
	return l
}

func newRateLimiter(cfg Config) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}

// Allow reports whether a job of jobType may be dispatched now, consuming
// a token if so.
func (l *Limiter) Allow(jobType string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rl := l.limiters[jobType]
	if rl == nil {
		return true
	}
	return rl.AllowN(l.clock.Now(), 1)
}

// Set replaces (or adds) the configuration for cfg.JobType. A zero
// RateLimit removes the limit.
func (l *Limiter) Set(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set(cfg)
}

func (l *Limiter) set(cfg Config) {
	rl := newRateLimiter(cfg)
	if rl == nil {
		delete(l.limiters, cfg.JobType)
		return
	}
	l.limiters[cfg.JobType] = rl
}

// Limited reports whether jobType has a rate limit.
func (l *Limiter) Limited(jobType string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.limiters[jobType]
	return ok
}
