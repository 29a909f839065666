package handlers

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tempohq/tempo/job"
)

// Job types served by this package.
const (
	TypeEmailNotification = "email_notification"
	TypeResizeImage       = "resize_image"
	TypeGeneratePDF       = "generate_pdf"
)

// Simulation controls how a handler fakes its work.
type Simulation struct {
	// Delay is how long the handler pretends to work.
	Delay time.Duration `json:"delay" mapstructure:"delay"`
	// FailureRate is the probability in [0, 1] that a run fails after the
	// delay.
	FailureRate float64 `json:"failure_rate" mapstructure:"failure_rate"`
}

// Config holds the simulation settings of every built-in handler.
type Config struct {
	EmailNotification Simulation `json:"email_notification" mapstructure:"email_notification"`
	ResizeImage       Simulation `json:"resize_image" mapstructure:"resize_image"`
	GeneratePDF       Simulation `json:"generate_pdf" mapstructure:"generate_pdf"`
}

// DefaultConfig returns the stock delays and failure rates.
func DefaultConfig() Config {
	return Config{
		EmailNotification: Simulation{Delay: 1000 * time.Millisecond, FailureRate: 0.10},
		ResizeImage:       Simulation{Delay: 1500 * time.Millisecond, FailureRate: 0.20},
		GeneratePDF:       Simulation{Delay: 1200 * time.Millisecond, FailureRate: 0.15},
	}
}

// Option configures the handler set.
type Option func(*simulator)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(s *simulator) { s.cfg = cfg }
}

// WithClock sets the clock used for simulated delays.
func WithClock(c clockwork.Clock) Option {
	return func(s *simulator) { s.clock = c }
}

// WithRand sets the source of the failure roll. It must return values in
// [0, 1).
func WithRand(f func() float64) Option {
	return func(s *simulator) { s.rand = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *simulator) { s.logger = l }
}

type simulator struct {
	cfg    Config
	clock  clockwork.Clock
	rand   func() float64
	logger *slog.Logger
}

func newSimulator(opts ...Option) *simulator {
	s := &simulator{
		cfg:    DefaultConfig(),
		clock:  clockwork.NewRealClock(),
		rand:   rand.Float64,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// work waits out the simulated delay and rolls for failure. It returns
// ctx.Err() if the context ends first, errFail on a failed roll, and nil
// otherwise.
func (s *simulator) work(ctx context.Context, sim Simulation, errFail error) error {
	if sim.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(sim.Delay):
		}
	}
	if sim.FailureRate > 0 && s.rand() < sim.FailureRate {
		return errFail
	}
	return nil
}

// All returns the built-in handlers.
func All(opts ...Option) []job.Handler {
	s := newSimulator(opts...)
	return []job.Handler{
		job.NewDefinition(TypeEmailNotification, s.sendEmail),
		job.NewDefinition(TypeResizeImage, s.resizeImage),
		job.NewDefinition(TypeGeneratePDF, s.generatePDF),
	}
}

// Register adds every built-in handler to r.
func Register(r *job.Registry, opts ...Option) {
	for _, h := range All(opts...) {
		r.Register(h)
	}
}
