package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/backoff"
	"github.com/tempohq/tempo/ext"
	"github.com/tempohq/tempo/job"
	"github.com/tempohq/tempo/lifecycle"
	mw "github.com/tempohq/tempo/middleware"
	"github.com/tempohq/tempo/observability"
	"github.com/tempohq/tempo/schedule"
	"github.com/tempohq/tempo/throttle"
	"github.com/tempohq/tempo/worker"
)

// ErrNoStore is returned by Build when the job store or index is nil.
var ErrNoStore = errors.New("tempo: job store and scheduling index are required")

// Engine owns one lifecycle manager, handler registry and worker loop.
// Use Build to create one.
type Engine struct {
	cfg        tempo.Config
	logger     *slog.Logger
	clock      clockwork.Clock
	extensions *ext.Registry
	exts       []ext.Extension
	registry   *job.Registry
	bo         backoff.Strategy
	mws        []mw.Middleware
	throttles  []throttle.Config
	manager    *lifecycle.Manager
	executor   *worker.Executor
	loop       *worker.Loop

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the process-wide configuration. Defaults to
// tempo.DefaultConfig().
func WithConfig(cfg tempo.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLogger sets the logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithClock sets the clock that drives scheduling and the loop cadence.
func WithClock(c clockwork.Clock) Option {
	return func(eng *Engine) { eng.clock = c }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.exts = append(eng.exts, e)
	}
}

// WithMiddleware adds middleware to the engine's chain. Custom middleware
// runs inside the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy. If not set, a constant
// delay of Config.RetryBackoff is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithThrottle limits how fast jobs of the given types are dispatched.
func WithThrottle(cfgs ...throttle.Config) Option {
	return func(eng *Engine) {
		eng.throttles = append(eng.throttles, cfgs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// Both the metrics middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine over the given job store and scheduling index.
func Build(jobs job.Store, index schedule.Index, opts ...Option) (*Engine, error) {
	if jobs == nil || index == nil {
		return nil, ErrNoStore
	}

	eng := &Engine{
		cfg:      tempo.DefaultConfig(),
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		registry: job.NewRegistry(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive", tempo.ErrValidation)
	}
	if eng.logger == nil {
		eng.logger = slog.Default()
	}
	eng.extensions = ext.NewRegistry(eng.logger)
	for _, e := range eng.exts {
		eng.extensions.Register(e)
	}

	if eng.bo == nil {
		eng.bo = backoff.NewConstant(eng.cfg.RetryBackoff)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/tempohq/tempo"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/tempohq/tempo"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter("github.com/tempohq/tempo/observability"),
		)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging.
	defaultMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	eng.manager = lifecycle.New(jobs, index,
		lifecycle.WithClock(eng.clock),
		lifecycle.WithBackoff(eng.bo),
		lifecycle.WithExtensions(eng.extensions),
		lifecycle.WithLogger(eng.logger),
		lifecycle.WithDefaultMaxRetries(eng.cfg.DefaultMaxRetries),
		lifecycle.WithStaleJobThreshold(eng.cfg.StaleJobThreshold),
	)
	eng.executor = worker.NewExecutor(eng.registry, allMws...)
	loopOpts := []worker.LoopOption{
		worker.WithPollInterval(eng.cfg.PollInterval),
		worker.WithReconcileInterval(eng.cfg.ReconcileInterval),
	}
	if len(eng.throttles) > 0 {
		loopOpts = append(loopOpts, worker.WithThrottle(
			throttle.New(eng.throttles, throttle.WithClock(eng.clock)),
		))
	}
	eng.loop = worker.NewLoop(eng.manager, eng.executor, eng.logger, loopOpts...)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	eng.registry.Register(def)
}

// RegisterHandler registers an untyped handler with the engine.
func (eng *Engine) RegisterHandler(h job.Handler) {
	eng.registry.Register(h)
}

// EnqueueOption adjusts the parameters of a job created by Enqueue.
type EnqueueOption func(*job.CreateParams)

// At schedules the job for t. Past times run on the next cycle.
func At(t time.Time) EnqueueOption {
	return func(p *job.CreateParams) { p.ScheduledAt = t }
}

// WithPriority records a priority on the job. It does not affect ordering.
func WithPriority(n int) EnqueueOption {
	return func(p *job.CreateParams) { p.Priority = n }
}

// WithMaxRetries overrides the configured retry budget for the job.
func WithMaxRetries(n int) EnqueueOption {
	return func(p *job.CreateParams) { p.MaxRetries = n }
}

// Enqueue marshals payload and creates a job of the given type.
func Enqueue[T any](ctx context.Context, eng *Engine, jobType string, payload T, opts ...EnqueueOption) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", jobType, err)
	}

	p := job.CreateParams{Type: jobType, Payload: data}
	for _, opt := range opts {
		opt(&p)
	}
	return eng.manager.Create(ctx, p)
}

// Start begins job processing.
func (eng *Engine) Start(ctx context.Context) error {
	eng.logger.Info("tempo engine starting",
		slog.Any("job_types", eng.registry.Types()),
	)
	return eng.loop.Start(ctx)
}

// Stop gracefully shuts down the worker loop, waiting at most
// Config.ShutdownTimeout for the in-flight cycle, then notifies
// extensions.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	err := eng.loop.Stop(ctx)
	eng.extensions.EmitShutdown(context.WithoutCancel(ctx))
	return err
}

// Ping checks the job store and the scheduling index.
func (eng *Engine) Ping(ctx context.Context) error { return eng.manager.Ping(ctx) }

// Config returns the engine configuration.
func (eng *Engine) Config() tempo.Config { return eng.cfg }

// Manager returns the job lifecycle manager.
func (eng *Engine) Manager() *lifecycle.Manager { return eng.manager }

// Registry returns the handler registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Loop returns the worker loop.
func (eng *Engine) Loop() *worker.Loop { return eng.loop }

// Executor returns the middleware-wrapped handler executor.
func (eng *Engine) Executor() *worker.Executor { return eng.executor }
