package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
	"github.com/tempohq/tempo/lifecycle"
)

// CycleReport counts what a single poll cycle did.
type CycleReport struct {
	// Due is the number of ids the index returned.
	Due int
	// Stale is the number of entries dropped because the job was missing
	// or no longer pending.
	Stale int
	// Skipped is the number of claims lost to a concurrent transition.
	Skipped int
	// Throttled is the number of due jobs left pending because their type
	// was over its dispatch rate.
	Throttled int
	Completed int
	Retried   int
	Failed    int
	// Errors counts store or index failures. Affected entries stay in the
	// index for the next cycle.
	Errors int
}

// Throttle decides whether a job type may be dispatched now.
type Throttle interface {
	Allow(jobType string) bool
}

// Loop polls the scheduling index on a fixed cadence and processes every
// due job sequentially.
type Loop struct {
	manager           *lifecycle.Manager
	executor          *Executor
	clock             clockwork.Clock
	pollInterval      time.Duration
	reconcileInterval time.Duration
	workerID          id.WorkerID
	throttle          Throttle
	logger            *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// cycleMu keeps cycles from overlapping when RunCycle is also called
	// directly.
	cycleMu sync.Mutex
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithPollInterval sets how often the loop queries the index.
func WithPollInterval(d time.Duration) LoopOption {
	return func(l *Loop) { l.pollInterval = d }
}

// WithReconcileInterval sets how often pending jobs are re-indexed.
// Zero disables the periodic sweep.
func WithReconcileInterval(d time.Duration) LoopOption {
	return func(l *Loop) { l.reconcileInterval = d }
}

// WithClock sets the clock that drives the cadence. Defaults to the
// manager's clock.
func WithClock(c clockwork.Clock) LoopOption {
	return func(l *Loop) { l.clock = c }
}

// WithThrottle sets a per-type dispatch limiter. Throttled jobs keep their
// index entry and are retried on a later cycle.
func WithThrottle(t Throttle) LoopOption {
	return func(l *Loop) { l.throttle = t }
}

// NewLoop creates a worker loop.
func NewLoop(manager *lifecycle.Manager, executor *Executor, logger *slog.Logger, opts ...LoopOption) *Loop {
	cfg := tempo.DefaultConfig()
	l := &Loop{
		manager:           manager,
		executor:          executor,
		clock:             manager.Clock(),
		pollInterval:      cfg.PollInterval,
		reconcileInterval: cfg.ReconcileInterval,
		workerID:          id.NewWorkerID(),
		logger:            logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// WorkerID returns the loop's identifier, used in logs.
func (l *Loop) WorkerID() id.WorkerID { return l.workerID }

// Start runs one reconcile pass and launches the polling goroutine. It
// returns immediately. Handlers run with a context derived from ctx that
// is never cancelled by Stop.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}
	l.running = true
	l.stopCh = make(chan struct{})

	l.logger.Info("worker loop starting",
		slog.String("worker_id", l.workerID.String()),
		slog.Duration("poll_interval", l.pollInterval),
		slog.Duration("reconcile_interval", l.reconcileInterval),
	)

	runCtx := context.WithoutCancel(ctx)
	l.reconcile(runCtx)

	l.wg.Add(1)
	go l.run(runCtx, l.stopCh)

	return nil
}

// Stop signals the loop to stop and waits for the in-flight cycle to
// finish or ctx to expire. In-flight handlers are never interrupted.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.logger.Info("worker loop stopping", slog.String("worker_id", l.workerID.String()))

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("worker loop stopped gracefully")
		return nil
	case <-ctx.Done():
		l.logger.Warn("worker loop shutdown timed out with a cycle still running")
		return ctx.Err()
	}
}

func (l *Loop) run(ctx context.Context, stopCh <-chan struct{}) {
	defer l.wg.Done()

	poll := l.clock.NewTicker(l.pollInterval)
	defer poll.Stop()

	var reconcileC <-chan time.Time
	if l.reconcileInterval > 0 {
		rt := l.clock.NewTicker(l.reconcileInterval)
		defer rt.Stop()
		reconcileC = rt.Chan()
	}

	for {
		select {
		case <-stopCh:
			return
		case <-poll.Chan():
			l.RunCycle(ctx)
		case <-reconcileC:
			l.reconcile(ctx)
		}
	}
}

func (l *Loop) reconcile(ctx context.Context) {
	// A cycle's claimed job is in_progress; keep the sweep from seeing it.
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	report, err := l.manager.Reconcile(ctx)
	if err != nil {
		l.logger.Error("reconcile failed", slog.String("error", err.Error()))
		return
	}
	if report.Reindexed > 0 || report.Recovered > 0 {
		l.logger.Info("reconcile repaired jobs",
			slog.Int("recovered", report.Recovered),
			slog.Int("checked", report.Checked),
			slog.Int("reindexed", report.Reindexed),
		)
	}
}

// RunCycle processes every job due now, one at a time, and reports the
// outcome. It never panics on store, index, or handler errors.
func (l *Loop) RunCycle(ctx context.Context) CycleReport {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	var report CycleReport

	ids, err := l.manager.DueJobs(ctx)
	if err != nil {
		l.logger.Error("poll scheduling index failed", slog.String("error", err.Error()))
		report.Errors++
		return report
	}
	report.Due = len(ids)

	for _, jobID := range ids {
		l.process(ctx, jobID, &report)
	}

	if report.Due > 0 {
		l.logger.Debug("cycle finished",
			slog.Int("due", report.Due),
			slog.Int("completed", report.Completed),
			slog.Int("retried", report.Retried),
			slog.Int("failed", report.Failed),
			slog.Int("stale", report.Stale),
			slog.Int("skipped", report.Skipped),
			slog.Int("throttled", report.Throttled),
			slog.Int("errors", report.Errors),
		)
	}
	return report
}

func (l *Loop) process(ctx context.Context, jobID id.JobID, report *CycleReport) {
	logger := l.logger.With(slog.String("job_id", jobID.String()))

	j, err := l.manager.Get(ctx, jobID)
	switch {
	case errors.Is(err, tempo.ErrJobNotFound):
		l.dropStale(ctx, jobID, report, logger)
		return
	case err != nil:
		logger.Error("load due job failed", slog.String("error", err.Error()))
		report.Errors++
		return
	case j.Status != job.StatusPending:
		l.dropStale(ctx, jobID, report, logger)
		return
	}

	// Allow spends a token even if the claim below is lost to a cancel.
	if l.throttle != nil && !l.throttle.Allow(j.Type) {
		logger.Debug("job type throttled", slog.String("job_type", j.Type))
		report.Throttled++
		return
	}

	claimed, err := l.manager.ClaimJob(ctx, j)
	if err != nil {
		if errors.Is(err, tempo.ErrInvalidState) || errors.Is(err, tempo.ErrJobNotFound) {
			logger.Debug("claim lost", slog.String("error", err.Error()))
			report.Skipped++
			return
		}
		logger.Error("claim failed", slog.String("error", err.Error()))
		report.Errors++
		return
	}

	// The job left pending; its entry goes now so the one RetryOrFail may
	// write is the only one left.
	if err := l.manager.RemoveFromIndex(ctx, jobID); err != nil {
		logger.Warn("remove claimed job from index failed", slog.String("error", err.Error()))
	}

	execErr := l.executor.Execute(ctx, claimed)
	if execErr == nil {
		if _, err := l.manager.CompleteJob(ctx, claimed); err != nil {
			logger.Error("mark job completed failed", slog.String("error", err.Error()))
			report.Errors++
			return
		}
		report.Completed++
		return
	}

	updated, err := l.manager.RetryOrFailJob(ctx, claimed, execErr.Error())
	if err != nil {
		logger.Error("record job failure failed", slog.String("error", err.Error()))
		report.Errors++
	}
	if updated == nil {
		return
	}
	switch updated.Status {
	case job.StatusPending:
		report.Retried++
	case job.StatusFailed:
		report.Failed++
	}
}

func (l *Loop) dropStale(ctx context.Context, jobID id.JobID, report *CycleReport, logger *slog.Logger) {
	if err := l.manager.DropStaleEntry(ctx, jobID); err != nil {
		logger.Error("drop stale index entry failed", slog.String("error", err.Error()))
		report.Errors++
		return
	}
	logger.Debug("dropped stale index entry")
	report.Stale++
}
