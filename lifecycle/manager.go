package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/backoff"
	"github.com/tempohq/tempo/ext"
	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
	"github.com/tempohq/tempo/schedule"
)

// unknownFailure replaces an empty failure message so a failed job always
// carries a reason.
const unknownFailure = "unknown error"

// Manager owns job state transitions.
type Manager struct {
	store             job.Store
	index             schedule.Index
	claimer           Claimer
	backoff           backoff.Strategy
	clock             clockwork.Clock
	extensions        *ext.Registry
	logger            *slog.Logger
	defaultMaxRetries int
	staleThreshold    time.Duration
}

// New creates a Manager over the given job store and scheduling index.
func New(store job.Store, index schedule.Index, opts ...Option) *Manager {
	m := &Manager{
		store:             store,
		index:             index,
		backoff:           backoff.DefaultStrategy(),
		clock:             clockwork.NewRealClock(),
		defaultMaxRetries: tempo.DefaultConfig().DefaultMaxRetries,
		staleThreshold:    tempo.DefaultConfig().StaleJobThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.extensions == nil {
		m.extensions = ext.NewRegistry(m.logger)
	}
	if m.claimer == nil {
		m.claimer = StoreClaimer{Store: store}
	}
	return m
}

// Clock returns the manager's clock.
func (m *Manager) Clock() clockwork.Clock { return m.clock }

func (m *Manager) now() time.Time { return tempo.Timestamp(m.clock.Now()) }

// ──────────────────────────────────────────────────
// Client operations
// ──────────────────────────────────────────────────

// Create validates p, persists a pending job, and schedules it. The
// effective scheduled_at is the later of the requested time and now.
func (m *Manager) Create(ctx context.Context, p job.CreateParams) (*job.Job, error) {
	if err := m.validate(p); err != nil {
		return nil, err
	}

	now := m.now()
	scheduledAt := tempo.Timestamp(p.ScheduledAt)
	if p.ScheduledAt.IsZero() || scheduledAt.Before(now) {
		scheduledAt = now
	}
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = m.defaultMaxRetries
	}

	j := &job.Job{
		Entity:      tempo.NewEntity(now),
		ID:          id.NewJobID(),
		Type:        strings.TrimSpace(p.Type),
		Payload:     append(json.RawMessage(nil), p.Payload...),
		Priority:    p.Priority,
		Status:      job.StatusPending,
		ScheduledAt: scheduledAt,
		MaxRetries:  maxRetries,
	}

	if err := m.store.Insert(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := m.index.Upsert(ctx, j.ID, j.ScheduledAt); err != nil {
		if delErr := m.store.Delete(ctx, j.ID); delErr != nil {
			m.logger.Error("failed to roll back job after index error",
				slog.String("job_id", j.ID.String()),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("create job: %w", indexErr(err))
	}

	m.extensions.EmitJobCreated(ctx, j)
	m.logger.Debug("job created",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Time("scheduled_at", j.ScheduledAt),
	)
	return j, nil
}

func (m *Manager) validate(p job.CreateParams) error {
	if strings.TrimSpace(p.Type) == "" {
		return tempo.Validationf("type is required")
	}
	payload := bytes.TrimSpace(p.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return tempo.Validationf("payload is required")
	}
	if !json.Valid(payload) {
		return tempo.Validationf("payload is not valid JSON")
	}
	if p.MaxRetries < 0 {
		return tempo.Validationf("max_retries must be at least 1, got %d", p.MaxRetries)
	}
	return nil
}

// Get returns the job with the given id.
func (m *Manager) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return m.store.Get(ctx, jobID)
}

// List returns jobs newest first.
func (m *Manager) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return m.store.ListAll(ctx, opts)
}

// Cancel moves a pending job to cancelled and drops its index entry.
func (m *Manager) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	if j.Status != job.StatusPending {
		return nil, fmt.Errorf("%w: cannot cancel job %s in status %q", tempo.ErrInvalidState, jobID, j.Status)
	}

	patch := job.Patch{Status: job.StatusCancelled, UpdatedAt: m.now()}
	ok, err := m.store.ConditionalUpdate(ctx, jobID, job.StatusPending, patch)
	if err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	if !ok {
		return nil, m.invalidState(ctx, jobID, "cancel")
	}
	patch.Apply(j)

	if err := m.index.Remove(ctx, jobID); err != nil {
		// The worker drops the entry once it sees the job is not pending.
		m.logger.Warn("failed to remove cancelled job from index",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
	}

	m.extensions.EmitJobCancelled(ctx, j)
	return j, nil
}

// ──────────────────────────────────────────────────
// Worker operations
// ──────────────────────────────────────────────────
//
// Each transition has an id form that loads the record first and a Job
// form that works from the caller's copy. Neither reads the record back
// after the conditional update commits.

// Claim moves a pending job to in_progress. A job that is no longer
// pending yields tempo.ErrInvalidState.
func (m *Manager) Claim(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", jobID, err)
	}
	return m.ClaimJob(ctx, j)
}

// ClaimJob claims the job j was loaded from and returns a copy with the
// claim applied.
func (m *Manager) ClaimJob(ctx context.Context, j *job.Job) (*job.Job, error) {
	if j.Status != job.StatusPending {
		return nil, fmt.Errorf("%w: cannot claim job %s in status %q", tempo.ErrInvalidState, j.ID, j.Status)
	}

	now := m.now()
	ok, err := m.claimer.Claim(ctx, j.ID, now)
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", j.ID, err)
	}
	if !ok {
		return nil, m.invalidState(ctx, j.ID, "claim")
	}

	claimed := j.Clone()
	job.Patch{Status: job.StatusInProgress, UpdatedAt: now, StartedAt: &now}.Apply(claimed)
	m.extensions.EmitJobStarted(ctx, claimed)
	return claimed, nil
}

// Complete moves an in_progress job to completed.
func (m *Manager) Complete(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return m.CompleteJob(ctx, j)
}

// CompleteJob completes the claimed job j and returns the updated copy.
func (m *Manager) CompleteJob(ctx context.Context, j *job.Job) (*job.Job, error) {
	if j.Status != job.StatusInProgress {
		return nil, fmt.Errorf("%w: cannot complete job %s in status %q", tempo.ErrInvalidState, j.ID, j.Status)
	}

	now := m.now()
	patch := job.Patch{Status: job.StatusCompleted, UpdatedAt: now, CompletedAt: &now}
	ok, err := m.store.ConditionalUpdate(ctx, j.ID, job.StatusInProgress, patch)
	if err != nil {
		return nil, fmt.Errorf("complete job %s: %w", j.ID, err)
	}
	if !ok {
		return nil, m.invalidState(ctx, j.ID, "complete")
	}

	done := j.Clone()
	patch.Apply(done)

	var elapsed time.Duration
	if done.StartedAt != nil {
		elapsed = now.Sub(*done.StartedAt)
	}
	m.extensions.EmitJobCompleted(ctx, done, elapsed)
	return done, nil
}

// RetryOrFail records a failed attempt of an in_progress job. While
// retries remain the job returns to pending with scheduled_at pushed out
// by the backoff and a fresh index entry; otherwise it becomes failed with
// message as its failed_reason.
//
// If the store update succeeds but the index write fails, the returned
// job is pending and the error wraps tempo.ErrIndexUnavailable; Reconcile
// restores the entry.
func (m *Manager) RetryOrFail(ctx context.Context, jobID id.JobID, message string) (*job.Job, error) {
	j, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("retry job %s: %w", jobID, err)
	}
	return m.RetryOrFailJob(ctx, j, message)
}

// RetryOrFailJob is RetryOrFail for a job the caller already holds.
func (m *Manager) RetryOrFailJob(ctx context.Context, j *job.Job, message string) (*job.Job, error) {
	if strings.TrimSpace(message) == "" {
		message = unknownFailure
	}
	if j.Status != job.StatusInProgress {
		return nil, fmt.Errorf("%w: cannot retry job %s in status %q", tempo.ErrInvalidState, j.ID, j.Status)
	}

	jobID := j.ID
	j = j.Clone()
	now := m.now()
	attempt := j.Retries + 1

	if attempt < j.MaxRetries {
		next := tempo.Timestamp(now.Add(m.backoff.Delay(attempt)))
		patch := job.Patch{
			Status:      job.StatusPending,
			UpdatedAt:   now,
			ScheduledAt: &next,
			Retries:     &attempt,
		}
		ok, err := m.store.ConditionalUpdate(ctx, jobID, job.StatusInProgress, patch)
		if err != nil {
			return nil, fmt.Errorf("retry job %s: %w", jobID, err)
		}
		if !ok {
			return nil, m.invalidState(ctx, jobID, "retry")
		}
		patch.Apply(j)

		if err := m.index.Upsert(ctx, jobID, next); err != nil {
			return j, fmt.Errorf("retry job %s: reschedule: %w", jobID, indexErr(err))
		}

		m.extensions.EmitJobRetrying(ctx, j, attempt, next)
		m.logger.Info("job scheduled for retry",
			slog.String("job_id", jobID.String()),
			slog.String("job_type", j.Type),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", j.MaxRetries),
			slog.Time("next_run_at", next),
			slog.String("error", message),
		)
		return j, nil
	}

	patch := job.Patch{
		Status:       job.StatusFailed,
		UpdatedAt:    now,
		Retries:      &attempt,
		FailedReason: &message,
	}
	ok, err := m.store.ConditionalUpdate(ctx, jobID, job.StatusInProgress, patch)
	if err != nil {
		return nil, fmt.Errorf("fail job %s: %w", jobID, err)
	}
	if !ok {
		return nil, m.invalidState(ctx, jobID, "fail")
	}
	patch.Apply(j)

	m.extensions.EmitJobFailed(ctx, j, message)
	m.logger.Warn("job failed after exhausting retries",
		slog.String("job_id", jobID.String()),
		slog.String("job_type", j.Type),
		slog.Int("retries", attempt),
		slog.String("error", message),
	)
	return j, nil
}

// ──────────────────────────────────────────────────
// Index maintenance
// ──────────────────────────────────────────────────

// RemoveFromIndex drops jobID's scheduling entry.
func (m *Manager) RemoveFromIndex(ctx context.Context, jobID id.JobID) error {
	if err := m.index.Remove(ctx, jobID); err != nil {
		return indexErr(err)
	}
	return nil
}

// DropStaleEntry removes an index entry whose job is missing or no longer
// pending.
func (m *Manager) DropStaleEntry(ctx context.Context, jobID id.JobID) error {
	if err := m.RemoveFromIndex(ctx, jobID); err != nil {
		return err
	}
	m.extensions.EmitIndexRepaired(ctx, jobID, ext.RepairStaleRemoved)
	return nil
}

// DueJobs returns the ids whose scheduled time has passed, in index order.
func (m *Manager) DueJobs(ctx context.Context) ([]id.JobID, error) {
	ids, err := m.index.RangeDue(ctx, m.now())
	if err != nil {
		return nil, indexErr(err)
	}
	return ids, nil
}

// workerLost is the failure message recorded for a job reaped from
// in_progress.
const workerLost = "worker lost"

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	// Recovered is the number of stale in_progress jobs sent back through
	// RetryOrFail.
	Recovered int
	// Checked is the number of pending jobs examined.
	Checked int
	// Reindexed is the number of index entries written.
	Reindexed int
}

// Reconcile repairs the store and index after a crash or an index outage.
// In_progress jobs started longer ago than the stale threshold are
// treated as a failed attempt, then every pending job whose index entry
// is missing or disagrees with its scheduled_at is re-indexed.
//
// Reconcile assumes a single worker: an in_progress job past the
// threshold is taken to belong to a worker that is gone.
func (m *Manager) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	if err := m.reapStale(ctx, &report); err != nil {
		return report, err
	}

	pending, err := m.store.ListAll(ctx, job.ListOpts{Status: job.StatusPending})
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}

	for _, j := range pending {
		report.Checked++

		due, ok, err := m.index.Score(ctx, j.ID)
		if err != nil {
			return report, fmt.Errorf("reconcile: %w", indexErr(err))
		}
		if ok && due.Equal(j.ScheduledAt) {
			continue
		}

		if err := m.index.Upsert(ctx, j.ID, j.ScheduledAt); err != nil {
			return report, fmt.Errorf("reconcile: %w", indexErr(err))
		}
		report.Reindexed++
		m.extensions.EmitIndexRepaired(ctx, j.ID, ext.RepairReindexed)
		m.logger.Info("re-indexed pending job",
			slog.String("job_id", j.ID.String()),
			slog.Time("scheduled_at", j.ScheduledAt),
		)
	}

	return report, nil
}

func (m *Manager) reapStale(ctx context.Context, report *ReconcileReport) error {
	if m.staleThreshold <= 0 {
		return nil
	}

	running, err := m.store.ListAll(ctx, job.ListOpts{Status: job.StatusInProgress})
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	now := m.now()
	for _, j := range running {
		if j.StartedAt != nil && now.Sub(*j.StartedAt) < m.staleThreshold {
			continue
		}

		reaped, err := m.RetryOrFailJob(ctx, j, workerLost)
		if reaped == nil {
			if errors.Is(err, tempo.ErrInvalidState) {
				// Finished between the list and the update.
				continue
			}
			return fmt.Errorf("reconcile: %w", err)
		}
		report.Recovered++
		m.logger.Warn("reaped stale job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("status", string(reaped.Status)),
		)
		if err != nil {
			// The pending sweep below retries the index write.
			m.logger.Warn("reaped job not re-indexed", slog.String("job_id", j.ID.String()), slog.String("error", err.Error()))
		}
	}
	return nil
}

// Ping checks the job store and the scheduling index.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	if err := m.index.Ping(ctx); err != nil {
		return fmt.Errorf("ping index: %w", indexErr(err))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// invalidState builds the error for a lost conditional update, naming the
// status the job was found in when it can still be read.
func (m *Manager) invalidState(ctx context.Context, jobID id.JobID, op string) error {
	j, err := m.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, tempo.ErrJobNotFound) {
			return fmt.Errorf("%s job %s: %w", op, jobID, err)
		}
		return fmt.Errorf("%w: cannot %s job %s", tempo.ErrInvalidState, op, jobID)
	}
	return fmt.Errorf("%w: cannot %s job %s in status %q", tempo.ErrInvalidState, op, jobID, j.Status)
}

// indexErr ensures a scheduling index failure matches
// tempo.ErrIndexUnavailable.
func indexErr(err error) error {
	if errors.Is(err, tempo.ErrIndexUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", tempo.ErrIndexUnavailable, err)
}
