// Package ext defines the extension system for tempo.
// Extensions are notified of job lifecycle events (created, completed,
// failed, etc.) and can react to them with logging, metrics, or tracing.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a job is written to the store and the index.
type JobCreated interface {
	OnJobCreated(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker claims a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, reason string) error
}

// JobRetrying is called when a job fails but is rescheduled.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobCancelled is called after a pending job is cancelled.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Repair actions reported through IndexRepaired.
const (
	RepairStaleRemoved = "stale_removed"
	RepairReindexed    = "reindexed"
)

// IndexRepaired is called when the scheduling index is brought back in
// line with the job store.
type IndexRepaired interface {
	OnIndexRepaired(ctx context.Context, jobID id.JobID, action string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
