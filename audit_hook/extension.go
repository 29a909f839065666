package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tempohq/tempo/ext"
	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*Extension)(nil)
	_ ext.JobCreated    = (*Extension)(nil)
	_ ext.JobStarted    = (*Extension)(nil)
	_ ext.JobCompleted  = (*Extension)(nil)
	_ ext.JobFailed     = (*Extension)(nil)
	_ ext.JobRetrying   = (*Extension)(nil)
	_ ext.JobCancelled  = (*Extension)(nil)
	_ ext.IndexRepaired = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit record.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes audit events to logger at a level matching their
// severity.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.Any("metadata", evt.Metadata),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges tempo lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (e *Extension) OnJobCreated(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobCreated, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, "",
		"job_type", j.Type,
		"scheduled_at", j.ScheduledAt.Format(time.RFC3339),
		"max_retries", j.MaxRetries,
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, "",
		"job_type", j.Type,
		"retries", j.Retries,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, "",
		"job_type", j.Type,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, reason string) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, reason,
		"job_type", j.Type,
		"retries", j.Retries,
		"max_retries", j.MaxRetries,
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, "",
		"job_type", j.Type,
		"attempt", attempt,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnJobCancelled implements ext.JobCancelled.
func (e *Extension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobCancelled, SeverityWarning, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, "",
		"job_type", j.Type,
	)
}

// ── Index hooks ─────────────────────────────────────

// OnIndexRepaired implements ext.IndexRepaired.
func (e *Extension) OnIndexRepaired(ctx context.Context, jobID id.JobID, action string) error {
	return e.record(ctx, ActionIndexRepaired, SeverityWarning, OutcomeSuccess,
		ResourceIndexEntry, jobID.String(), CategoryIndex, "",
		"repair", action,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
// Recorder failures are logged, never returned.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
