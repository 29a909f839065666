package relayhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tempohq/tempo"
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

// Extension publishes tempo lifecycle events to Redis. Publish failures
// are returned to the extension registry, which logs them; they never
// affect job state.
type Extension struct {
	client   goredis.Cmdable
	channel  string
	clock    clockwork.Clock
	logger   *slog.Logger
	enabled  map[string]bool        // nil = all enabled
	payloads map[string]PayloadFunc // custom payload builders
}

// New creates an Extension that publishes through client.
func New(client goredis.Cmdable, opts ...Option) *Extension {
	h := &Extension{
		client:  client,
		channel: DefaultChannel,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "relay-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (h *Extension) OnJobCreated(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobCreated, newJobPayload(j))
}

// OnJobStarted implements ext.JobStarted.
func (h *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobStarted, newJobPayload(j))
}

// OnJobCompleted implements ext.JobCompleted.
func (h *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return h.send(ctx, EventJobCompleted, &jobCompletedPayload{
		jobPayload: *newJobPayload(j),
		ElapsedMs:  elapsed.Milliseconds(),
	})
}

// OnJobFailed implements ext.JobFailed.
func (h *Extension) OnJobFailed(ctx context.Context, j *job.Job, reason string) error {
	return h.send(ctx, EventJobFailed, &jobFailedPayload{
		jobPayload: *newJobPayload(j),
		Reason:     reason,
	})
}

// OnJobRetrying implements ext.JobRetrying.
func (h *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	return h.send(ctx, EventJobRetrying, &jobRetryingPayload{
		jobPayload: *newJobPayload(j),
		Attempt:    attempt,
		NextRunAt:  nextRunAt.UTC().Format(time.RFC3339),
	})
}

// OnJobCancelled implements ext.JobCancelled.
func (h *Extension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobCancelled, newJobPayload(j))
}

// ── Index hooks ─────────────────────────────────────

// OnIndexRepaired implements ext.IndexRepaired.
func (h *Extension) OnIndexRepaired(ctx context.Context, jobID id.JobID, action string) error {
	return h.send(ctx, EventIndexRepaired, &indexRepairedPayload{
		JobID:  jobID.String(),
		Action: action,
	})
}

// ── Internal helpers ────────────────────────────────

// send publishes an event if the event type is enabled.
func (h *Extension) send(ctx context.Context, eventType string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return fmt.Errorf("relay_hook: build %s payload: %w", eventType, err)
		}
		data = custom
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("relay_hook: marshal %s payload: %w", eventType, err)
	}
	msg, err := json.Marshal(&Event{
		Type:       eventType,
		OccurredAt: tempo.Timestamp(h.clock.Now()),
		Data:       raw,
	})
	if err != nil {
		return fmt.Errorf("relay_hook: marshal %s: %w", eventType, err)
	}

	if err := h.client.Publish(ctx, h.channel, msg).Err(); err != nil {
		return fmt.Errorf("relay_hook: publish %s: %w", eventType, err)
	}
	h.logger.Debug("lifecycle event published",
		slog.String("event", eventType),
		slog.String("channel", h.channel),
	)
	return nil
}

func newJobPayload(j *job.Job) *jobPayload {
	return &jobPayload{
		JobID:   j.ID.String(),
		JobType: j.Type,
		Status:  string(j.Status),
		Retries: j.Retries,
	}
}
