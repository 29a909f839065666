package relayhook

import (
	"encoding/json"
	"time"
)

// Lifecycle event types. Each constant maps to one ext lifecycle hook and
// is used as Event.Type.
const (
	EventJobCreated    = "tempo.job.created"
	EventJobStarted    = "tempo.job.started"
	EventJobCompleted  = "tempo.job.completed"
	EventJobFailed     = "tempo.job.failed"
	EventJobRetrying   = "tempo.job.retrying"
	EventJobCancelled  = "tempo.job.cancelled"
	EventIndexRepaired = "tempo.index.repaired"
)

// DefaultChannel is the pub/sub channel events are published to.
const DefaultChannel = "tempo:events"

// AllEvents returns every event type this extension can emit.
func AllEvents() []string {
	return []string{
		EventJobCreated,
		EventJobStarted,
		EventJobCompleted,
		EventJobFailed,
		EventJobRetrying,
		EventJobCancelled,
		EventIndexRepaired,
	}
}

// Event is the message published for each lifecycle point.
type Event struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// ── Default payload types ───────────────────────────

type jobPayload struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
	Status  string `json:"status"`
	Retries int    `json:"retries"`
}

type jobCompletedPayload struct {
	jobPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type jobFailedPayload struct {
	jobPayload
	Reason string `json:"reason"`
}

type jobRetryingPayload struct {
	jobPayload
	Attempt   int    `json:"attempt"`
	NextRunAt string `json:"next_run_at"`
}

type indexRepairedPayload struct {
	JobID  string `json:"job_id"`
	Action string `json:"action"`
}
