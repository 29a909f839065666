package job

import (
	"encoding/json"
	"time"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting for its scheduled_at to pass
	// and a worker to claim it.
	StatusPending Status = "pending"
	// StatusInProgress means a worker has claimed the job and is running it.
	StatusInProgress Status = "in_progress"
	// StatusCompleted means the handler finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the retry budget is exhausted.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was cancelled before it was claimed.
	StatusCancelled Status = "cancelled"
)

// transitions lists every edge of the job state machine.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusPending, StatusFailed},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether the state machine allows s → to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", tempo.Validationf("unknown status %q", s)
	}
	return st, nil
}

// Job represents a unit of deferred work.
type Job struct {
	tempo.Entity

	ID           id.JobID        `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	Status       Status          `json:"status"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	Retries      int             `json:"retries"`
	MaxRetries   int             `json:"max_retries"`
	FailedReason string          `json:"failed_reason,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// CreateParams is the input to a job creation request.
type CreateParams struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	// Priority is stored but does not affect ordering.
	Priority int `json:"priority"`
	// MaxRetries of zero selects the configured default.
	MaxRetries int `json:"max_retries"`
	// ScheduledAt of zero means now. Past values are clamped to now.
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Patch is the set of fields a conditional update writes. Status is always
// written; nil pointer fields are left unchanged.
type Patch struct {
	Status       Status
	UpdatedAt    time.Time
	ScheduledAt  *time.Time
	Retries      *int
	FailedReason *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Apply writes the patch onto j.
func (p Patch) Apply(j *Job) {
	j.Status = p.Status
	if !p.UpdatedAt.IsZero() {
		j.UpdatedAt = p.UpdatedAt
	}
	if p.ScheduledAt != nil {
		j.ScheduledAt = *p.ScheduledAt
	}
	if p.Retries != nil {
		j.Retries = *p.Retries
	}
	if p.FailedReason != nil {
		j.FailedReason = *p.FailedReason
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		j.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		j.CompletedAt = &t
	}
}
