package api

import (
	"encoding/json"
	"time"
)

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	MaxRetries  int             `json:"max_retries"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
}

// HandlersResponse is the body of GET /api/handlers.
type HandlersResponse struct {
	Types []string `json:"types"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
