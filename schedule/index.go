// Package schedule defines the scheduling index contract: a time-ordered
// map from job id to due time that the worker loop polls for eligible work.
package schedule

import (
	"context"
	"time"

	"github.com/tempohq/tempo/id"
)

// Index is a time-ordered set of job ids keyed by due time. It holds at
// most one entry per job; Upsert replaces an existing entry.
//
// Implementations translate connectivity failures into errors wrapping
// tempo.ErrIndexUnavailable.
type Index interface {
	// Upsert inserts or moves the entry for jobID to due.
	Upsert(ctx context.Context, jobID id.JobID, due time.Time) error

	// RangeDue returns the ids of all entries with due time ≤ now, in
	// ascending due order.
	RangeDue(ctx context.Context, now time.Time) ([]id.JobID, error)

	// Remove deletes the entry for jobID. Removing an absent entry is not
	// an error.
	Remove(ctx context.Context, jobID id.JobID) error

	// Score returns the due time recorded for jobID, and false if no entry
	// exists.
	Score(ctx context.Context, jobID id.JobID) (time.Time, bool, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
