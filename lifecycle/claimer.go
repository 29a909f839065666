package lifecycle

import (
	"context"
	"time"

	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
)

// Claimer performs the pending → in_progress transition.
type Claimer interface {
	// Claim moves jobID to in_progress if it is still pending. It returns
	// false if another actor changed the status first.
	Claim(ctx context.Context, jobID id.JobID, now time.Time) (bool, error)
}

// StoreClaimer claims with a conditional update on the job store.
type StoreClaimer struct {
	Store job.Store
}

var _ Claimer = StoreClaimer{}

// Claim implements Claimer.
func (c StoreClaimer) Claim(ctx context.Context, jobID id.JobID, now time.Time) (bool, error) {
	return c.Store.ConditionalUpdate(ctx, jobID, job.StatusPending, job.Patch{
		Status:    job.StatusInProgress,
		UpdatedAt: now,
		StartedAt: &now,
	})
}
