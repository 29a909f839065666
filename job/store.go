package job

import (
	"context"

	"github.com/tempohq/tempo/id"
)

// ListOpts controls filtering and pagination for job list queries.
type ListOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status Status
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Store defines the persistence contract for job records.
//
// Implementations translate connectivity failures into errors wrapping
// tempo.ErrStoreUnavailable.
type Store interface {
	// Insert persists a new job. Returns tempo.ErrJobAlreadyExists if the
	// id is taken.
	Insert(ctx context.Context, j *Job) error

	// Get retrieves a job by ID. Returns tempo.ErrJobNotFound if absent.
	Get(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListAll returns jobs ordered by created_at descending.
	ListAll(ctx context.Context, opts ListOpts) ([]*Job, error)

	// ConditionalUpdate applies patch only if the job's current status
	// equals expected, as a single atomic operation. It returns false when
	// the status did not match and tempo.ErrJobNotFound when the job does
	// not exist.
	ConditionalUpdate(ctx context.Context, jobID id.JobID, expected Status, patch Patch) (bool, error)

	// Delete removes a job by ID. Deleting an absent job is not an error.
	Delete(ctx context.Context, jobID id.JobID) error

	// Migrate prepares the backend schema.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
