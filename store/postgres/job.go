package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
)

const jobColumns = `
	id, type, payload, priority, status, scheduled_at, retries, max_retries,
	failed_reason, started_at, completed_at, created_at, updated_at`

// Insert persists a new job.
func (s *Store) Insert(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tempo_jobs (`+jobColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13
		)`,
		j.ID.String(), j.Type, string(j.Payload), j.Priority, string(j.Status),
		j.ScheduledAt, j.Retries, j.MaxRetries,
		j.FailedReason, j.StartedAt, j.CompletedAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return tempo.ErrJobAlreadyExists
		}
		return storeErr("insert job", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM tempo_jobs
		WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, tempo.ErrJobNotFound
		}
		return nil, storeErr("get job", err)
	}
	return j, nil
}

// ListAll returns jobs newest first, optionally filtered by status.
func (s *Store) ListAll(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM tempo_jobs`
	args := []interface{}{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ConditionalUpdate applies patch in a single UPDATE guarded by the
// expected status. A zero-row result is disambiguated into a status
// mismatch or a missing job.
func (s *Store) ConditionalUpdate(ctx context.Context, jobID id.JobID, expected job.Status, patch job.Patch) (bool, error) {
	var updatedAt *time.Time
	if !patch.UpdatedAt.IsZero() {
		updatedAt = &patch.UpdatedAt
	}

	var status string
	err := s.pool.QueryRow(ctx, `
		UPDATE tempo_jobs SET
			status = $3,
			updated_at = COALESCE($4, updated_at),
			scheduled_at = COALESCE($5, scheduled_at),
			retries = COALESCE($6, retries),
			failed_reason = COALESCE($7, failed_reason),
			started_at = COALESCE($8, started_at),
			completed_at = COALESCE($9, completed_at)
		WHERE id = $1 AND status = $2
		RETURNING status`,
		jobID.String(), string(expected), string(patch.Status),
		updatedAt, patch.ScheduledAt, patch.Retries, patch.FailedReason,
		patch.StartedAt, patch.CompletedAt,
	).Scan(&status)
	if err == nil {
		return true, nil
	}
	if !isNoRows(err) {
		return false, storeErr("conditional update", err)
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tempo_jobs WHERE id = $1)`,
		jobID.String(),
	).Scan(&exists)
	if err != nil {
		return false, storeErr("conditional update exists", err)
	}
	if !exists {
		return false, tempo.ErrJobNotFound
	}
	return false, nil
}

// Delete removes a job by ID.
func (s *Store) Delete(ctx context.Context, jobID id.JobID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM tempo_jobs WHERE id = $1`, jobID.String()); err != nil {
		return storeErr("delete job", err)
	}
	return nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		payload   []byte
		statusStr string
	)
	err := row.Scan(
		&idStr, &j.Type, &payload, &j.Priority, &statusStr,
		&j.ScheduledAt, &j.Retries, &j.MaxRetries,
		&j.FailedReason, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("tempo/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID
	j.Payload = payload
	j.Status = job.Status(statusStr)

	j.ScheduledAt = j.ScheduledAt.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if j.StartedAt != nil {
		t := j.StartedAt.UTC()
		j.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := j.CompletedAt.UTC()
		j.CompletedAt = &t
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	jobs := []*job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("tempo/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate job rows", err)
	}
	return jobs, nil
}
