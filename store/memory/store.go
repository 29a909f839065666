// Package memory provides in-memory implementations of job.Store and
// schedule.Index. Safe for concurrent access. Intended for unit testing
// and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
)

// Ensure Store implements job.Store at compile time.
var _ job.Store = (*Store)(nil)

// Store is a fully in-memory implementation of job.Store.
type Store struct {
	mu   sync.RWMutex
	jobs map[id.JobID]*job.Job
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[id.JobID]*job.Job),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate, Ping, Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// Insert persists a new job.
func (m *Store) Insert(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[j.ID]; exists {
		return tempo.ErrJobAlreadyExists
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

// Get retrieves a job by ID.
func (m *Store) Get(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, tempo.ErrJobNotFound
	}
	return j.Clone(), nil
}

// ListAll returns jobs newest first.
func (m *Store) ListAll(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		result = append(result, j.Clone())
	}

	// CreatedAt DESC; ids break ties since UUIDv7 sorts by creation.
	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.After(result[k].CreatedAt)
		}
		return result[i].ID.String() > result[k].ID.String()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []*job.Job{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// ConditionalUpdate applies patch if the job's status equals expected.
// The check and the write happen under one lock.
func (m *Store) ConditionalUpdate(_ context.Context, jobID id.JobID, expected job.Status, patch job.Patch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return false, tempo.ErrJobNotFound
	}
	if j.Status != expected {
		return false, nil
	}
	patch.Apply(j)
	return true, nil
}

// Delete removes a job by ID.
func (m *Store) Delete(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.jobs, jobID)
	return nil
}
