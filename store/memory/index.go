package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/schedule"
)

var _ schedule.Index = (*Index)(nil)

// Index is an in-memory schedule.Index.
type Index struct {
	mu      sync.RWMutex
	entries map[id.JobID]time.Time
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{entries: make(map[id.JobID]time.Time)}
}

// Upsert sets the due time for jobID.
func (x *Index) Upsert(_ context.Context, jobID id.JobID, due time.Time) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[jobID] = due.UTC().Truncate(time.Millisecond)
	return nil
}

// RangeDue returns ids due at or before now, earliest first.
func (x *Index) RangeDue(_ context.Context, now time.Time) ([]id.JobID, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	type entry struct {
		id  id.JobID
		due time.Time
	}
	due := make([]entry, 0, len(x.entries))
	for jid, at := range x.entries {
		if !at.After(now) {
			due = append(due, entry{jid, at})
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if !due[i].due.Equal(due[k].due) {
			return due[i].due.Before(due[k].due)
		}
		return due[i].id.String() < due[k].id.String()
	})

	ids := make([]id.JobID, len(due))
	for i, e := range due {
		ids[i] = e.id
	}
	return ids, nil
}

// Remove deletes the entry for jobID if present.
func (x *Index) Remove(_ context.Context, jobID id.JobID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, jobID)
	return nil
}

// Score returns the due time for jobID.
func (x *Index) Score(_ context.Context, jobID id.JobID) (time.Time, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	at, ok := x.entries[jobID]
	return at, ok, nil
}

// Ping always succeeds.
func (x *Index) Ping(_ context.Context) error { return nil }

// Len returns the number of entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}
