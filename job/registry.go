package job

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tempohq/tempo"
)

// Registry maps job types to handlers. Handlers are registered at startup;
// it is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds h under h.Type(). A later registration for the same type
// replaces the earlier one.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// Get returns the handler for the given job type.
// Returns false if no handler is registered.
func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns all registered job types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute dispatches j to the handler registered for j.Type. Every error
// it returns wraps tempo.ErrHandlerFailure; a missing handler yields
// tempo.ErrUnknownJobType.
func (r *Registry) Execute(ctx context.Context, j *Job) error {
	h, ok := r.Get(j.Type)
	if !ok {
		return fmt.Errorf("%w %q", tempo.ErrUnknownJobType, j.Type)
	}
	if err := h.Handle(ctx, j.Payload); err != nil {
		return fmt.Errorf("%w: %s: %w", tempo.ErrHandlerFailure, j.Type, err)
	}
	return nil
}
