// Package worker runs due jobs. The Executor invokes registered handlers
// through middleware; the Loop polls the scheduling index on a fixed
// cadence and feeds each outcome back into the lifecycle manager.
package worker

import (
	"context"

	"github.com/tempohq/tempo/job"
	"github.com/tempohq/tempo/middleware"
)

// Executor runs a single job through the middleware chain and the handler
// registered for its type.
type Executor struct {
	registry *job.Registry
	mw       middleware.Middleware
}

// NewExecutor creates an Executor with the given registry and middleware.
func NewExecutor(registry *job.Registry, mws ...middleware.Middleware) *Executor {
	return &Executor{
		registry: registry,
		mw:       middleware.Chain(mws...),
	}
}

// Execute dispatches j and returns the handler outcome. Every error wraps
// tempo.ErrHandlerFailure.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	return e.mw(ctx, j, func(ctx context.Context) error {
		return e.registry.Execute(ctx, j)
	})
}
