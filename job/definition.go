package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler performs the work for one job type.
type Handler interface {
	// Type is the job type tag this handler serves.
	Type() string

	// Handle runs the unit of work. A non-nil error is a handler failure
	// and feeds the retry path.
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Definition is a typed Handler. T is the payload type and must be
// JSON-decodable.
type Definition[T any] struct {
	// Name is the job type tag.
	Name string

	// Handler processes the decoded payload.
	Handler func(ctx context.Context, payload T) error
}

var _ Handler = (*Definition[struct{}])(nil)

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) error) *Definition[T] {
	return &Definition[T]{Name: name, Handler: handler}
}

// Type implements Handler.
func (d *Definition[T]) Type() string { return d.Name }

// Handle decodes payload into T and calls the typed handler.
func (d *Definition[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t); err != nil {
			return fmt.Errorf("unmarshal payload for job %q: %w", d.Name, err)
		}
	}
	return d.Handler(ctx, t)
}
