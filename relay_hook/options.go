package relayhook

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// Option configures an Extension.
type Option func(*Extension)

// PayloadFunc builds a custom event payload for a specific event type.
// It receives the default payload and returns the value marshalled into
// Event.Data.
type PayloadFunc func(defaultData any) (any, error)

// WithEvents restricts the extension to emit only the listed event types.
// By default every event type is enabled. Unknown types are ignored.
func WithEvents(events ...string) Option {
	return func(h *Extension) {
		h.enabled = make(map[string]bool, len(events))
		for _, e := range events {
			h.enabled[e] = true
		}
	}
}

// WithPayloadFunc registers a custom payload builder for the given event
// type.
func WithPayloadFunc(eventType string, fn PayloadFunc) Option {
	return func(h *Extension) {
		if h.payloads == nil {
			h.payloads = make(map[string]PayloadFunc)
		}
		h.payloads[eventType] = fn
	}
}

// WithChannel sets the pub/sub channel. Defaults to DefaultChannel.
func WithChannel(channel string) Option {
	return func(h *Extension) { h.channel = channel }
}

// WithClock sets the clock used to stamp events.
func WithClock(c clockwork.Clock) Option {
	return func(h *Extension) { h.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Extension) { h.logger = l }
}
