package tempo

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for a malformed create request.
	ErrValidation = errors.New("tempo: validation failed")

	// ErrJobNotFound is returned when no job has the requested id.
	ErrJobNotFound = errors.New("tempo: job not found")

	// ErrJobAlreadyExists is returned when inserting a duplicate id.
	ErrJobAlreadyExists = errors.New("tempo: job already exists")

	// ErrInvalidState is returned when an operation is not valid for the
	// job's current status, including a lost conditional update.
	ErrInvalidState = errors.New("tempo: invalid state transition")

	// ErrHandlerFailure marks an error raised by a dispatched unit of work.
	ErrHandlerFailure = errors.New("tempo: handler failure")

	// ErrUnknownJobType is returned when no handler is registered for a
	// job type. It is a handler failure.
	ErrUnknownJobType = fmt.Errorf("%w: unknown job type", ErrHandlerFailure)

	// ErrStoreUnavailable wraps job store connectivity errors.
	ErrStoreUnavailable = errors.New("tempo: job store unavailable")

	// ErrIndexUnavailable wraps scheduling index connectivity errors.
	ErrIndexUnavailable = errors.New("tempo: scheduling index unavailable")
)

// Validationf builds an ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
