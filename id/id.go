// Package id defines prefix-qualified identity types for tempo entities.
//
// An ID renders as "prefix_uuid", where the suffix is a UUIDv7. Version 7
// UUIDs embed a millisecond timestamp, so IDs of one prefix sort roughly by
// creation time and are globally unique without coordination.
package id

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefix identifies the entity type encoded in an ID.
type Prefix string

// Prefix constants for tempo entity types.
const (
	PrefixJob    Prefix = "job"
	PrefixWorker Prefix = "wkr"
)

const separator = "_"

// ID is the primary identifier type for tempo entities.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	prefix Prefix
	uid    uuid.UUID
	valid  bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is invalid or the random source fails.
func New(prefix Prefix) ID {
	if err := validatePrefix(prefix); err != nil {
		panic(fmt.Sprintf("id: %v", err))
	}
	uid, err := uuid.NewV7()
	if err != nil {
		panic(fmt.Sprintf("id: generate uuid: %v", err))
	}
	return ID{prefix: prefix, uid: uid, valid: true}
}

// Parse parses "prefix_uuid" into an ID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	idx := strings.LastIndex(s, separator)
	if idx <= 0 {
		return Nil, fmt.Errorf("id: parse %q: missing prefix", s)
	}

	prefix := Prefix(s[:idx])
	if err := validatePrefix(prefix); err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	uid, err := uuid.Parse(s[idx+1:])
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{prefix: prefix, uid: uid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that its prefix matches expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.prefix != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.prefix)
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

func validatePrefix(p Prefix) error {
	if p == "" || len(p) > 63 {
		return fmt.Errorf("invalid prefix %q", p)
	}
	for _, r := range p {
		if r < 'a' || r > 'z' {
			return fmt.Errorf("invalid prefix %q: only lowercase ascii letters allowed", p)
		}
	}
	return nil
}

// JobID is a type-safe identifier for jobs (prefix: "job").
type JobID = ID

// WorkerID identifies a worker loop instance (prefix: "wkr").
type WorkerID = ID

// NewJobID generates a new unique job ID.
func NewJobID() ID { return New(PrefixJob) }

// NewWorkerID generates a new unique worker ID.
func NewWorkerID() ID { return New(PrefixWorker) }

// ParseJobID parses a string and validates the "job" prefix.
func ParseJobID(s string) (ID, error) { return ParseWithPrefix(s, PrefixJob) }

// ParseWorkerID parses a string and validates the "wkr" prefix.
func ParseWorkerID(s string) (ID, error) { return ParseWithPrefix(s, PrefixWorker) }

// String returns "prefix_uuid", or "" for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return string(i.prefix) + separator + i.uid.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return i.prefix
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
