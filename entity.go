package tempo

import "time"

// Entity carries the bookkeeping timestamps shared by stored records.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity stamped with now, truncated to the
// millisecond so it survives every backend round trip unchanged.
func NewEntity(now time.Time) Entity {
	t := Timestamp(now)
	return Entity{CreatedAt: t, UpdatedAt: t}
}

// Timestamp normalizes t to UTC millisecond precision. The scheduling
// index scores due times in Unix milliseconds; job records use the same
// precision so both sides compare equal.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
