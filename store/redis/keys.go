package redis

// Redis key naming conventions for tempo data.
// All keys are prefixed with "tempo:" to avoid collisions.

const keyPrefix = "tempo:"

// jobKey returns the key for a job record: tempo:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobsByCreatedKey is the Sorted Set of job ids scored by created_at in
// Unix milliseconds. It drives ListAll.
const jobsByCreatedKey = keyPrefix + "jobs"

// scheduleKey is the default Sorted Set backing the scheduling index.
const scheduleKey = keyPrefix + "schedule"
