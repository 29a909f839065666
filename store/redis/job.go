package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/job"
)

// casScript sets the given hash fields only when the stored status equals
// ARGV[1]. Returns -1 when the job does not exist, 0 on a status mismatch
// and 1 when the fields were written.
var casScript = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return -1
end
if cur ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 1
`)

// Insert stores the job as a Hash and records it in the created_at set.
func (s *Store) Insert(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return storeErr("insert check exists", err)
	}
	if exists > 0 {
		return tempo.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.ZAdd(ctx, jobsByCreatedKey, goredis.Z{
		Score:  float64(j.CreatedAt.UnixMilli()),
		Member: jID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("insert job", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, jobKey(jobID.String())).Result()
	if err != nil {
		return nil, storeErr("get job", err)
	}
	if len(vals) == 0 {
		return nil, tempo.ErrJobNotFound
	}
	return mapToJob(vals)
}

// ListAll returns jobs ordered by created_at descending, ties broken by id
// descending.
func (s *Store) ListAll(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.ZRevRange(ctx, jobsByCreatedKey, 0, -1).Result()
	if err != nil {
		return nil, storeErr("list jobs", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, jID := range ids {
		cmds[i] = pipe.HGetAll(ctx, jobKey(jID))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, storeErr("list jobs", err)
		}
	}

	jobs := make([]*job.Job, 0, len(ids))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue // deleted between the two reads
		}
		j, parseErr := mapToJob(vals)
		if parseErr != nil {
			s.logger.Warn("skipping unreadable job record",
				slog.String("job_id", ids[i]),
				slog.String("error", parseErr.Error()),
			)
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		jobs = append(jobs, j)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return []*job.Job{}, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// ConditionalUpdate applies patch when the stored status equals expected.
// The check and write run inside one Lua script.
func (s *Store) ConditionalUpdate(ctx context.Context, jobID id.JobID, expected job.Status, patch job.Patch) (bool, error) {
	args := append([]interface{}{string(expected)}, patchToArgs(patch)...)

	res, err := casScript.Run(ctx, s.client, []string{jobKey(jobID.String())}, args...).Int()
	if err != nil {
		return false, storeErr("conditional update", err)
	}
	switch res {
	case -1:
		return false, tempo.ErrJobNotFound
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

// Delete removes a job by ID.
func (s *Store) Delete(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, jobKey(jID))
	pipe.ZRem(ctx, jobsByCreatedKey, jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("delete job", err)
	}
	return nil
}

// ── helpers ──

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":            j.ID.String(),
		"type":          j.Type,
		"payload":       string(j.Payload),
		"priority":      strconv.Itoa(j.Priority),
		"status":        string(j.Status),
		"scheduled_at":  formatTime(j.ScheduledAt),
		"retries":       strconv.Itoa(j.Retries),
		"max_retries":   strconv.Itoa(j.MaxRetries),
		"failed_reason": j.FailedReason,
		"created_at":    formatTime(j.CreatedAt),
		"updated_at":    formatTime(j.UpdatedAt),
	}
	if j.StartedAt != nil {
		m["started_at"] = formatTime(*j.StartedAt)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = formatTime(*j.CompletedAt)
	}
	return m
}

// patchToArgs flattens a patch into HSET field/value pairs.
func patchToArgs(p job.Patch) []interface{} {
	args := []interface{}{"status", string(p.Status)}
	if !p.UpdatedAt.IsZero() {
		args = append(args, "updated_at", formatTime(p.UpdatedAt))
	}
	if p.ScheduledAt != nil {
		args = append(args, "scheduled_at", formatTime(*p.ScheduledAt))
	}
	if p.Retries != nil {
		args = append(args, "retries", strconv.Itoa(*p.Retries))
	}
	if p.FailedReason != nil {
		args = append(args, "failed_reason", *p.FailedReason)
	}
	if p.StartedAt != nil {
		args = append(args, "started_at", formatTime(*p.StartedAt))
	}
	if p.CompletedAt != nil {
		args = append(args, "completed_at", formatTime(*p.CompletedAt))
	}
	return args
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("tempo/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])      //nolint:errcheck // best-effort parse from trusted Redis data
	retries, _ := strconv.Atoi(m["retries"])        //nolint:errcheck // best-effort parse from trusted Redis data
	maxRetries, _ := strconv.Atoi(m["max_retries"]) //nolint:errcheck // best-effort parse from trusted Redis data

	scheduledAt, _ := time.Parse(time.RFC3339Nano, m["scheduled_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])     //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])     //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: tempo.Entity{
			CreatedAt: createdAt.UTC(),
			UpdatedAt: updatedAt.UTC(),
		},
		ID:           jID,
		Type:         m["type"],
		Payload:      []byte(m["payload"]),
		Priority:     priority,
		Status:       job.Status(m["status"]),
		ScheduledAt:  scheduledAt.UTC(),
		Retries:      retries,
		MaxRetries:   maxRetries,
		FailedReason: m["failed_reason"],
	}

	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		t = t.UTC()
		j.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		t = t.UTC()
		j.CompletedAt = &t
	}

	return j, nil
}
