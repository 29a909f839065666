package redis

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tempohq/tempo/id"
	"github.com/tempohq/tempo/schedule"
)

// Compile-time interface check.
var _ schedule.Index = (*Index)(nil)

// IndexOption configures the Index.
type IndexOption func(*Index)

// WithIndexKey overrides the Sorted Set key holding the index.
func WithIndexKey(key string) IndexOption {
	return func(ix *Index) { ix.key = key }
}

// WithIndexLogger sets a custom logger.
func WithIndexLogger(l *slog.Logger) IndexOption {
	return func(ix *Index) { ix.logger = l }
}

// Index implements schedule.Index as a Redis Sorted Set. Members are job
// ids; scores are due times in Unix milliseconds.
type Index struct {
	client goredis.Cmdable
	key    string
	logger *slog.Logger
}

// NewIndex creates a Redis-backed scheduling index. The caller owns the
// Redis client lifecycle.
func NewIndex(client goredis.Cmdable, opts ...IndexOption) *Index {
	ix := &Index{client: client, key: scheduleKey, logger: slog.Default()}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Upsert inserts or moves the entry for jobID.
func (ix *Index) Upsert(ctx context.Context, jobID id.JobID, due time.Time) error {
	err := ix.client.ZAdd(ctx, ix.key, goredis.Z{
		Score:  float64(due.UnixMilli()),
		Member: jobID.String(),
	}).Err()
	if err != nil {
		return indexErr("upsert", err)
	}
	return nil
}

// RangeDue returns ids scored at or before now, earliest first. Members
// that do not parse as job ids are logged and skipped.
func (ix *Index) RangeDue(ctx context.Context, now time.Time) ([]id.JobID, error) {
	members, err := ix.client.ZRangeByScore(ctx, ix.key, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, indexErr("range due", err)
	}

	ids := make([]id.JobID, 0, len(members))
	for _, m := range members {
		jobID, parseErr := id.ParseJobID(m)
		if parseErr != nil {
			ix.logger.Warn("skipping malformed index member",
				slog.String("member", m),
				slog.String("error", parseErr.Error()),
			)
			continue
		}
		ids = append(ids, jobID)
	}
	return ids, nil
}

// Remove deletes the entry for jobID.
func (ix *Index) Remove(ctx context.Context, jobID id.JobID) error {
	if err := ix.client.ZRem(ctx, ix.key, jobID.String()).Err(); err != nil {
		return indexErr("remove", err)
	}
	return nil
}

// Score returns the due time recorded for jobID.
func (ix *Index) Score(ctx context.Context, jobID id.JobID) (time.Time, bool, error) {
	score, err := ix.client.ZScore(ctx, ix.key, jobID.String()).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, indexErr("score", err)
	}
	return time.UnixMilli(int64(score)).UTC(), true, nil
}

// Ping verifies the Redis connection is alive.
func (ix *Index) Ping(ctx context.Context) error {
	if err := ix.client.Ping(ctx).Err(); err != nil {
		return indexErr("ping", err)
	}
	return nil
}
