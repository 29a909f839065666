package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tempohq/tempo"
	"github.com/tempohq/tempo/job"
)

// Compile-time interface check.
var _ job.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements job.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed job store. The caller owns the Redis
// client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

func storeErr(op string, err error) error {
	return fmt.Errorf("tempo/redis: %s: %w: %w", op, tempo.ErrStoreUnavailable, err)
}

func indexErr(op string, err error) error {
	return fmt.Errorf("tempo/redis: %s: %w: %w", op, tempo.ErrIndexUnavailable, err)
}
