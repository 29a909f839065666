package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tempohq/tempo/job"
	"github.com/tempohq/tempo/schedule"
	"github.com/tempohq/tempo/store/memory"
	"github.com/tempohq/tempo/store/postgres"
	redisstore "github.com/tempohq/tempo/store/redis"
)

// Backend names accepted by Config.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects and addresses the job store and scheduling index
// backends.
type Config struct {
	// Jobs is the job store backend: memory, postgres or redis.
	Jobs string `json:"jobs" mapstructure:"jobs"`
	// Index is the scheduling index backend: memory or redis.
	Index string `json:"index" mapstructure:"index"`

	PostgresDSN   string `json:"postgres_dsn" mapstructure:"postgres_dsn"`
	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `json:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db"`
	// IndexKey overrides the Redis key of the scheduling index.
	IndexKey string `json:"index_key" mapstructure:"index_key"`
}

// DefaultConfig keeps everything in memory.
func DefaultConfig() Config {
	return Config{
		Jobs:      BackendMemory,
		Index:     BackendMemory,
		RedisAddr: "localhost:6379",
	}
}

// Backends holds an opened job store and scheduling index.
type Backends struct {
	Jobs  job.Store
	Index schedule.Index

	redis *goredis.Client
}

// Open connects the configured backends. A single Redis client is shared
// when both sides use Redis.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Backends, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backends{}

	redisClient := func() *goredis.Client {
		if b.redis == nil {
			b.redis = goredis.NewClient(&goredis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
		}
		return b.redis
	}

	switch cfg.Jobs {
	case BackendMemory, "":
		b.Jobs = memory.New()
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("tempo/store: postgres backend requires a DSN")
		}
		s, err := postgres.New(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		b.Jobs = s
	case BackendRedis:
		b.Jobs = redisstore.New(redisClient(), redisstore.WithLogger(logger))
	default:
		return nil, fmt.Errorf("tempo/store: unknown job store backend %q", cfg.Jobs)
	}

	switch cfg.Index {
	case BackendMemory, "":
		b.Index = memory.NewIndex()
	case BackendRedis:
		opts := []redisstore.IndexOption{redisstore.WithIndexLogger(logger)}
		if cfg.IndexKey != "" {
			opts = append(opts, redisstore.WithIndexKey(cfg.IndexKey))
		}
		b.Index = redisstore.NewIndex(redisClient(), opts...)
	default:
		_ = b.Close()
		return nil, fmt.Errorf("tempo/store: unknown scheduling index backend %q", cfg.Index)
	}

	return b, nil
}

// Close releases the job store and any Redis client opened by Open.
func (b *Backends) Close() error {
	var errs []error
	if b.Jobs != nil {
		errs = append(errs, b.Jobs.Close())
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	return errors.Join(errs...)
}
