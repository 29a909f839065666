package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/tempohq/tempo/store"
	"github.com/tempohq/tempo/store/memory"
	redisstore "github.com/tempohq/tempo/store/redis"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		cfg       store.Config
		wantJobs  string
		wantIndex string
		wantErr   bool
	}{
		{"defaults", store.DefaultConfig(), "memory", "memory", false},
		{"empty", store.Config{}, "memory", "memory", false},
		{"redis both", store.Config{Jobs: "redis", Index: "redis", RedisAddr: mr.Addr()}, "redis", "redis", false},
		{"memory jobs redis index", store.Config{Jobs: "memory", Index: "redis", RedisAddr: mr.Addr(), IndexKey: "t:idx"}, "memory", "redis", false},
		{"postgres without dsn", store.Config{Jobs: "postgres"}, "", "", true},
		{"unknown jobs", store.Config{Jobs: "sqlite"}, "", "", true},
		{"unknown index", store.Config{Index: "postgres"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := store.Open(ctx, tt.cfg, nil)
			if tt.wantErr {
				if err == nil {
					_ = b.Close()
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer func() {
				if err := b.Close(); err != nil {
					t.Errorf("Close: %v", err)
				}
			}()

			switch tt.wantJobs {
			case "memory":
				if _, ok := b.Jobs.(*memory.Store); !ok {
					t.Fatalf("Jobs = %T, want *memory.Store", b.Jobs)
				}
			case "redis":
				if _, ok := b.Jobs.(*redisstore.Store); !ok {
					t.Fatalf("Jobs = %T, want *redis.Store", b.Jobs)
				}
			}
			switch tt.wantIndex {
			case "memory":
				if _, ok := b.Index.(*memory.Index); !ok {
					t.Fatalf("Index = %T, want *memory.Index", b.Index)
				}
			case "redis":
				if _, ok := b.Index.(*redisstore.Index); !ok {
					t.Fatalf("Index = %T, want *redis.Index", b.Index)
				}
			}

			if err := b.Jobs.Ping(ctx); err != nil {
				t.Fatalf("Jobs.Ping: %v", err)
			}
			if err := b.Index.Ping(ctx); err != nil {
				t.Fatalf("Index.Ping: %v", err)
			}
		})
	}
}
