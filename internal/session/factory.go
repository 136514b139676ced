package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cms-go/internal/cms"
	"cms-go/internal/config"
)

// NewStoreFromConfig creates a SessionStore based on the config type.
func NewStoreFromConfig(ctx context.Context, cfg config.SessionConfig) (cms.SessionStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.TTL(), nil), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis session store requires redis_addr to be set")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisStore(rdb, cfg.TTL(), cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown session store type: %s", cfg.Type)
	}
}
