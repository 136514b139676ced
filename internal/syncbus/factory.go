package syncbus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cms-go/internal/cms"
	"cms-go/internal/config"
)

// NewHubFromConfig creates a Hub with the transport named by cfg.Type. The
// hub is not started. journal backs the "journal" transport and may be nil
// for the others.
func NewHubFromConfig(ctx context.Context, cfg config.SyncConfig, journal ChangeJournal, logger cms.Logger) (*Hub, error) {
	switch cfg.Type {
	case "memory":
		return NewHub(NewMemoryTransport(), cfg.MaxSubscriptions, logger), nil
	case "journal":
		if journal == nil {
			return nil, fmt.Errorf("journal sync bus requires a metadata store")
		}
		interval := time.Duration(cfg.PollIntervalMillis) * time.Millisecond
		return NewHub(NewJournalTransport(journal, interval, logger), cfg.MaxSubscriptions, logger), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis sync bus requires redis_addr to be set")
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
		return NewHub(NewRedisTransport(rdb, cfg.Channel, logger), cfg.MaxSubscriptions, logger), nil
	default:
		return nil, fmt.Errorf("unknown sync bus type: %s", cfg.Type)
	}
}
