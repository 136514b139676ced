package syncbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cms-go/internal/cms"
)

// DefaultChannel is the Redis pub/sub channel used when none is configured.
const DefaultChannel = "cms:changes"

// RedisTransport carries changes over a Redis pub/sub channel so every
// process serving the site sees every commit.
type RedisTransport struct {
	rdb     *redis.Client
	channel string
	logger  cms.Logger
}

var _ Transport = (*RedisTransport)(nil)

func NewRedisTransport(rdb *redis.Client, channel string, logger cms.Logger) *RedisTransport {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = cms.NopLogger{}
	}
	return &RedisTransport{rdb: rdb, channel: channel, logger: logger}
}

func (r *RedisTransport) Publish(ctx context.Context, c cms.Change) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding change: %w", err)
	}
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

func (r *RedisTransport) Start(ctx context.Context, deliver func(cms.Change)) error {
	sub := r.rdb.Subscribe(ctx, r.channel)

	// Wait for the subscription confirmation so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var c cms.Change
				if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
					r.logger.Warn("bad change payload", "channel", r.channel, "error", err)
					continue
				}
				if _, err := cms.ParseTable(string(c.Table)); err != nil {
					r.logger.Warn("change for unknown table", "table", c.Table)
					continue
				}
				deliver(c)
			}
		}
	}()
	return nil
}

func (r *RedisTransport) Close() error {
	return r.rdb.Close()
}
