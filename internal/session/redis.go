package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cms-go/internal/cms"
)

// DefaultKeyPrefix namespaces session flags in Redis.
const DefaultKeyPrefix = "cms:visit:"

// RedisStore keeps flags in Redis so every server process shares them.
// SETNX makes the test-and-set atomic across processes.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

var _ cms.SessionStore = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, ttl time.Duration, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (r *RedisStore) MarkCounted(ctx context.Context, sessionID string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+sessionID, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setting session flag: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) ClearCounted(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, r.prefix+sessionID).Err(); err != nil {
		return fmt.Errorf("clearing session flag: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.rdb.Close() }
