package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReplayStore shares the consumed-token set across processes using
// SET NX with a TTL matching the token expiry. Redis evicts entries at
// expiry, so no explicit garbage collection is needed.
type RedisReplayStore struct {
	client    *redis.Client
	keyPrefix string
	timeout   time.Duration
}

// NewRedisReplayStore wraps a Redis client as a replay store.
func NewRedisReplayStore(client *redis.Client) *RedisReplayStore {
	return &RedisReplayStore{
		client:    client,
		keyPrefix: "vigil:exec-token:",
		timeout:   2 * time.Second,
	}
}

// Seen implements ReplayStore. On Redis failure it reports the token as seen:
// replay protection fails closed.
func (s *RedisReplayStore) Seen(tokenID string, expiresAtMillis int64) bool {
	ttl := time.Until(time.UnixMilli(expiresAtMillis))
	if ttl <= 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	inserted, err := s.client.SetNX(ctx, s.keyPrefix+tokenID, 1, ttl).Result()
	if err != nil {
		slog.Error("redis replay check failed, treating token as consumed", "token_id", tokenID, "error", err)
		return true
	}
	return !inserted
}
