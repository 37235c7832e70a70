package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "querygate:llm:reply:"

// ResponseCache stores model replies keyed by CacheKey.
type ResponseCache interface {
	// Get returns the cached reply and whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, reply string) error
}

// CacheKey hashes the inputs that determine a reply: the database, the
// provider and every turn the model is shown.
func CacheKey(dbID, provider string, turns []Message) string {
	h := sha256.New()
	for _, part := range []string{dbID, provider} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	for _, turn := range turns {
		h.Write([]byte(turn.Role))
		h.Write([]byte{0})
		h.Write([]byte(turn.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RedisResponseCache keeps replies in Redis with a fixed TTL.
type RedisResponseCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisResponseCache returns nil when client is nil or ttl is not positive,
// which callers treat as caching disabled.
func NewRedisResponseCache(client redis.UniversalClient, ttl time.Duration) *RedisResponseCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &RedisResponseCache{client: client, ttl: ttl}
}

func (c *RedisResponseCache) Get(ctx context.Context, key string) (string, bool, error) {
	reply, err := c.client.Get(ctx, cacheKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return reply, true, nil
}

func (c *RedisResponseCache) Set(ctx context.Context, key, reply string) error {
	return c.client.Set(ctx, cacheKeyPrefix+key, reply, c.ttl).Err()
}

var _ ResponseCache = (*RedisResponseCache)(nil)
