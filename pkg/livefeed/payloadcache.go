package livefeed

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
)

// Payload is a raw upstream response, kept so several instances can share
// one fetch
type Payload struct {
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

type PayloadCache interface {
	Get(ctx context.Context, endpoint string) (*Payload, error)
	Set(ctx context.Context, endpoint string, payload *Payload) error
}

type RedisPayloadCache struct {
	cache *cache.Cache[string]
}

func NewRedisPayloadCache(client *redis.Client, ttl time.Duration) *RedisPayloadCache {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))

	return &RedisPayloadCache{
		cache: cache.New[string](redisStore),
	}
}

// The endpoint carries the API key so only its hash is used in the key
func payloadCacheKey(endpoint string) string {
	return fmt.Sprintf("departureboard/livefeed/%x", sha256.Sum256([]byte(endpoint)))
}

func (r *RedisPayloadCache) Get(ctx context.Context, endpoint string) (*Payload, error) {
	value, err := r.cache.Get(ctx, payloadCacheKey(endpoint))
	if err != nil {
		return nil, err
	}

	var payload *Payload
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return nil, err
	}

	return payload, nil
}

func (r *RedisPayloadCache) Set(ctx context.Context, endpoint string, payload *Payload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return r.cache.Set(ctx, payloadCacheKey(endpoint), string(payloadJSON))
}
