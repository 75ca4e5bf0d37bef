package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements SharedCache on Redis so multiple engine instances
// share one fetch budget against the regulatory APIs.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed shared cache.
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "compliance:cache",
	}
}

// NewRedisCacheFromClient wraps an existing client, for tests.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "compliance:cache"}
}

func (r *RedisCache) key(k Key) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, k.BuildingID, k.Category)
}

// Get implements SharedCache.
func (r *RedisCache) Get(ctx context.Context, k Key) (Payload, bool, error) {
	data, err := r.client.Get(ctx, r.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Payload{}, false, nil
	}
	if err != nil {
		return Payload{}, false, fmt.Errorf("redis get %s: %w", r.key(k), err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, false, fmt.Errorf("decode cached payload %s: %w", r.key(k), err)
	}
	return p, true, nil
}

// Set implements SharedCache. The Redis expiry mirrors the category TTL so
// entries self-clean.
func (r *RedisCache) Set(ctx context.Context, k Key, p Payload, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload %s: %w", r.key(k), err)
	}
	if err := r.client.Set(ctx, r.key(k), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key(k), err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
