package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// RedisBlobs stores each blob as a plain string key.
type RedisBlobs struct {
	r      *Redis
	prefix string
}

// NewRedisBlobs namespaces keys with prefix ("classroll:" when empty).
func NewRedisBlobs(r *Redis, prefix string) *RedisBlobs {
	if prefix == "" {
		prefix = "classroll:"
	}
	return &RedisBlobs{r: r, prefix: prefix}
}

// Get reads prefix+key.
func (b *RedisBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.r.Client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

// Put writes prefix+key without expiry.
func (b *RedisBlobs) Put(ctx context.Context, key string, data []byte) error {
	return b.r.Client.Set(ctx, b.prefix+key, data, 0).Err()
}

// Healthy pings redis.
func (b *RedisBlobs) Healthy(ctx context.Context) bool { return b.r.Healthy(ctx) }

// Close closes the client.
func (b *RedisBlobs) Close() error { return b.r.Client.Close() }
