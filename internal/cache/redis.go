package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	applog "expenses/internal/log"
)

const redisOpTimeout = 2 * time.Second

// RedisCache stores JSON encoded values in Redis under a key prefix.
type RedisCache[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *applog.Logger
}

// NewRedisCache creates a cache from a redis:// URL.
func NewRedisCache[T any](url, prefix string, ttl time.Duration, logger *applog.Logger) (*RedisCache[T], error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisCacheWithClient[T](redis.NewClient(opt), prefix, ttl, logger), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient[T any](client *redis.Client, prefix string, ttl time.Duration, logger *applog.Logger) *RedisCache[T] {
	if logger == nil {
		logger = applog.Discard()
	}
	return &RedisCache[T]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.WithComponent(applog.ComponentCache),
	}
}

func (r *RedisCache[T]) key(key string) string {
	return r.prefix + key
}

// Ping verifies the server is reachable.
func (r *RedisCache[T]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get retrieves a value from Redis. Errors are logged and reported as a miss.
func (r *RedisCache[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("Redis cache miss", "key", key)
		return zero, false
	}
	if err != nil {
		r.logger.Error("Redis cache get error", "key", key, applog.FieldError, err)
		return zero, false
	}

	var data T
	if err := json.Unmarshal(val, &data); err != nil {
		r.logger.Error("Redis cache unmarshal error", "key", key, applog.FieldError, err)
		return zero, false
	}
	return data, true
}

// Set stores a value with the cache TTL.
func (r *RedisCache[T]) Set(key string, data T) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	payload, err := json.Marshal(data)
	if err != nil {
		r.logger.Error("Redis cache marshal error", "key", key, applog.FieldError, err)
		return
	}
	if err := r.client.Set(ctx, r.key(key), payload, r.ttl).Err(); err != nil {
		r.logger.Error("Redis cache set error", "key", key, applog.FieldError, err)
		return
	}
	r.logger.Debug("Redis cache set", "key", key, "ttl", r.ttl)
}

// Delete removes a key from Redis.
func (r *RedisCache[T]) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Error("Redis cache delete error", "key", key, applog.FieldError, err)
	}
}

// Size counts the keys under the cache prefix.
func (r *RedisCache[T]) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("Redis cache scan error", applog.FieldError, err)
	}
	return n
}

// Close releases the underlying client.
func (r *RedisCache[T]) Close() error {
	return r.client.Close()
}
