// Package cache provides fixed-TTL byte caches backed by Redis or an in-process LRU.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "consultbook:"

// NewClient parses a redis:// URL and verifies the server answers PING.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func key(k string) string {
	return keyPrefix + k
}

// Get returns the cached value and whether it was present.
func (c *RedisCache) Get(ctx context.Context, k string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, k string, value []byte) error {
	return c.client.Set(ctx, key(k), value, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, k string) error {
	return c.client.Del(ctx, key(k)).Err()
}
