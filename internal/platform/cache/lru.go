package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is a size-bounded in-process cache with the same contract as
// RedisCache. It serves a single instance when no Redis is configured.
type LRUCache struct {
	entries *expirable.LRU[string, []byte]
}

func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{entries: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *LRUCache) Get(_ context.Context, k string) ([]byte, bool, error) {
	v, ok := c.entries.Get(key(k))
	return v, ok, nil
}

func (c *LRUCache) Set(_ context.Context, k string, value []byte) error {
	c.entries.Add(key(k), value)
	return nil
}

func (c *LRUCache) Delete(_ context.Context, k string) error {
	c.entries.Remove(key(k))
	return nil
}

func (c *LRUCache) Len() int {
	return c.entries.Len()
}
