package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKey(t *testing.T) {
	if got := key("availability:abc"); got != "consultbook:availability:abc" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestNewClient_BadURL(t *testing.T) {
	if _, err := NewClient(context.Background(), "http://not-redis"); err == nil {
		t.Error("expected error for non-redis scheme")
	}
}

func TestRedisCache_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewRedisCache(client, time.Minute)

	if _, ok, err := c.Get(context.Background(), "k"); err == nil || ok {
		t.Errorf("expected connection error, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(context.Background(), "k", []byte("v")); err == nil {
		t.Error("expected connection error on Set")
	}
}
