package middleware

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestRedisRateLimitStore_Allow tests the Redis rate limiter with a real
// Redis instance on localhost:6379. Skips when Redis is not available.
func TestRedisRateLimitStore_Allow(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	defer client.Close()

	store := NewRedisRateLimitStore(client, nil, nil)
	config := RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
	}

	testKey := "test-redis-key-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	ctx = context.Background()
	defer client.Del(ctx, "ratelimit:"+testKey)

	for i := 0; i < 5; i++ {
		allowed, _ := store.Allow(ctx, testKey, config)
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	allowed, retryAfter := store.Allow(ctx, testKey, config)
	if allowed {
		t.Error("6th request should be blocked")
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("expected retryAfter between 1 and 60, got %d", retryAfter)
	}
}

// TestRedisRateLimitStore_FailOpen verifies that an unreachable Redis allows
// the request through.
func TestRedisRateLimitStore_FailOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:1", // nothing listens here
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	m := NewMetrics()
	store := NewRedisRateLimitStore(client, m, nil)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	allowed, retryAfter := store.Allow(context.Background(), "any", config)
	if !allowed {
		t.Error("expected fail-open to allow the request")
	}
	if retryAfter != 0 {
		t.Errorf("expected retryAfter 0 on fail-open, got %d", retryAfter)
	}
}
