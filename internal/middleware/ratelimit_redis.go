// Package middleware provides HTTP middleware components for the roster API server.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis, so the limit
// holds across multiple roster API replicas. It uses a fixed window counter
// keyed per client: INCR on each request, EXPIRE on the first hit of a window.
//
// The store fails open: when Redis is unreachable the request is allowed and
// the error counter is incremented, so a cache outage degrades rate limiting
// rather than taking down the read path.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
	logger  *slog.Logger
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
// metrics may be nil when no registry is wired.
func NewRedisRateLimitStore(client *redis.Client, metrics *Metrics, logger *slog.Logger) *RedisRateLimitStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimitStore{client: client, metrics: metrics, logger: logger}
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := "ratelimit:" + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		s.failOpen(err)
		return true, 0
	}

	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, config.WindowDuration).Err(); err != nil {
			s.failOpen(err)
			return true, 0
		}
	}

	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		// A key with no expiry would block the client forever; reset the
		// window instead.
		if ttl < 0 {
			s.client.Expire(ctx, redisKey, config.WindowDuration)
		}
		return false, int(config.WindowDuration / time.Second)
	}
	retryAfter := int(ttl / time.Second)
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}

func (s *RedisRateLimitStore) failOpen(err error) {
	if s.metrics != nil {
		s.metrics.IncRateLimitRedisErrors()
	}
	s.logger.Warn("redis rate limit check failed, allowing request",
		slog.String("error", err.Error()))
}
