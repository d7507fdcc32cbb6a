package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"serpgap/internal/logger"
)

// RateLimiter counts requests per client within a fixed window.
type RateLimiter interface {
	// Allow increments the counter for key and reports whether the request is
	// within the limit, plus the seconds remaining in the current window.
	Allow(ctx context.Context, key string) (allowed bool, retryAfter int, err error)
}

// RedisRateLimiter is a fixed-window counter backed by Redis, shared across
// instances.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisRateLimiter creates a Redis-backed rate limiter.
// Parameters:
//   - client: Redis client.
//   - limit: max requests per window.
//   - window: window duration.
// Returns:
//   - *RedisRateLimiter: initialized limiter.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

// Allow implements RateLimiter using INCR with an expiry set on first hit.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	redisKey := "ratelimit:" + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr failed: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire failed: %w", err)
		}
	}
	if count <= int64(l.limit) {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, int(ttl.Seconds()) + 1, nil
}

// MemoryRateLimiter is a single-instance fixed-window counter used when no
// Redis address is configured.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimiter creates an in-memory rate limiter.
// Parameters:
//   - limit: max requests per window.
//   - window: window duration.
// Returns:
//   - *MemoryRateLimiter: initialized limiter.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*memoryWindow),
	}
}

// Allow implements RateLimiter.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &memoryWindow{count: 1, resetAt: now.Add(l.window)}
		return true, 0, nil
	}

	w.count++
	if w.count <= l.limit {
		return true, 0, nil
	}
	return false, int(time.Until(w.resetAt).Seconds()) + 1, nil
}

// RateLimit returns a middleware that enforces the limiter per client IP.
// Limiter errors fail open: an unreachable Redis should degrade service, not
// take the webhook down.
// Parameters:
//   - limiter: backing counter.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func RateLimit(limiter RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.CtxWarn(c.Request.Context(), "Rate limiter unavailable, allowing request: %v", err)
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}
