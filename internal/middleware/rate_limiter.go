package middleware

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const rateWindow = 60 * time.Second

// Counter is the subset of the redis client the limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimits are per-client-IP budgets per minute.
type RateLimits struct {
	WSPerMinute  int
	APIPerMinute int
}

// RateLimiter is a fixed-window limiter keyed by client IP. Websocket upgrades
// and API calls have separate budgets. With no counter, or when Redis fails,
// requests pass through.
func RateLimiter(rdb Counter, limits RateLimits) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		if c.Request.URL.Path == "/ws" {
			handleRateLimit(c, rdb, "rate_limit:ws:"+clientIP, limits.WSPerMinute)
			return
		}
		handleRateLimit(c, rdb, "rate_limit:api:"+clientIP, limits.APIPerMinute)
	}
}

func handleRateLimit(c *gin.Context, rdb Counter, key string, limit int) {
	if limit <= 0 {
		c.Next()
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
	defer cancel()

	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("rate limiter unavailable, allowing request key=%s: %v", key, err)
		c.Next()
		return
	}
	if count == 1 {
		if err := rdb.Expire(ctx, key, rateWindow).Err(); err != nil {
			log.Printf("rate limiter expire failed key=%s: %v", key, err)
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

	if int(count) > limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try again later"})
		return
	}
	c.Next()
}
