package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (m *memCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	m.counts[key]++
	return redis.NewIntResult(m.counts[key], nil)
}

func (m *memCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func setupRouter(counter Counter, limits RateLimits) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimiter(counter, limits))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/groups/:group_id/state", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:5555"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_BlocksAfterBudget(t *testing.T) {
	counter := newMemCounter()
	r := setupRouter(counter, RateLimits{WSPerMinute: 2, APIPerMinute: 5})

	require.Equal(t, http.StatusOK, get(r, "/ws").Code)
	w := get(r, "/ws")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = get(r, "/ws")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	assert.Equal(t, http.StatusOK, get(r, "/groups/G/state").Code, "api budget is separate")
	assert.Equal(t, rateWindow, counter.expires["rate_limit:ws:10.0.0.1"])
}

func TestRateLimiter_PassThrough(t *testing.T) {
	t.Run("no redis", func(t *testing.T) {
		r := setupRouter(nil, RateLimits{WSPerMinute: 1})
		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, get(r, "/ws").Code)
		}
	})

	t.Run("redis error", func(t *testing.T) {
		counter := newMemCounter()
		counter.err = errors.New("connection refused")
		r := setupRouter(counter, RateLimits{WSPerMinute: 1})
		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, get(r, "/ws").Code)
		}
	})

	t.Run("zero limit disables", func(t *testing.T) {
		r := setupRouter(newMemCounter(), RateLimits{})
		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, get(r, "/groups/G/state").Code)
		}
	})
}
