package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHelpersFallBack(t *testing.T) {
	assert.Equal(t, "8083", getEnv("SYNC_TEST_UNSET_PORT", "8083"))
	assert.Equal(t, 300, getEnvInt("SYNC_TEST_UNSET_LOOKAHEAD", 300))
	assert.False(t, getEnvBool("SYNC_TEST_UNSET_DEBUG", false))
	assert.Nil(t, splitList(" , "))
	assert.Equal(t, []string{"*"}, origins(""))
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DSN", "sqlite:///tmp/history.db")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RATE_LIMIT_WS_PER_MIN", "not-a-number")
	t.Setenv("SCHEDULE_LOOKAHEAD_MS", "450")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "sqlite:///tmp/history.db", cfg.DBDSN)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 30, cfg.RateLimitWSPerMin)
	assert.Equal(t, 450*time.Millisecond, cfg.ScheduleLookahead)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.DebugRoutes)
}
