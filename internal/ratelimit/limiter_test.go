// internal/ratelimit/limiter_test.go
package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpost-workers/internal/common/config"
	"finpost-workers/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestCooldowns() config.CooldownConfig {
	return config.CooldownConfig{
		PerType: map[string]int{
			"market_update": 30,
			"news_alert":    15,
		},
		FallbackMinutes: 60,
	}
}

func createTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewLimiter(rdb, createTestCooldowns(), logger.NewTestLogger(t)), mr
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// ==========================
// Core Functionality Tests
// ==========================

func TestLimiter_CanPublish_NoPriorRecord(t *testing.T) {
	limiter, _ := createTestLimiter(t)

	ok, err := limiter.CanPublish(context.Background(), "market_update")
	require.NoError(t, err)
	assert.True(t, ok, "a key with no prior publish must be admitted")
}

func TestLimiter_CanPublish_CooldownWindow(t *testing.T) {
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		key      string
		elapsed  time.Duration
		expected bool
	}{
		{"inside window", "market_update", 29 * time.Minute, false},
		{"exact boundary admits", "market_update", 30 * time.Minute, true},
		{"past window", "market_update", 31 * time.Minute, true},
		{"short cooldown type", "news_alert", 15 * time.Minute, true},
		{"short cooldown still blocks", "news_alert", 14 * time.Minute, false},
		{"unknown type uses fallback", "mystery", 59 * time.Minute, false},
		{"unknown type past fallback", "mystery", 60 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, _ := createTestLimiter(t)
			ctx := context.Background()

			limiter.WithClock(fixedClock(base))
			require.NoError(t, limiter.RecordPublish(ctx, tt.key, base))

			limiter.WithClock(fixedClock(base.Add(tt.elapsed)))
			ok, err := limiter.CanPublish(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestLimiter_RecordPublish_ZeroTimeUsesClock(t *testing.T) {
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	limiter, _ := createTestLimiter(t)
	limiter.WithClock(fixedClock(base))
	ctx := context.Background()

	require.NoError(t, limiter.RecordPublish(ctx, "market_update", time.Time{}))

	last, err := limiter.LastPublished(ctx, "market_update")
	require.NoError(t, err)
	assert.True(t, last.Equal(base))
}

func TestLimiter_CanPublish_UnparsableStateAdmits(t *testing.T) {
	limiter, mr := createTestLimiter(t)
	mr.Set("ratelimit:last:market_update", "not-a-timestamp")

	ok, err := limiter.CanPublish(context.Background(), "market_update")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiter_CanPublish_RedisDown(t *testing.T) {
	limiter, mr := createTestLimiter(t)
	mr.Close()

	_, err := limiter.CanPublish(context.Background(), "market_update")
	assert.Error(t, err, "a dead store must surface an error, not silently admit")
}

func TestLimiter_StateSurvivesNewLimiter(t *testing.T) {
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	ctx := context.Background()

	first := NewLimiter(rdb, createTestCooldowns(), logger.NewTestLogger(t)).WithClock(fixedClock(base))
	require.NoError(t, first.RecordPublish(ctx, "market_update", base))

	// A fresh limiter over the same store still sees the cooldown.
	second := NewLimiter(rdb, createTestCooldowns(), logger.NewTestLogger(t)).WithClock(fixedClock(base.Add(10 * time.Minute)))
	ok, err := second.CanPublish(ctx, "market_update")
	require.NoError(t, err)
	assert.False(t, ok)
}
