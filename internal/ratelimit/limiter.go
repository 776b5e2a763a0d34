// Package ratelimit implements the per-content-type publish debounce. State is
// a single last-published timestamp per key kept in Redis, so a restart of the
// worker never forgets a cooldown window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finpost-workers/internal/common/config"
	"finpost-workers/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:last:"

// Limiter gates publishes by cooldown window. It is a pure debounce: a publish
// attempted inside the window is rejected and the caller re-attempts on a
// later tick. There is no bucket, no backoff, no queueing here.
type Limiter struct {
	redis     *redis.Client
	cooldowns config.CooldownConfig
	logger    logger.Logger
	now       func() time.Time
}

func NewLimiter(rdb *redis.Client, cooldowns config.CooldownConfig, log logger.Logger) *Limiter {
	return &Limiter{
		redis:     rdb,
		cooldowns: cooldowns,
		logger:    log.WithFields(map[string]interface{}{"component": "ratelimit"}),
		now:       time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// CanPublish reports whether key is outside its cooldown window. A key with no
// prior record is always admitted. Unknown keys use the fallback cooldown.
func (l *Limiter) CanPublish(ctx context.Context, key string) (bool, error) {
	val, err := l.redis.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		return false, fmt.Errorf("ratelimit lookup for %q: %w", key, err)
	}

	last, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		// Unreadable state only widens the window once; admit and let the
		// next RecordPublish overwrite it.
		l.logger.Warn("unparsable rate limit state, admitting", map[string]interface{}{
			"key":   key,
			"value": val,
		})
		return true, nil
	}

	cooldown := l.cooldowns.CooldownFor(key)
	return l.now().Sub(last) >= cooldown, nil
}

// RecordPublish stores the publish instant for key. Called exactly once per
// successful publish; never on failure, so a failed send stays eligible.
func (l *Limiter) RecordPublish(ctx context.Context, key string, at time.Time) error {
	if at.IsZero() {
		at = l.now()
	}
	if err := l.redis.Set(ctx, keyPrefix+key, at.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("ratelimit record for %q: %w", key, err)
	}
	return nil
}

// LastPublished returns the recorded publish instant for key, or zero time if
// none exists. Dashboard consumption only.
func (l *Limiter) LastPublished(ctx context.Context, key string) (time.Time, error) {
	val, err := l.redis.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, val)
}
