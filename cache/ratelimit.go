package cache

import (
	"context"
	"strconv"
	"time"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter is a fixed window limiter shared by every instance using the same valkey.
type RateLimiter struct {
	cache  Cache
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit requests per key in every window.
func NewRateLimiter(cache Cache, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		cache:  cache,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow counts a request for key in the current window. A refused request
// waits for the window's counter to expire.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	bucket := rateLimitKeyPrefix + key + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)

	count, err := l.cache.IncrWithTTL(ctx, bucket, l.window)
	if err != nil {
		return false, 0, err
	}
	if count <= l.limit {
		return true, 0, nil
	}

	ttl, err := l.cache.TTL(ctx, bucket)
	if err != nil || ttl <= 0 {
		return false, windowStart.Add(l.window).Sub(now), nil
	}

	return false, ttl, nil
}
