package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	clientIdleTimeout = 3 * time.Minute
	evictInterval     = time.Minute
)

type localClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is an in-process token bucket per key.
type LocalLimiter struct {
	mu        sync.Mutex
	clients   map[string]*localClient
	rps       rate.Limit
	burst     int
	now       func() time.Time
	lastEvict time.Time
}

// NewLocalLimiter creates a limiter allowing rps requests per second with the given burst per key.
// Keys not seen for three minutes are evicted, checked at most once a minute.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	return &LocalLimiter{
		clients: make(map[string]*localClient),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastEvict) >= evictInterval {
		l.evict(now)
		l.lastEvict = now
	}

	c, found := l.clients[key]
	if !found {
		c = &localClient{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now

	r := c.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}

	return true, 0, nil
}

func (l *LocalLimiter) evict(now time.Time) {
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > clientIdleTimeout {
			delete(l.clients, key)
		}
	}
}
