package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// MemoryLimiter keeps one token bucket per key in a bounded, expiring LRU cache.
// Buckets refill at perMinute/60 tokens per second with a burst of perMinute.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	now      func() time.Time
}

// NewMemoryLimiter creates a limiter holding at most size buckets. Every use extends a
// bucket's lifetime, so only buckets idle for longer than idleTTL are evicted; they
// start full on next use.
func NewMemoryLimiter(size int, idleTTL time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](size, nil, idleTTL),
		now:      time.Now,
	}
}

// Allow reserves one token and cancels the reservation when it would have to wait.
func (m *MemoryLimiter) Allow(_ context.Context, key string, perMinute int) (Decision, error) {
	if key == "" || perMinute <= 0 {
		return Decision{}, ErrInvalidLimit
	}

	now := m.now()
	limiter := m.getLimiter(key, perMinute)

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return Decision{Limit: perMinute}, nil
	}

	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{Limit: perMinute, RetryAfter: delay}, nil
	}

	return Decision{
		Allowed:   true,
		Limit:     perMinute,
		Remaining: int(math.Max(0, math.Floor(limiter.TokensAt(now)))),
	}, nil
}

// getLimiter retrieves or creates the bucket for key. The limit is part of the cache
// key so a changed limit starts a fresh bucket.
func (m *MemoryLimiter) getLimiter(key string, perMinute int) *rate.Limiter {
	cacheKey := fmt.Sprintf("%s|%d", key, perMinute)

	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, ok := m.limiters.Get(cacheKey); ok {
		// Get leaves the expiry alone; re-adding resets it.
		m.limiters.Add(cacheKey, limiter)
		return limiter
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	m.limiters.Add(cacheKey, limiter)
	return limiter
}

// Len returns the number of live buckets.
func (m *MemoryLimiter) Len() int {
	return m.limiters.Len()
}
