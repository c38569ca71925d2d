// Package ratelimit counts requests per key in fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Limiter interface {
	// Allow records one hit on key and reports whether it is within limit
	// for the current window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Counter is an atomic increment with expiry, implemented by
// repository.RedisRepository.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisLimiter shares counters between all API instances.
type RedisLimiter struct {
	counter Counter
	prefix  string
}

func NewRedisLimiter(counter Counter, prefix string) *RedisLimiter {
	return &RedisLimiter{counter: counter, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, err := l.counter.IncrWindow(ctx, l.prefix+key, window)
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return n <= int64(limit), nil
}

type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps counters in process. Each instance counts on its own,
// so it is only suitable for a single-process development setup.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
	nowFunc   func() time.Time
}

// sweepInterval spaces out full scans of the bucket map.
const sweepInterval = time.Minute

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: map[string]*bucket{}, nowFunc: time.Now}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if !now.Before(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(sweepInterval)
	}
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		l.buckets[key] = b
	}
	b.count++
	return b.count <= limit, nil
}

// sweep drops expired buckets so the map does not grow without bound.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, k)
		}
	}
}
