package ratelimit

import (
	"sync"
	"time"
)

// bucket is a token bucket refilled continuously from its refill rate.
type bucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func (b *bucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Limiter rate-limits per key (user ID or client IP) with one token bucket
// per key. Idle buckets are swept periodically so the map does not grow
// unboundedly.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   float64
	refillRate float64

	sweepEvery time.Duration
	lastSweep  time.Time
}

// NewLimiter allows bursts of capacity requests, refilled at refillRate
// requests per second.
func NewLimiter(capacity int, refillRate float64) *Limiter {
	return &Limiter{
		buckets:    make(map[string]*bucket),
		capacity:   float64(capacity),
		refillRate: refillRate,
		sweepEvery: 10 * time.Minute,
		lastSweep:  time.Now(),
	}
}

// Allow reports whether the key may proceed, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > l.sweepEvery {
		l.sweep(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			capacity:   l.capacity,
			tokens:     l.capacity,
			refillRate: l.refillRate,
			lastRefill: now,
		}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	return b.allow(now)
}

// sweep drops buckets idle long enough to have fully refilled. Caller holds
// l.mu.
func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		b.mu.Lock()
		idle := now.Sub(b.lastRefill)
		b.mu.Unlock()
		if idle > l.sweepEvery {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Reset clears the key's bucket.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
