// Package ratelimiter throttles authentication attempts per client key.
package ratelimiter

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxBuckets caps the number of tracked keys. When the table is full,
// fully replenished (idle) buckets are discarded to make room.
const maxBuckets = 4096

// Limiter applies a token bucket per key.
//
// Each key (typically tenant plus client address) gets its own bucket, so
// a password-guessing client slows itself down without affecting other
// clients. A zero sustained rate disables limiting entirely.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a Limiter allowing requestsPerSecond sustained per key, with
// the given burst capacity. A zero requestsPerSecond disables limiting;
// New then returns nil, which every method treats as "always allow".
func New(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one request for key is allowed right now,
// consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxBuckets {
			l.evictIdleLocked()
		}
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = bucket
	}
	return bucket.Allow()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// evictIdleLocked drops buckets that have fully replenished. A full bucket
// carries no history worth keeping; recreating it later is equivalent.
// Callers hold the lock.
func (l *Limiter) evictIdleLocked() {
	for key, bucket := range l.buckets {
		if bucket.Tokens() >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}
