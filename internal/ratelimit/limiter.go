// Package ratelimit implements a per-client sliding-window request gate.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults match the public API contract.
const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 30
)

// Limiter admits at most max requests per key within any trailing window.
// Buckets are never swept; the number of distinct keys is unbounded.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	window  time.Duration
	max     int
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter. Non-positive arguments select the defaults.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	if max < 1 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		buckets: make(map[string][]time.Time),
		window:  window,
		max:     max,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a request for key and reports whether it is admitted.
// Rejected attempts are not recorded.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.buckets[key]
	drop := 0
	for drop < len(bucket) && now.Sub(bucket[drop]) > l.window {
		drop++
	}
	bucket = bucket[drop:]

	if len(bucket) >= l.max {
		l.buckets[key] = bucket
		return false
	}
	l.buckets[key] = append(bucket, now)
	return true
}

// RetryAfter returns how long key must wait before its oldest request
// leaves the window. Zero means a request would be admitted now.
func (l *Limiter) RetryAfter(key string) time.Duration {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.buckets[key]
	live := 0
	var oldest time.Time
	for _, ts := range bucket {
		if now.Sub(ts) > l.window {
			continue
		}
		if live == 0 {
			oldest = ts
		}
		live++
	}
	if live < l.max {
		return 0
	}
	return oldest.Add(l.window).Sub(now) + time.Millisecond
}

// Keys returns the number of tracked client keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close releases all buckets.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string][]time.Time)
}
