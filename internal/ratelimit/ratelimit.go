// Package ratelimit implements a sliding window request limiter keyed by
// caller identity (typically client IP). Counters live in process memory;
// restarting the server forgets them.
package ratelimit

import (
	"sync"
	"time"
)

type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time
}

func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records one request for key and reports whether it fits the window.
// A rejected request is not recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(key, time.Now())
	if len(recent) >= l.max {
		return false
	}
	l.hits[key] = append(recent, time.Now())
	return true
}

// Remaining reports how many requests key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	left := l.max - len(l.prune(key, time.Now()))
	if left < 0 {
		return 0
	}
	return left
}

// ResetAt reports when the oldest recorded request for key leaves the
// window. The zero time means the key has no recorded requests.
func (l *Limiter) ResetAt(key string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(key, time.Now())
	if len(recent) == 0 {
		return time.Time{}
	}
	return recent[0].Add(l.window)
}

// prune drops hits older than the window and evicts empty keys. Callers must
// hold the mutex.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	old := l.hits[key]
	recent := old[:0]
	for _, ts := range old {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = recent
	return recent
}
