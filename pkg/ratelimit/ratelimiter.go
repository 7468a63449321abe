// Package ratelimit provides a sliding-window request counter keyed by
// client IP. State lives in memory; a restart resets the windows.
package ratelimit

import (
	"sync"
	"time"
)

type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	max      int
}

func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		max:      max,
	}
}

// Allow records a request for key and reports whether it fits the window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := time.Now().Add(-rl.window)

	recent := rl.requests[key][:0]
	for _, at := range rl.requests[key] {
		if at.After(windowStart) {
			recent = append(recent, at)
		}
	}

	if len(recent) >= rl.max {
		rl.requests[key] = recent
		return false
	}

	rl.requests[key] = append(recent, time.Now())
	return true
}
