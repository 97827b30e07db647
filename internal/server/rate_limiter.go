// Package server implements per-connection throttling that protects the
// registry from event floods.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter is a token bucket holding at most capacity tokens. Tokens
// come back one at a time, one every interval/capacity, so an empty bucket
// is full again after interval.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	every := interval / time.Duration(capacity)
	if every <= 0 {
		every = time.Nanosecond
	}

	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Every(every), capacity),
	}
}

func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}
