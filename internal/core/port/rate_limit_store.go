package port

import (
	"context"
	"time"
)

// RateLimitWindow summarizes the attempts currently inside a sliding window.
// Oldest is zero when Count is zero.
type RateLimitWindow struct {
	Count  int
	Oldest time.Time
}

// RateLimitStore keeps per-key sliding windows of request timestamps.
type RateLimitStore interface {
	// Observe discards attempts older than window relative to now and reports what remains.
	Observe(ctx context.Context, key string, window time.Duration, now time.Time) (RateLimitWindow, error)
	// Record adds an attempt at the given instant.
	Record(ctx context.Context, key string, at time.Time) error
}
