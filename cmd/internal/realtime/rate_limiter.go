package realtime

import (
	"sync"
	"time"
)

// RateLimiter is a per-connection sliding-window limiter.
type RateLimiter struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter falls back to the package defaults for non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		events: make([]time.Time, 0, limit),
		limit:  limit,
		window: window,
	}
}

// Allow records an event at now and reports whether it is within the limit.
// Rejected events are not recorded.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evict(now)
	if len(r.events) >= r.limit {
		return false
	}
	r.events = append(r.events, now)
	return true
}

// Remaining is the number of events Allow would accept at now.
func (r *RateLimiter) Remaining(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evict(now)
	return r.limit - len(r.events)
}

// evict drops events at or before now-window. Events are appended in time order,
// so the expired ones form a prefix.
func (r *RateLimiter) evict(now time.Time) {
	cut := now.Add(-r.window)
	i := 0
	for i < len(r.events) && !r.events[i].After(cut) {
		i++
	}
	if i > 0 {
		r.events = append(r.events[:0], r.events[i:]...)
	}
}
