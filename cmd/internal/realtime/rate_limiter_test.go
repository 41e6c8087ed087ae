package realtime

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, 10*time.Second)
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if !rl.Allow(t0) || !rl.Allow(t0.Add(time.Second)) {
		t.Fatal("first two events must pass")
	}
	if rl.Allow(t0.Add(2 * time.Second)) {
		t.Fatal("third event inside the window must fail")
	}
	if got := rl.Remaining(t0.Add(5 * time.Second)); got != 0 {
		t.Fatalf("Remaining = %d, want 0", got)
	}

	// t0 leaves the window exactly at t0+10s.
	if !rl.Allow(t0.Add(10 * time.Second)) {
		t.Fatal("event after the oldest expired must pass")
	}
	if rl.Allow(t0.Add(10*time.Second + time.Millisecond)) {
		t.Fatal("window is full again")
	}
	if got := rl.Remaining(t0.Add(time.Minute)); got != 2 {
		t.Fatalf("Remaining after idle = %d, want 2", got)
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	if rl.limit != rateLimitEvents || rl.window != rateLimitWindow {
		t.Fatalf("defaults not applied: limit=%d window=%s", rl.limit, rl.window)
	}
}
