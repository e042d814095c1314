package safety

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestProperty_RateLimiterAllowsExactlyMaxPerWindow checks the
// sliding-window invariant for arbitrary (max, burst) combinations over a
// one-minute window: the first max arrivals at the same instant succeed,
// every one after that is rejected.
func TestProperty_RateLimiterAllowsExactlyMaxPerWindow(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		max := rapid.IntRange(1, 30).Draw(rt, "max")
		burst := rapid.IntRange(0, 60).Draw(rt, "burst")

		rl := NewRateLimiter(time.Minute, max)
		now := time.Now()

		allowed := 0
		for i := 0; i < burst; i++ {
			if rl.Allow("PT-1", now) {
				allowed++
			}
		}

		want := burst
		if want > max {
			want = max
		}
		if allowed != want {
			rt.Fatalf("allowed %d arrivals out of %d with max=%d, want %d", allowed, burst, max, want)
		}
	})
}

// TestProperty_RateLimiterForgetsArrivalsOutsideWindow checks that once the
// window has fully elapsed, the limiter treats the patient as fresh.
func TestProperty_RateLimiterForgetsArrivalsOutsideWindow(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		max := rapid.IntRange(1, 10).Draw(rt, "max")
		window := time.Duration(rapid.IntRange(1, 120).Draw(rt, "window_seconds")) * time.Second

		rl := NewRateLimiter(window, max)
		now := time.Now()

		for i := 0; i < max; i++ {
			if !rl.Allow("PT-1", now) {
				rt.Fatalf("arrival %d within the initial burst was unexpectedly rejected", i)
			}
		}
		if rl.Allow("PT-1", now) {
			rt.Fatalf("arrival past max within the same instant was unexpectedly allowed")
		}

		later := now.Add(window + time.Millisecond)
		if !rl.Allow("PT-1", later) {
			rt.Fatalf("arrival after the window fully elapsed was unexpectedly rejected")
		}
	})
}
