package revadops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, max int, window time.Duration) (*RateLimiter, *time.Time) {
	t.Helper()
	l := NewRateLimiter(max, window)
	t.Cleanup(l.Stop)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestRateLimiterBlocksAfterMax(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)
	ip := "203.0.113.10"

	assert.True(t, limiter.Allow(ip), "first attempt")
	assert.True(t, limiter.Allow(ip), "second attempt")
	assert.False(t, limiter.Allow(ip), "third attempt must be blocked")
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	limiter, now := newTestLimiter(t, 1, time.Minute)
	ip := "203.0.113.20"

	assert.True(t, limiter.Allow(ip))
	assert.False(t, limiter.Allow(ip))

	*now = now.Add(61 * time.Second)
	assert.True(t, limiter.Allow(ip), "attempt after window")
}

func TestRateLimiterIsPerKey(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)

	assert.True(t, limiter.Allow("203.0.113.30"))
	assert.True(t, limiter.Allow("203.0.113.31"), "second key is independent")
	assert.False(t, limiter.Allow("203.0.113.30"))
}

func TestRateLimiterCheckDoesNotRecord(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ip := "203.0.113.40"

	assert.True(t, limiter.Check(ip))
	assert.True(t, limiter.Check(ip))
	limiter.Record(ip)
	assert.False(t, limiter.Check(ip))
}

func TestRateLimiterSweepDropsExpiredKeys(t *testing.T) {
	limiter, now := newTestLimiter(t, 3, time.Minute)
	limiter.Record("a")
	*now = now.Add(2 * time.Minute)
	limiter.Record("b")

	limiter.sweep()
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.attempts, "a")
	assert.Contains(t, limiter.attempts, "b")
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	limiter := NewRateLimiter(1, time.Millisecond)
	limiter.Stop()
	limiter.Stop()
}
