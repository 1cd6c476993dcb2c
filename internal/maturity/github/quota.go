package github

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/go-github/v75/github"
	"golang.org/x/time/rate"
)

// NewGitHubLimiter returns a rate limiter tuned for authenticated or unauthenticated GitHub API usage.
func NewGitHubLimiter(authenticated bool) *rate.Limiter {
	if authenticated {
		slog.Debug("Created authenticated GitHub rate limiter", "rate", "10 requests/second", "burst", 20)
		return rate.NewLimiter(rate.Limit(10), 20)
	}
	slog.Warn("Created unauthenticated GitHub rate limiter", "rate", "60 requests/hour", "burst", 1)
	return rate.NewLimiter(rate.Every(time.Minute), 1)
}

// DefaultLowWater is the remaining quota below which requests are paced to last until the reset.
const DefaultLowWater = 500

// Quota is the process-wide view of the GitHub core rate limit. Every worker
// reads and updates the same instance.
type Quota struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	base      rate.Limit
	lowWater  int
	observed  bool
	limit     int
	remaining int
	reset     time.Time
}

// NewQuota wraps limiter. Pacing starts when the remaining quota drops below lowWater.
func NewQuota(limiter *rate.Limiter, lowWater int) *Quota {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Quota{limiter: limiter, base: limiter.Limit(), lowWater: lowWater}
}

// Observe records the rate limit reported by a response. A newer reset window
// replaces the stored one; within the same window the lowest remaining value wins.
func (q *Quota) Observe(r github.Rate) {
	if r.Limit == 0 || r.Reset.IsZero() {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	reset := r.Reset.Time
	switch {
	case !q.observed || reset.After(q.reset):
		q.observed = true
		q.limit = r.Limit
		q.remaining = r.Remaining
		q.reset = reset
	case reset.Equal(q.reset):
		q.remaining = min(q.remaining, r.Remaining)
	default:
		return
	}
	q.pace()
}

// pace lowers the limiter rate so the remaining quota lasts until the reset. Callers hold mu.
func (q *Quota) pace() {
	until := time.Until(q.reset)
	if q.remaining >= q.lowWater || q.remaining <= 0 || until <= 0 {
		q.limiter.SetLimit(q.base)
		return
	}
	paced := rate.Limit(float64(q.remaining) / until.Seconds())
	if paced < q.base {
		q.limiter.SetLimit(paced)
	}
}

// Wait blocks until the limiter admits one request.
func (q *Quota) Wait(ctx context.Context) error {
	return q.limiter.Wait(ctx)
}

// Exhausted returns the reset time when no request is left in the current window.
func (q *Quota) Exhausted() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.observed || q.remaining > 0 || !time.Now().Before(q.reset) {
		return time.Time{}, false
	}
	return q.reset, true
}

// Remaining returns the last observed remaining quota and whether anything was observed.
func (q *Quota) Remaining() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remaining, q.observed
}

// ResetAt returns the reset time of the current window.
func (q *Quota) ResetAt() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reset
}

// Concurrency returns how many repositories may be collected at once given the
// remaining quota: remaining/callsPerRepository clamped to [1, workers].
func (q *Quota) Concurrency(callsPerRepository, workers int) int {
	workers = max(1, workers)
	remaining, ok := q.Remaining()
	if !ok || callsPerRepository <= 0 {
		return workers
	}
	if until := time.Until(q.ResetAt()); until <= 0 {
		return workers
	}
	return min(workers, max(1, remaining/callsPerRepository))
}
