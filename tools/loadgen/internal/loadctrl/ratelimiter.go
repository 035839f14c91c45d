// Package loadctrl provides the rate limiter and worker pool that shape
// generated traffic.
package loadctrl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces request submission using a token bucket backed by
// golang.org/x/time/rate. Safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
	qps     float64
	burst   int

	totalAcquired atomic.Int64
	totalRejected atomic.Int64
	totalWait     atomic.Int64
	waitCount     atomic.Int64
}

// LimiterStats is a snapshot of limiter activity.
type LimiterStats struct {
	TotalAcquired int64
	TotalRejected int64
	CurrentQPS    float64
	AvgWait       time.Duration
}

// NewLimiter creates a token bucket limiter. A burst of zero defaults to
// max(1, int(qps)).
func NewLimiter(qps float64, burst int) *Limiter {
	if qps <= 0 {
		qps = 1
	}
	if burst <= 0 {
		burst = max(1, int(qps))
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
		qps:     qps,
		burst:   burst,
	}
}

// Acquire blocks until a request slot is available or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	l.totalAcquired.Add(1)
	l.totalWait.Add(int64(time.Since(start)))
	l.waitCount.Add(1)
	return nil
}

// TryAcquire takes a slot without blocking.
func (l *Limiter) TryAcquire() bool {
	if l.limiter.Allow() {
		l.totalAcquired.Add(1)
		return true
	}
	l.totalRejected.Add(1)
	return false
}

// SetRate adjusts the rate limit. The new rate takes effect immediately.
func (l *Limiter) SetRate(qps float64) {
	if qps <= 0 {
		qps = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.qps = qps
	l.limiter.SetLimit(rate.Limit(qps))
}

// CurrentRate returns the configured QPS.
func (l *Limiter) CurrentRate() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.qps
}

// Burst returns the configured burst size.
func (l *Limiter) Burst() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.burst
}

// Stats returns a snapshot of limiter activity.
func (l *Limiter) Stats() LimiterStats {
	var avgWait time.Duration
	if n := l.waitCount.Load(); n > 0 {
		avgWait = time.Duration(l.totalWait.Load() / n)
	}
	return LimiterStats{
		TotalAcquired: l.totalAcquired.Load(),
		TotalRejected: l.totalRejected.Load(),
		CurrentQPS:    l.CurrentRate(),
		AvgWait:       avgWait,
	}
}
