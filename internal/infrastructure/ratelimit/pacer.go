// Package ratelimit paces outbound provider calls so the automator stays
// inside third-party API quotas.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds pacing intervals. PerProvider overrides the default for
// named providers.
type Config struct {
	// DefaultInterval is the minimum gap between two calls to the same
	// provider; zero disables pacing for providers without an override.
	DefaultInterval time.Duration
	// PerProvider maps a provider name to its own interval.
	PerProvider map[string]time.Duration
}

// Pacer spaces calls per provider using a token bucket with burst 1, so
// consecutive calls to one provider are at least the configured interval
// apart. Distinct providers never wait on each other.
//
// Safe for concurrent use.
type Pacer struct {
	cfg Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPacer creates a pacer from cfg.
func NewPacer(cfg Config) *Pacer {
	return &Pacer{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the provider's next slot is available or ctx is done.
func (p *Pacer) Wait(ctx context.Context, provider string) error {
	l := p.limiter(provider)
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}

// SetInterval adjusts a provider's pacing at runtime. A non-positive
// interval removes the limit for that provider.
func (p *Pacer) SetInterval(provider string, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if interval <= 0 {
		delete(p.limiters, provider)
		if p.cfg.PerProvider == nil {
			p.cfg.PerProvider = make(map[string]time.Duration)
		}
		p.cfg.PerProvider[provider] = 0
		return
	}
	if p.cfg.PerProvider == nil {
		p.cfg.PerProvider = make(map[string]time.Duration)
	}
	p.cfg.PerProvider[provider] = interval
	if l, ok := p.limiters[provider]; ok {
		l.SetLimit(rate.Every(interval))
	}
}

// Interval reports the effective pacing interval for a provider.
func (p *Pacer) Interval(provider string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intervalLocked(provider)
}

func (p *Pacer) intervalLocked(provider string) time.Duration {
	if iv, ok := p.cfg.PerProvider[provider]; ok {
		return iv
	}
	return p.cfg.DefaultInterval
}

// limiter lazily creates the provider's bucket; nil means unpaced.
func (p *Pacer) limiter(provider string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[provider]; ok {
		return l
	}
	iv := p.intervalLocked(provider)
	if iv <= 0 {
		return nil
	}
	l := rate.NewLimiter(rate.Every(iv), 1)
	p.limiters[provider] = l
	return l
}
