// Package pool tracks plan IDs harvested from submitted runs so later status,
// result and approval requests can draw real identifiers.
package pool

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind separates harvested IDs by what can be done with them.
type Kind string

const (
	// KindPlan holds plans that were accepted for execution.
	KindPlan Kind = "plan"
	// KindParked holds plans waiting for an approval decision.
	KindParked Kind = "plan.parked"
)

// Entry is one harvested plan ID.
type Entry struct {
	PlanID    uuid.UUID
	Agent     string
	AddedAt   time.Time
	ExpiresAt time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now)
}

// Config controls pool capacity and entry lifetime.
type Config struct {
	// MaxPerKind caps entries per kind; the oldest entry is evicted first.
	MaxPerKind int
	// TTL is how long an entry stays drawable. Zero keeps entries forever.
	TTL time.Duration
	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration
}

// Stats is a snapshot of pool activity.
type Stats struct {
	EntriesByKind map[Kind]int
	TotalEntries  int64

	TotalAdds        int64
	TotalGets        int64
	TotalHits        int64
	TotalMisses      int64
	TotalEvictions   int64
	TotalExpirations int64
	HitRate          float64
}

// Pool is a TTL-bounded store of plan IDs keyed by kind.
// Safe for concurrent use.
type Pool struct {
	mu      sync.RWMutex
	entries map[Kind][]Entry
	config  Config
	closed  atomic.Bool

	totalAdds        atomic.Int64
	totalGets        atomic.Int64
	totalHits        atomic.Int64
	totalMisses      atomic.Int64
	totalEvictions   atomic.Int64
	totalExpirations atomic.Int64

	nowMu sync.RWMutex
	now   func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	cleanupDone chan struct{}
}

// New creates a pool and starts its cleanup loop.
func New(cfg Config) *Pool {
	if cfg.MaxPerKind <= 0 {
		cfg.MaxPerKind = 1024
	}
	if cfg.TTL < 0 {
		cfg.TTL = 0
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 30 * time.Second
	}

	p := &Pool{
		entries:     make(map[Kind][]Entry),
		config:      cfg,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		cleanupDone: make(chan struct{}),
	}
	go p.cleanupLoop()
	return p
}

// Add records a plan ID under the given kind.
func (p *Pool) Add(kind Kind, planID uuid.UUID, agent string) {
	if p.closed.Load() {
		return
	}

	now := p.getNow()
	entry := Entry{PlanID: planID, Agent: agent, AddedAt: now}
	if p.config.TTL > 0 {
		entry.ExpiresAt = now.Add(p.config.TTL)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.entries[kind]
	if len(entries) >= p.config.MaxPerKind {
		entries = entries[1:]
		p.totalEvictions.Add(1)
	}
	p.entries[kind] = append(entries, entry)
	p.totalAdds.Add(1)
}

// Random returns a random live entry of the given kind.
func (p *Pool) Random(kind Kind) (Entry, bool) {
	if p.closed.Load() {
		return Entry{}, false
	}
	p.totalGets.Add(1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	idx, ok := p.pickLocked(kind)
	if !ok {
		p.totalMisses.Add(1)
		return Entry{}, false
	}
	p.totalHits.Add(1)
	return p.entries[kind][idx], true
}

// Take returns a random live entry of the given kind and removes it, so each
// entry is handed out at most once.
func (p *Pool) Take(kind Kind) (Entry, bool) {
	if p.closed.Load() {
		return Entry{}, false
	}
	p.totalGets.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pickLocked(kind)
	if !ok {
		p.totalMisses.Add(1)
		return Entry{}, false
	}

	entries := p.entries[kind]
	entry := entries[idx]
	entries[idx] = entries[len(entries)-1]
	p.entries[kind] = entries[:len(entries)-1]

	p.totalHits.Add(1)
	return entry, true
}

// Remove drops a specific plan ID from the given kind, if present.
func (p *Pool) Remove(kind Kind, planID uuid.UUID) {
	if p.closed.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.entries[kind]
	for i := range entries {
		if entries[i].PlanID == planID {
			entries[i] = entries[len(entries)-1]
			p.entries[kind] = entries[:len(entries)-1]
			return
		}
	}
}

// pickLocked selects a random live entry index. Callers hold at least a read lock.
func (p *Pool) pickLocked(kind Kind) (int, bool) {
	entries := p.entries[kind]
	if len(entries) == 0 {
		return 0, false
	}

	now := p.getNow()
	live := make([]int, 0, len(entries))
	for i := range entries {
		if !entries[i].expired(now) {
			live = append(live, i)
		}
	}
	if len(live) == 0 {
		return 0, false
	}

	p.rngMu.Lock()
	idx := live[p.rng.Intn(len(live))]
	p.rngMu.Unlock()
	return idx, true
}

// Size returns the number of live entries of the given kind.
func (p *Pool) Size(kind Kind) int {
	if p.closed.Load() {
		return 0
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.getNow()
	count := 0
	for _, e := range p.entries[kind] {
		if !e.expired(now) {
			count++
		}
	}
	return count
}

// Cleanup drops expired entries.
func (p *Pool) Cleanup() {
	if p.closed.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.getNow()
	var expired int64
	for kind, entries := range p.entries {
		live := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if e.expired(now) {
				expired++
				continue
			}
			live = append(live, e)
		}
		if len(live) == 0 {
			delete(p.entries, kind)
		} else {
			p.entries[kind] = live
		}
	}
	p.totalExpirations.Add(expired)
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() Stats {
	stats := Stats{
		EntriesByKind:    make(map[Kind]int),
		TotalAdds:        p.totalAdds.Load(),
		TotalGets:        p.totalGets.Load(),
		TotalHits:        p.totalHits.Load(),
		TotalMisses:      p.totalMisses.Load(),
		TotalEvictions:   p.totalEvictions.Load(),
		TotalExpirations: p.totalExpirations.Load(),
	}
	if stats.TotalGets > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(stats.TotalGets)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.getNow()
	for kind, entries := range p.entries {
		count := 0
		for _, e := range entries {
			if !e.expired(now) {
				count++
			}
		}
		if count > 0 {
			stats.EntriesByKind[kind] = count
			stats.TotalEntries += int64(count)
		}
	}
	return stats
}

// Close stops the cleanup loop and drops all entries.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.cleanupDone)

	p.mu.Lock()
	p.entries = nil
	p.mu.Unlock()
}

// IsClosed reports whether Close was called.
func (p *Pool) IsClosed() bool {
	return p.closed.Load()
}

func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.cleanupDone:
			return
		case <-ticker.C:
			p.Cleanup()
		}
	}
}

// WithNowFunc overrides the clock. Used by tests.
func (p *Pool) WithNowFunc(fn func() time.Time) *Pool {
	p.nowMu.Lock()
	p.now = fn
	p.nowMu.Unlock()
	return p
}

func (p *Pool) getNow() time.Time {
	p.nowMu.RLock()
	fn := p.now
	p.nowMu.RUnlock()
	return fn()
}
