// Package cache provides the applied-plan ledger backends. The ledger is
// what makes Apply single-flight: a plan ID that was marked once is never
// applied again while the mark lives.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shopops/automator/internal/domain/shared"
)

type ledgerEntry struct {
	expiresAt time.Time
}

// InMemoryLedger keeps consumed plan IDs in a map. Suitable for a single
// automator instance and for tests; marks are lost on restart.
type InMemoryLedger struct {
	mu        sync.RWMutex
	entries   map[string]ledgerEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryLedger creates the ledger and starts its expiry sweeper
func NewInMemoryLedger() *InMemoryLedger {
	s := &InMemoryLedger{
		entries:  make(map[string]ledgerEntry),
		stopChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

// MarkProcessed consumes key for ttl. It returns true when this call was
// the first, false when the key is already held.
func (s *InMemoryLedger) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && time.Now().Before(e.expiresAt) {
		return false, nil
	}
	s.entries[key] = ledgerEntry{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// IsProcessed reports whether key is currently held
func (s *InMemoryLedger) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return false, nil
	}
	return true, nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *InMemoryLedger) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryLedger) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryLedger) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Size returns the number of live marks, expired ones included until the
// next sweep
func (s *InMemoryLedger) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ shared.IdempotencyStore = (*InMemoryLedger)(nil)
