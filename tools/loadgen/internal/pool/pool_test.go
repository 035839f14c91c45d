package pool

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	assert.Equal(t, 1024, p.config.MaxPerKind)
	assert.Equal(t, time.Duration(0), p.config.TTL)
	assert.Equal(t, 30*time.Second, p.config.CleanupInterval)
}

func TestAddAndRandom(t *testing.T) {
	t.Run("single entry", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()

		id := uuid.New()
		p.Add(KindPlan, id, "orders")

		entry, ok := p.Random(KindPlan)
		require.True(t, ok)
		assert.Equal(t, id, entry.PlanID)
		assert.Equal(t, "orders", entry.Agent)
	})

	t.Run("empty kind misses", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()

		_, ok := p.Random(KindParked)
		assert.False(t, ok)

		stats := p.Stats()
		assert.Equal(t, int64(1), stats.TotalMisses)
	})

	t.Run("random does not remove", func(t *testing.T) {
		p := New(Config{})
		defer p.Close()

		p.Add(KindPlan, uuid.New(), "orders")
		p.Random(KindPlan)
		p.Random(KindPlan)
		assert.Equal(t, 1, p.Size(KindPlan))
	})
}

func TestTakeRemovesEntry(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	id := uuid.New()
	p.Add(KindParked, id, "sourcing")

	entry, ok := p.Take(KindParked)
	require.True(t, ok)
	assert.Equal(t, id, entry.PlanID)
	assert.Equal(t, 0, p.Size(KindParked))

	_, ok = p.Take(KindParked)
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	gone := uuid.New()
	kept := uuid.New()
	p.Add(KindPlan, gone, "orders")
	p.Add(KindPlan, kept, "orders")

	p.Remove(KindPlan, gone)
	assert.Equal(t, 1, p.Size(KindPlan))

	entry, ok := p.Random(KindPlan)
	require.True(t, ok)
	assert.Equal(t, kept, entry.PlanID)

	// Unknown IDs and kinds are a no-op.
	p.Remove(KindPlan, uuid.New())
	p.Remove(KindParked, kept)
	assert.Equal(t, 1, p.Size(KindPlan))
}

func TestKindsAreIsolated(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	p.Add(KindPlan, uuid.New(), "orders")
	p.Add(KindParked, uuid.New(), "sourcing")

	assert.Equal(t, 1, p.Size(KindPlan))
	assert.Equal(t, 1, p.Size(KindParked))

	_, ok := p.Take(KindParked)
	require.True(t, ok)
	assert.Equal(t, 1, p.Size(KindPlan))
	assert.Equal(t, 0, p.Size(KindParked))
}

func TestEvictionIsFIFO(t *testing.T) {
	p := New(Config{MaxPerKind: 2})
	defer p.Close()

	first := uuid.New()
	p.Add(KindPlan, first, "orders")
	p.Add(KindPlan, uuid.New(), "orders")
	p.Add(KindPlan, uuid.New(), "orders")

	assert.Equal(t, 2, p.Size(KindPlan))
	assert.Equal(t, int64(1), p.Stats().TotalEvictions)

	// The oldest entry is gone.
	for i := 0; i < 20; i++ {
		entry, ok := p.Random(KindPlan)
		require.True(t, ok)
		assert.NotEqual(t, first, entry.PlanID)
	}
}

func TestTTLExpiry(t *testing.T) {
	p := New(Config{TTL: time.Minute, CleanupInterval: time.Hour})
	defer p.Close()

	now := time.Now()
	p.WithNowFunc(func() time.Time { return now })

	p.Add(KindPlan, uuid.New(), "orders")
	assert.Equal(t, 1, p.Size(KindPlan))

	p.WithNowFunc(func() time.Time { return now.Add(2 * time.Minute) })

	_, ok := p.Random(KindPlan)
	assert.False(t, ok)
	assert.Equal(t, 0, p.Size(KindPlan))

	p.Cleanup()
	assert.Equal(t, int64(1), p.Stats().TotalExpirations)
}

func TestStats(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	p.Add(KindPlan, uuid.New(), "orders")
	p.Add(KindParked, uuid.New(), "sourcing")

	_, ok := p.Random(KindPlan)
	require.True(t, ok)
	_, ok = p.Random(Kind("missing"))
	require.False(t, ok)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.TotalAdds)
	assert.Equal(t, int64(2), stats.TotalGets)
	assert.Equal(t, int64(1), stats.TotalHits)
	assert.Equal(t, int64(1), stats.TotalMisses)
	assert.Equal(t, 0.5, stats.HitRate)
	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, 1, stats.EntriesByKind[KindPlan])
	assert.Equal(t, 1, stats.EntriesByKind[KindParked])
}

func TestClosedPool(t *testing.T) {
	p := New(Config{})
	p.Close()
	p.Close()

	assert.True(t, p.IsClosed())

	p.Add(KindPlan, uuid.New(), "orders")
	assert.Equal(t, 0, p.Size(KindPlan))

	_, ok := p.Random(KindPlan)
	assert.False(t, ok)
	_, ok = p.Take(KindPlan)
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	p := New(Config{MaxPerKind: 100})
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.Add(KindPlan, uuid.New(), fmt.Sprintf("agent-%d", n))
				p.Random(KindPlan)
				if j%10 == 0 {
					p.Take(KindPlan)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Greater(t, p.Stats().TotalAdds, int64(0))
}
