package work

import (
	"context"
	"sync/atomic"
	"time"
)

// Metrics is the consumption footprint of one run
type Metrics struct {
	// Duration is wall clock time from plan start to result
	Duration time.Duration `json:"duration"`
	// APICalls counts every external call, reads and writes alike,
	// including retries
	APICalls int64 `json:"api_calls"`
	// ResourcesUsed counts domain units consumed: items mutated,
	// messages sent, orders placed
	ResourcesUsed int64 `json:"resources_used"`
	// DataProcessed counts work items examined
	DataProcessed int64 `json:"data_processed"`
}

// Collector accumulates metrics for one run. It is safe for concurrent use
// by the worker pool and by gateway instrumentation. All methods tolerate a
// nil receiver so code paths without a collector need no guards.
type Collector struct {
	start     time.Time
	apiCalls  atomic.Int64
	resources atomic.Int64
	processed atomic.Int64
}

// NewCollector starts a collector; Duration is measured from this call
func NewCollector() *Collector {
	return &Collector{start: time.Now()}
}

// APICall records one external call
func (c *Collector) APICall() {
	if c == nil {
		return
	}
	c.apiCalls.Add(1)
}

// UseResources records n consumed domain units
func (c *Collector) UseResources(n int64) {
	if c == nil {
		return
	}
	c.resources.Add(n)
}

// Process records n examined work items
func (c *Collector) Process(n int64) {
	if c == nil {
		return
	}
	c.processed.Add(n)
}

// Snapshot returns the metrics accumulated so far
func (c *Collector) Snapshot() Metrics {
	if c == nil {
		return Metrics{}
	}
	return Metrics{
		Duration:      time.Since(c.start),
		APICalls:      c.apiCalls.Load(),
		ResourcesUsed: c.resources.Load(),
		DataProcessed: c.processed.Load(),
	}
}

type collectorKey struct{}

// WithCollector attaches a collector to the context. Gateway
// instrumentation reads it back to attribute API calls to the current run.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// CollectorFrom returns the collector attached to ctx, or nil when absent
func CollectorFrom(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}
