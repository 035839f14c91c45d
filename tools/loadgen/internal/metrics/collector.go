// Package metrics collects and reports load run statistics.
package metrics

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultMaxLatencies   = 100000
	operationMaxLatencies = 10000
)

// Result is the outcome of a single request against the automation API.
type Result struct {
	// Operation is the logical call: submit, status, result, approve or apply.
	Operation string
	// Agent is the agent type a submit targeted, empty for other operations.
	Agent      string
	StatusCode int
	Latency    time.Duration
	Success    bool
	Bytes      int64
	Err        error
}

// Collector aggregates request results. Latency samples use a sliding window
// that keeps the most recent half when full, so percentiles track current
// behaviour rather than the whole run. Safe for concurrent use.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	endTime   time.Time

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	latencyMu    sync.RWMutex
	latencies    []int64
	maxLatencies int

	opsMu sync.RWMutex
	ops   map[string]*operationStats

	codesMu sync.RWMutex
	codes   map[int]int64
}

type operationStats struct {
	mu sync.RWMutex

	name           string
	totalRequests  int64
	successCount   int64
	failedCount    int64
	totalLatencyNs int64
	minLatency     time.Duration
	maxLatency     time.Duration
	totalBytes     int64
	latencies      []int64
}

// Snapshot is a point-in-time view of the collected metrics.
type Snapshot struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalBytes      int64

	MinLatency time.Duration
	AvgLatency time.Duration
	P50Latency time.Duration
	P95Latency time.Duration
	P99Latency time.Duration
	MaxLatency time.Duration

	// SuccessRate is a percentage in [0, 100].
	SuccessRate float64
	QPS         float64

	StatusCodes map[int]int64
	Operations  map[string]*OperationSnapshot
}

// OperationSnapshot is the per-operation slice of a Snapshot.
type OperationSnapshot struct {
	Name            string
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalBytes      int64
	MinLatency      time.Duration
	AvgLatency      time.Duration
	P50Latency      time.Duration
	P95Latency      time.Duration
	P99Latency      time.Duration
	MaxLatency      time.Duration
	SuccessRate     float64
	QPS             float64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		latencies:    make([]int64, 0, defaultMaxLatencies),
		maxLatencies: defaultMaxLatencies,
		ops:          make(map[string]*operationStats),
		codes:        make(map[int]int64),
	}
}

// Start marks the beginning of the run.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
}

// Stop marks the end of the run.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record adds one request result.
func (c *Collector) Record(result Result) {
	c.totalRequests.Add(1)
	if result.Success {
		c.successRequests.Add(1)
	} else {
		c.failedRequests.Add(1)
	}
	c.totalBytes.Add(result.Bytes)

	c.recordLatency(result.Latency.Nanoseconds())

	if result.StatusCode > 0 {
		c.codesMu.Lock()
		c.codes[result.StatusCode]++
		c.codesMu.Unlock()
	}

	if result.Operation != "" {
		c.recordOperation(result)
	}
}

func (c *Collector) recordLatency(latencyNs int64) {
	c.latencyMu.Lock()
	defer c.latencyMu.Unlock()

	if len(c.latencies) >= c.maxLatencies {
		half := c.maxLatencies / 2
		c.latencies = c.latencies[len(c.latencies)-half:]
	}
	c.latencies = append(c.latencies, latencyNs)
}

func (c *Collector) recordOperation(result Result) {
	c.opsMu.Lock()
	stats, ok := c.ops[result.Operation]
	if !ok {
		stats = &operationStats{
			name:      result.Operation,
			latencies: make([]int64, 0, operationMaxLatencies),
		}
		c.ops[result.Operation] = stats
	}
	c.opsMu.Unlock()

	stats.mu.Lock()
	defer stats.mu.Unlock()

	stats.totalRequests++
	if result.Success {
		stats.successCount++
	} else {
		stats.failedCount++
	}
	stats.totalLatencyNs += result.Latency.Nanoseconds()
	stats.totalBytes += result.Bytes

	if stats.minLatency == 0 || result.Latency < stats.minLatency {
		stats.minLatency = result.Latency
	}
	if result.Latency > stats.maxLatency {
		stats.maxLatency = result.Latency
	}

	if len(stats.latencies) >= operationMaxLatencies {
		half := operationMaxLatencies / 2
		stats.latencies = stats.latencies[len(stats.latencies)-half:]
	}
	stats.latencies = append(stats.latencies, result.Latency.Nanoseconds())
}

// Snapshot returns a point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	startTime := c.startTime
	endTime := c.endTime
	c.mu.RUnlock()

	var duration time.Duration
	if !startTime.IsZero() {
		if endTime.IsZero() {
			duration = time.Since(startTime)
		} else {
			duration = endTime.Sub(startTime)
		}
	}

	total := c.totalRequests.Load()
	success := c.successRequests.Load()

	minLat, avgLat, p50, p95, p99, maxLat := c.latencyStats()

	var successRate float64
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}
	var qps float64
	if duration > 0 {
		qps = float64(total) / duration.Seconds()
	}

	return Snapshot{
		StartTime:       startTime,
		EndTime:         endTime,
		Duration:        duration,
		TotalRequests:   total,
		SuccessRequests: success,
		FailedRequests:  c.failedRequests.Load(),
		TotalBytes:      c.totalBytes.Load(),
		MinLatency:      minLat,
		AvgLatency:      avgLat,
		P50Latency:      p50,
		P95Latency:      p95,
		P99Latency:      p99,
		MaxLatency:      maxLat,
		SuccessRate:     successRate,
		QPS:             qps,
		StatusCodes:     c.copyStatusCodes(),
		Operations:      c.copyOperations(duration),
	}
}

func (c *Collector) latencyStats() (min, avg, p50, p95, p99, max time.Duration) {
	c.latencyMu.RLock()
	samples := make([]int64, len(c.latencies))
	copy(samples, c.latencies)
	c.latencyMu.RUnlock()

	if len(samples) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	slices.Sort(samples)

	var sum int64
	for _, s := range samples {
		sum += s
	}

	n := len(samples)
	min = time.Duration(samples[0])
	max = time.Duration(samples[n-1])
	avg = time.Duration(sum / int64(n))
	p50 = time.Duration(samples[percentileIndex(n, 0.50)])
	p95 = time.Duration(samples[percentileIndex(n, 0.95)])
	p99 = time.Duration(samples[percentileIndex(n, 0.99)])
	return min, avg, p50, p95, p99, max
}

func percentileIndex(n int, percentile float64) int {
	idx := int(float64(n) * percentile)
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func (c *Collector) copyStatusCodes() map[int]int64 {
	c.codesMu.RLock()
	defer c.codesMu.RUnlock()

	result := make(map[int]int64, len(c.codes))
	maps.Copy(result, c.codes)
	return result
}

func (c *Collector) copyOperations(duration time.Duration) map[string]*OperationSnapshot {
	c.opsMu.RLock()
	defer c.opsMu.RUnlock()

	result := make(map[string]*OperationSnapshot, len(c.ops))
	for name, stats := range c.ops {
		result[name] = stats.snapshot(duration)
	}
	return result
}

func (s *operationStats) snapshot(duration time.Duration) *OperationSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &OperationSnapshot{
		Name:            s.name,
		TotalRequests:   s.totalRequests,
		SuccessRequests: s.successCount,
		FailedRequests:  s.failedCount,
		TotalBytes:      s.totalBytes,
		MinLatency:      s.minLatency,
		MaxLatency:      s.maxLatency,
	}
	if s.totalRequests > 0 {
		snap.AvgLatency = time.Duration(s.totalLatencyNs / s.totalRequests)
		snap.SuccessRate = float64(s.successCount) / float64(s.totalRequests) * 100
	}
	if duration > 0 {
		snap.QPS = float64(s.totalRequests) / duration.Seconds()
	}
	if len(s.latencies) > 0 {
		samples := make([]int64, len(s.latencies))
		copy(samples, s.latencies)
		slices.Sort(samples)

		n := len(samples)
		snap.P50Latency = time.Duration(samples[percentileIndex(n, 0.50)])
		snap.P95Latency = time.Duration(samples[percentileIndex(n, 0.95)])
		snap.P99Latency = time.Duration(samples[percentileIndex(n, 0.99)])
	}
	return snap
}

// TotalRequests returns the number of recorded results so far.
func (c *Collector) TotalRequests() int64 {
	return c.totalRequests.Load()
}

// SuccessRate returns the success percentage in [0, 100].
func (c *Collector) SuccessRate() float64 {
	total := c.totalRequests.Load()
	if total == 0 {
		return 0
	}
	return float64(c.successRequests.Load()) / float64(total) * 100
}

// CurrentQPS returns the average request rate since Start.
func (c *Collector) CurrentQPS() float64 {
	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	if startTime.IsZero() {
		return 0
	}
	elapsed := time.Since(startTime)
	if elapsed <= 0 {
		return 0
	}
	return float64(c.totalRequests.Load()) / elapsed.Seconds()
}

// Elapsed returns the time since Start, or the full run length after Stop.
func (c *Collector) Elapsed() time.Duration {
	c.mu.RLock()
	startTime := c.startTime
	endTime := c.endTime
	c.mu.RUnlock()

	if startTime.IsZero() {
		return 0
	}
	if endTime.IsZero() {
		return time.Since(startTime)
	}
	return endTime.Sub(startTime)
}
