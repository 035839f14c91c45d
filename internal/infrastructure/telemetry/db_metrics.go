package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DBPoolCollectorConfig holds the connection pool collector settings.
type DBPoolCollectorConfig struct {
	Interval time.Duration
	DBName   string
}

// DBPoolCollector periodically samples the sql.DB connection pool and
// records it as gauges. Query-level spans and timings come from the
// otelgorm plugin; this collector only covers pool saturation.
type DBPoolCollector struct {
	db     *sql.DB
	logger *zap.Logger
	config DBPoolCollectorConfig

	connections *Gauge
	maxOpen     *Gauge

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewDBPoolCollector creates a collector over the given database handle.
func NewDBPoolCollector(meter metric.Meter, db *sql.DB, cfg DBPoolCollectorConfig, logger *zap.Logger) (*DBPoolCollector, error) {
	if meter == nil {
		return nil, fmt.Errorf("meter cannot be nil")
	}
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.DBName == "" {
		cfg.DBName = "automator"
	}

	connections, err := NewGauge(meter,
		"automator_db_pool_connections",
		"Database connections by pool state",
		"{connections}",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool connections gauge: %w", err)
	}
	maxOpen, err := NewGauge(meter,
		"automator_db_pool_connections_max",
		"Configured maximum open database connections",
		"{connections}",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool max gauge: %w", err)
	}

	return &DBPoolCollector{
		db:          db,
		logger:      logger,
		config:      cfg,
		connections: connections,
		maxOpen:     maxOpen,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins periodic collection. It returns immediately; sampling runs
// until Stop is called or the context is cancelled.
func (c *DBPoolCollector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		defer close(c.doneCh)

		ticker := time.NewTicker(c.config.Interval)
		defer ticker.Stop()

		c.Collect(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Collect(ctx)
			}
		}
	}()

	c.logger.Debug("database pool metrics collection started",
		zap.Duration("interval", c.config.Interval),
		zap.String("db_name", c.config.DBName),
	)
}

// Collect records a single sample of the pool state.
func (c *DBPoolCollector) Collect(ctx context.Context) {
	stats := c.db.Stats()
	dbAttr := attribute.String("db.name", c.config.DBName)

	c.connections.Record(ctx, int64(stats.Idle), dbAttr, AttrDBState.String("idle"))
	c.connections.Record(ctx, int64(stats.InUse), dbAttr, AttrDBState.String("in_use"))
	c.connections.Record(ctx, int64(stats.OpenConnections), dbAttr, AttrDBState.String("open"))
	c.maxOpen.Record(ctx, int64(stats.MaxOpenConnections), dbAttr)
}

// Stop halts collection and waits for the sampling goroutine to exit.
// Stopping a collector that was never started is a no-op.
func (c *DBPoolCollector) Stop() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	if started {
		<-c.doneCh
	}
}
