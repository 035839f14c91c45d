package telemetry_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopops/automator/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openPooledDB(t *testing.T) *sql.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}

func TestNewDBPoolCollector_Validation(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	db := openPooledDB(t)

	c, err := telemetry.NewDBPoolCollector(nil, db, telemetry.DBPoolCollectorConfig{}, zaptest.NewLogger(t))
	assert.Nil(t, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meter cannot be nil")

	c, err = telemetry.NewDBPoolCollector(meter, nil, telemetry.DBPoolCollectorConfig{}, zaptest.NewLogger(t))
	assert.Nil(t, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database handle cannot be nil")
}

func TestDBPoolCollector_Collect(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	db := openPooledDB(t)
	db.SetMaxOpenConns(5)

	c, err := telemetry.NewDBPoolCollector(provider.Meter("test"), db,
		telemetry.DBPoolCollectorConfig{DBName: "audit"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	c.Collect(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	connections := findGauge(t, rm, "automator_db_pool_connections")
	// One point per pool state: idle, in_use, open
	assert.Len(t, connections.DataPoints, 3)

	maxOpen := findGauge(t, rm, "automator_db_pool_connections_max")
	require.Len(t, maxOpen.DataPoints, 1)
	assert.Equal(t, int64(5), maxOpen.DataPoints[0].Value)
}

func TestDBPoolCollector_StartStop(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	db := openPooledDB(t)

	c, err := telemetry.NewDBPoolCollector(meter, db,
		telemetry.DBPoolCollectorConfig{Interval: 10 * time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)

	c.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	// Stop blocks until the sampling goroutine exits and is idempotent
	c.Stop()
	c.Stop()
}

func TestDBPoolCollector_StopWithoutStart(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	db := openPooledDB(t)

	c, err := telemetry.NewDBPoolCollector(meter, db,
		telemetry.DBPoolCollectorConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	c.Stop()
}

func findGauge(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Gauge[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok, "metric %s is not an int64 gauge", name)
			return gauge
		}
	}
	t.Fatalf("metric %s not found", name)
	return metricdata.Gauge[int64]{}
}
