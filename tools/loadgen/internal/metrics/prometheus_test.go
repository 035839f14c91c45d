package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterDefaults(t *testing.T) {
	e := NewExporter(ExporterConfig{})
	assert.Equal(t, ":9090", e.config.Addr)
	assert.Equal(t, "/metrics", e.config.Path)
	assert.NotEmpty(t, e.config.Buckets)
}

func TestExporterRecordRequest(t *testing.T) {
	e := NewExporter(ExporterConfig{})

	e.RecordRequest(Result{Operation: "submit", StatusCode: 200, Latency: 25 * time.Millisecond, Success: true, Bytes: 1024})
	e.RecordRequest(Result{Operation: "submit", StatusCode: 200, Latency: 30 * time.Millisecond, Success: true, Bytes: 512})
	e.RecordRequest(Result{Operation: "status", StatusCode: 404, Latency: 5 * time.Millisecond, Success: false, Bytes: 64})

	assert.Equal(t, 2.0, testutil.ToFloat64(e.requestsTotal.WithLabelValues("submit", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.requestsTotal.WithLabelValues("status", "404")))
	assert.Equal(t, 1600.0, testutil.ToFloat64(e.bytesTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(e.requestDuration))
}

func TestExporterGauges(t *testing.T) {
	e := NewExporter(ExporterConfig{})

	e.UpdateTargetQPS(25)
	e.UpdateActiveWorkers(4)
	e.UpdatePoolSize(17)
	e.UpdateFromSnapshot(Snapshot{QPS: 12.5, SuccessRate: 99.0})

	assert.Equal(t, 25.0, testutil.ToFloat64(e.targetQPS))
	assert.Equal(t, 4.0, testutil.ToFloat64(e.activeWorkers))
	assert.Equal(t, 17.0, testutil.ToFloat64(e.poolSize))
	assert.Equal(t, 12.5, testutil.ToFloat64(e.currentQPS))
	assert.Equal(t, 99.0, testutil.ToFloat64(e.successRate))
}

func TestExporterServesScrapeEndpoint(t *testing.T) {
	e := NewExporter(ExporterConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, e.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, e.Stop(ctx))
	}()

	assert.True(t, e.IsRunning())
	e.RecordRequest(Result{Operation: "submit", StatusCode: 200, Latency: 10 * time.Millisecond, Success: true})

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", e.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), MetricRequestsTotal)
	assert.Contains(t, string(body), MetricRequestDurationSeconds)

	health, err := http.Get(fmt.Sprintf("http://%s/health", e.Addr()))
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestExporterStopIdempotent(t *testing.T) {
	e := NewExporter(ExporterConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, e.Start())
	require.NoError(t, e.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	require.NoError(t, e.Stop(ctx))
	assert.False(t, e.IsRunning())
	assert.NoError(t, e.LastError())
}
