package telemetry_test

import (
	"testing"

	"github.com/shopops/automator/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewProfiler_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := telemetry.ProfilerConfig{
		Enabled:         false,
		ApplicationName: "test-service",
	}

	p, err := telemetry.NewProfiler(cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.False(t, p.IsEnabled())
	assert.Equal(t, "test-service", p.GetConfig().ApplicationName)

	// Stop on a disabled profiler is a no-op, repeatable
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_MissingServerAddress(t *testing.T) {
	cfg := telemetry.ProfilerConfig{
		Enabled:    true,
		ProfileCPU: true,
	}

	p, err := telemetry.NewProfiler(cfg, zaptest.NewLogger(t))
	assert.Nil(t, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server address is required")
}

func TestNewProfiler_NoProfileTypes(t *testing.T) {
	cfg := telemetry.ProfilerConfig{
		Enabled:       true,
		ServerAddress: "http://localhost:4040",
	}

	p, err := telemetry.NewProfiler(cfg, zaptest.NewLogger(t))
	assert.Nil(t, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one profile type")
}

func TestNewProfiler_Enabled(t *testing.T) {
	// Starts a real profiling session; uploads need a Pyroscope server
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := telemetry.DefaultProfilerConfig()
	cfg.Enabled = true
	cfg.ServerAddress = "http://localhost:4040"
	cfg.ApplicationName = "test-service"

	p, err := telemetry.NewProfiler(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, p.IsEnabled())

	assert.NoError(t, p.Stop())
}

func TestDefaultProfilerConfig(t *testing.T) {
	cfg := telemetry.DefaultProfilerConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "automator", cfg.ApplicationName)
	assert.True(t, cfg.ProfileCPU)
	assert.True(t, cfg.ProfileInuseSpace)
	assert.True(t, cfg.ProfileGoroutines)
	assert.False(t, cfg.ProfileMutex)
	assert.False(t, cfg.ProfileBlock)
	assert.Equal(t, 5, cfg.MutexProfileFraction)
	assert.Equal(t, 5, cfg.BlockProfileRate)
}

func TestProfiler_StopNil(t *testing.T) {
	var p *telemetry.Profiler
	assert.NoError(t, p.Stop())
	assert.False(t, p.IsEnabled())
}
