package telemetry_test

import (
	"context"
	"testing"

	"github.com/shopops/automator/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerProvider_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	cfg := telemetry.LogsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:4317",
		ServiceName:       "test-service",
	}

	lp, err := telemetry.NewLoggerProvider(ctx, cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, lp)

	assert.False(t, lp.IsEnabled())

	gotCfg := lp.GetConfig()
	assert.Equal(t, cfg.ServiceName, gotCfg.ServiceName)
	assert.False(t, gotCfg.Enabled)

	assert.NoError(t, lp.ForceFlush(ctx))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestNewLoggerProvider_Enabled(t *testing.T) {
	// Export verification needs a live collector endpoint
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	cfg := telemetry.LogsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:4317",
		ServiceName:       "test-service",
		Insecure:          true,
	}

	lp, err := telemetry.NewLoggerProvider(ctx, cfg, logger)
	require.NoError(t, err)
	assert.True(t, lp.IsEnabled())

	// A bridge core built over an enabled provider filters below its level
	core := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
		ServiceName:    "test-service",
		LoggerProvider: lp,
		Level:          zapcore.InfoLevel,
	})
	require.NotNil(t, core)
	assert.False(t, core.Enabled(zapcore.DebugLevel))

	assert.NoError(t, lp.Shutdown(ctx))
}

func TestNewZapOTELCore_NilProvider(t *testing.T) {
	core := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
		ServiceName: "test-service",
		Level:       zapcore.InfoLevel,
	})
	require.NotNil(t, core)

	// No provider means a no-op core that accepts nothing
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
}

func TestNewZapOTELCore_DisabledProvider(t *testing.T) {
	lp, err := telemetry.NewLoggerProvider(context.Background(),
		telemetry.LogsConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)

	core := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
		ServiceName:    "test-service",
		LoggerProvider: lp,
		Level:          zapcore.InfoLevel,
	})
	require.NotNil(t, core)
	assert.False(t, core.Enabled(zapcore.InfoLevel))
}

func TestBridgeLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.InfoLevel)
	otelCore, otelLogs := observer.New(zapcore.InfoLevel)

	logger := telemetry.BridgeLogger(zap.New(baseCore), otelCore)
	logger.Info("plan executed", zap.String("agent_type", "orders"))

	// Both destinations see the entry with its fields
	require.Equal(t, 1, baseLogs.Len())
	require.Equal(t, 1, otelLogs.Len())

	entry := otelLogs.All()[0]
	assert.Equal(t, "plan executed", entry.Message)
	require.Len(t, entry.Context, 1)
	assert.Equal(t, "agent_type", entry.Context[0].Key)
	assert.Equal(t, "orders", entry.Context[0].String)
}

func TestBridgeLogger_RespectsCoreLevels(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.DebugLevel)
	otelCore, otelLogs := observer.New(zapcore.WarnLevel)

	logger := telemetry.BridgeLogger(zap.New(baseCore), otelCore)
	logger.Debug("noisy detail")
	logger.Warn("stock below threshold")

	// Debug lands only in the base core, warn in both
	assert.Equal(t, 2, baseLogs.Len())
	require.Equal(t, 1, otelLogs.Len())
	assert.Equal(t, "stock below threshold", otelLogs.All()[0].Message)
}
