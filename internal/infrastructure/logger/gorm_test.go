package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func noQuery() (string, int64) {
	return "SELECT * FROM plan_records", 3
}

func TestGormLoggerTraceQuery(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info)

	gl.Trace(context.Background(), time.Now(), noQuery, nil)

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sql query", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "SELECT * FROM plan_records", fields["sql"])
	assert.Equal(t, int64(3), fields["rows"])
}

func TestGormLoggerTraceCarriesPlanID(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info)

	ctx, _ := WithPlanID(context.Background(), zap.NewNop(), "plan-77")
	ctx, _ = WithRequestID(ctx, zap.NewNop(), "req-5")
	gl.Trace(ctx, time.Now(), noQuery, nil)

	entries := recorded.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "plan-77", fields["plan_id"])
	assert.Equal(t, "req-5", fields["request_id"])
}

func TestGormLoggerTraceError(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), noQuery, errors.New("constraint violated"))

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sql error", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestGormLoggerIgnoresRecordNotFound(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), noQuery, gormlogger.ErrRecordNotFound)

	assert.Empty(t, recorded.All())
}

func TestGormLoggerRecordNotFoundLoggedWhenConfigured(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Error, WithIgnoreRecordNotFoundError(false))

	gl.Trace(context.Background(), time.Now(), noQuery, gormlogger.ErrRecordNotFound)

	require.Len(t, recorded.All(), 1)
}

func TestGormLoggerSlowQuery(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(10*time.Millisecond))

	gl.Trace(context.Background(), time.Now().Add(-50*time.Millisecond), noQuery, nil)

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "slow sql")
}

func TestGormLoggerSilent(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), noQuery, errors.New("ignored"))
	gl.Info(context.Background(), "ignored")

	assert.Empty(t, recorded.All())
}

func TestGormLoggerLogMode(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn)

	changed := gl.LogMode(gormlogger.Error)
	require.NotSame(t, gl, changed)
	assert.Equal(t, gormlogger.Warn, gl.logLevel)
	assert.Equal(t, gormlogger.Error, changed.(*GormLogger).logLevel)
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"bogus", gormlogger.Warn},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MapGormLogLevel(tt.input), "level %q", tt.input)
	}
}
