package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// contextKey is a type for context keys used by the logger package
type contextKey string

const (
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
	// RequestIDKey is the context key for the inbound request ID
	RequestIDKey contextKey = "request_id"
	// PlanIDKey is the context key for the plan an operation belongs to
	PlanIDKey contextKey = "plan_id"
	// AgentKey is the context key for the agent type handling the plan
	AgentKey contextKey = "agent"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger if absent
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores the request ID and returns the context with an
// enriched logger attached
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// WithPlanID stores the plan ID and returns the context with an enriched
// logger attached. Persistence and gateway logs pick the ID up from here.
func WithPlanID(ctx context.Context, logger *zap.Logger, planID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, PlanIDKey, planID)
	enriched := logger.With(zap.String("plan_id", planID))
	return WithContext(ctx, enriched), enriched
}

// WithAgent stores the agent type and returns the context with an enriched
// logger attached
func WithAgent(ctx context.Context, logger *zap.Logger, agent string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, AgentKey, agent)
	enriched := logger.With(zap.String("agent", agent))
	return WithContext(ctx, enriched), enriched
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetPlanID retrieves the plan ID from context
func GetPlanID(ctx context.Context) string {
	if planID, ok := ctx.Value(PlanIDKey).(string); ok {
		return planID
	}
	return ""
}

// GetAgent retrieves the agent type from context
func GetAgent(ctx context.Context) string {
	if agent, ok := ctx.Value(AgentKey).(string); ok {
		return agent
	}
	return ""
}

// GetTraceID extracts the trace ID from the context's span. Returns an empty
// string if no valid span exists.
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// GetSpanID extracts the span ID from the context's span. Returns an empty
// string if no valid span exists.
func GetSpanID(ctx context.Context) string {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.SpanID().String()
}

// WithTraceContext adds trace_id and span_id fields from the context's span.
// If no valid span exists the logger is returned unchanged.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}
