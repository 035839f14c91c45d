package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for application spans.
const TracerName = "github.com/shopops/automator"

// Span attribute keys shared across services so traces stay queryable.
const (
	SpanAttrPlanID    = "plan.id"
	SpanAttrAgentType = "plan.agent_type"
	SpanAttrAction    = "plan.action"
	SpanAttrMode      = "run.mode"
	SpanAttrRunStatus = "run.status"
	SpanAttrRisk      = "plan.risk"
	SpanAttrItemCount = "run.item_count"
	SpanAttrProvider  = "provider.name"
	SpanAttrStage     = "run.stage"
)

// StartSpan starts a span under the application tracer. It uses the global
// tracer provider, which is a no-op until telemetry is initialized.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, opts...)
}

// StartServiceSpan starts a span named after a service operation, the
// convention used by the application layer ("engine.execute_plan" and so on).
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// SetAttributes adds attributes to the span in the context.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// SetAttribute adds a single attribute, converting the value to the closest
// OpenTelemetry type.
func SetAttribute(ctx context.Context, key string, value interface{}) {
	SetAttributes(ctx, toAttribute(key, value))
}

// RecordError records the error on the span in the context and marks the
// span status as error. A nil error is ignored.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetOK marks the span in the context as successful.
func SetOK(ctx context.Context) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(codes.Ok, "")
	}
}

// AddEvent adds a point-in-time event to the span in the context.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// GetTraceID returns the trace id of the span in the context, or an empty
// string when no span is recording.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// GetSpanID returns the span id of the span in the context, or an empty
// string when no span is recording.
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
