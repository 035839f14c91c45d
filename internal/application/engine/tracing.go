package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer emits the engine's operation spans through the globally
// registered provider. With telemetry disabled the global provider is a
// no-op.
var tracer = otel.Tracer("github.com/shopops/automator/internal/application/engine")

// endSpan finishes span, recording err when the operation failed.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
