// Package telemetry provides thin OpenTelemetry tracing helpers used by the
// run-time components (policy executor turns, processor runs, packet posts).
// No exporter is configured here; spans are no-ops until the application
// installs a tracer provider via otel.SetTracerProvider.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hupe1980/agentswarm"

// Tracer returns the library tracer from the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span with the given name and attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan finalizes a span, recording err (if any) and setting the span status
// accordingly. Always safe to call with a nil error.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// ProcAttrs builds the standard attribute set identifying one processor
// invocation inside a run.
func ProcAttrs(procName, callID, runID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("agentswarm.proc_name", procName),
		attribute.String("agentswarm.call_id", callID),
		attribute.String("agentswarm.run_id", runID),
	}
}
