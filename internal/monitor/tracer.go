package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "run-sphere"

// Tracer wraps OpenTelemetry tracing for the runner.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("runner.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for runner tracing.
var (
	AttrRunID      = attribute.Key("runner.run.id")
	AttrLanguage   = attribute.Key("runner.language")
	AttrStatus     = attribute.Key("runner.status")
	AttrFailure    = attribute.Key("runner.failure")
	AttrAttempt    = attribute.Key("runner.attempt")
	AttrTimeoutMS  = attribute.Key("runner.timeout_ms")
	AttrDurationMS = attribute.Key("runner.duration_ms")
	AttrProvider   = attribute.Key("runner.provider")
)
