package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CacheMeta identifies a cache instance for telemetry purposes.
type CacheMeta struct {
	Name string // Cache name, e.g. "agent-definitions" (required)
	Tier string // Cache tier: ttl, reload, gated, digest (optional)
}

// SpanName returns the deterministic span name for a cache operation.
// Format: cache.<op>.<name>
func (m CacheMeta) SpanName(op string) string {
	return "cache." + op + "." + m.Name
}

// Tracer wraps OpenTelemetry tracing with cache-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan must honor cancellation/deadlines.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a cache operation (load, reload, verify).
	StartSpan(ctx context.Context, meta CacheMeta, op string) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with cache metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta CacheMeta, op string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("cache.name", meta.Name),
		attribute.String("cache.op", op),
	}
	if meta.Tier != "" {
		attrs = append(attrs, attribute.String("cache.tier", meta.Tier))
	}

	ctx, span := t.tracer.Start(ctx, meta.SpanName(op),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// NewNoopTracer creates a no-op tracer.
func NewNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CacheMeta, op string) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName(op))
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
