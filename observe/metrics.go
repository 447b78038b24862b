package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup records a cache read with its hit/miss outcome.
	RecordLookup(ctx context.Context, meta CacheMeta, hit bool)

	// RecordLoad records a loader invocation with duration and error status.
	RecordLoad(ctx context.Context, meta CacheMeta, duration time.Duration, err error)

	// RecordReload records a whole-collection reload with its resulting size.
	RecordReload(ctx context.Context, meta CacheMeta, entries int, duration time.Duration, err error)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter        metric.Meter
	lookupCount  metric.Int64Counter
	loadCount    metric.Int64Counter
	loadErrors   metric.Int64Counter
	loadDuration metric.Float64Histogram
	reloadSize   metric.Int64Histogram
}

// NewMetrics creates a new Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	lookupCount, err := meter.Int64Counter(
		"cache.lookups.total",
		metric.WithDescription("Total number of cache lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	loadCount, err := meter.Int64Counter(
		"cache.loads.total",
		metric.WithDescription("Total number of loader invocations"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, err
	}

	loadErrors, err := meter.Int64Counter(
		"cache.loads.errors",
		metric.WithDescription("Total number of loader failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	loadDuration, err := meter.Float64Histogram(
		"cache.load.duration_ms",
		metric.WithDescription("Loader invocation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	reloadSize, err := meter.Int64Histogram(
		"cache.reload.entries",
		metric.WithDescription("Number of entries loaded by a collection reload"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:        meter,
		lookupCount:  lookupCount,
		loadCount:    loadCount,
		loadErrors:   loadErrors,
		loadDuration: loadDuration,
		reloadSize:   reloadSize,
	}, nil
}

func (m *metricsImpl) attrs(meta CacheMeta) metric.MeasurementOption {
	kv := []attribute.KeyValue{
		attribute.String("cache.name", meta.Name),
	}
	if meta.Tier != "" {
		kv = append(kv, attribute.String("cache.tier", meta.Tier))
	}
	return metric.WithAttributes(kv...)
}

// RecordLookup records a cache read outcome.
func (m *metricsImpl) RecordLookup(ctx context.Context, meta CacheMeta, hit bool) {
	kv := []attribute.KeyValue{
		attribute.String("cache.name", meta.Name),
		attribute.Bool("cache.hit", hit),
	}
	if meta.Tier != "" {
		kv = append(kv, attribute.String("cache.tier", meta.Tier))
	}
	m.lookupCount.Add(ctx, 1, metric.WithAttributes(kv...))
}

// RecordLoad records metrics for a loader invocation.
func (m *metricsImpl) RecordLoad(ctx context.Context, meta CacheMeta, duration time.Duration, err error) {
	opt := m.attrs(meta)

	m.loadCount.Add(ctx, 1, opt)
	if err != nil {
		m.loadErrors.Add(ctx, 1, opt)
	}
	m.loadDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

// RecordReload records metrics for a collection reload.
func (m *metricsImpl) RecordReload(ctx context.Context, meta CacheMeta, entries int, duration time.Duration, err error) {
	opt := m.attrs(meta)

	m.loadCount.Add(ctx, 1, opt)
	if err != nil {
		m.loadErrors.Add(ctx, 1, opt)
		return
	}
	m.loadDuration.Record(ctx, float64(duration.Milliseconds()), opt)
	m.reloadSize.Record(ctx, int64(entries), opt)
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NewNoopMetrics creates a Metrics that discards all measurements.
func NewNoopMetrics() Metrics { return &noopMetrics{} }

func (m *noopMetrics) RecordLookup(ctx context.Context, meta CacheMeta, hit bool) {}
func (m *noopMetrics) RecordLoad(ctx context.Context, meta CacheMeta, duration time.Duration, err error) {
}
func (m *noopMetrics) RecordReload(ctx context.Context, meta CacheMeta, entries int, duration time.Duration, err error) {
}
