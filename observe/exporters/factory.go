// Package exporters builds the OpenTelemetry exporters behind the observe
// package. Exporter selection is by name so the choice can come straight
// from configuration.
package exporters

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// otlpEndpoint resolves the OTLP endpoint from the generic variable or a
// signal-specific override. Empty means unconfigured.
func otlpEndpoint(signalVar string) string {
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		return ep
	}
	return os.Getenv(signalVar)
}

// NewTracingExporter creates a span exporter by name: stdout, otlp,
// jaeger, or none. Jaeger ingests OTLP natively, so both gRPC paths share
// the same exporter.
func NewTracingExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	switch name {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout))

	case "otlp":
		if otlpEndpoint("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") == "" {
			return nil, fmt.Errorf("exporters: OTLP trace endpoint not configured (OTEL_EXPORTER_OTLP_ENDPOINT)")
		}
		return otlptracegrpc.New(ctx)

	case "jaeger":
		if os.Getenv("OTEL_EXPORTER_JAEGER_ENDPOINT") == "" {
			return nil, fmt.Errorf("exporters: Jaeger endpoint not configured (OTEL_EXPORTER_JAEGER_ENDPOINT)")
		}
		return otlptracegrpc.New(ctx)

	case "none", "":
		return stdouttrace.New(stdouttrace.WithWriter(io.Discard))

	default:
		return nil, fmt.Errorf("exporters: unknown tracing exporter %q", name)
	}
}

// NewMetricsReader creates a metrics reader by name: stdout, otlp,
// prometheus, or none.
func NewMetricsReader(ctx context.Context, name string) (sdkmetric.Reader, error) {
	switch name {
	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return nil, fmt.Errorf("exporters: stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case "otlp":
		if otlpEndpoint("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") == "" {
			return nil, fmt.Errorf("exporters: OTLP metrics endpoint not configured (OTEL_EXPORTER_OTLP_ENDPOINT)")
		}
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("exporters: OTLP metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case "prometheus":
		// The prometheus exporter is itself a pull-based reader.
		return prometheus.New()

	case "none", "":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(io.Discard))
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	default:
		return nil, fmt.Errorf("exporters: unknown metrics exporter %q", name)
	}
}
