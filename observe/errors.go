package observe

import "errors"

var (
	// ErrMissingServiceName is returned when Config.ServiceName is empty.
	ErrMissingServiceName = errors.New("observe: service name is required")

	// ErrInvalidSamplePct is returned when the trace sampling fraction
	// falls outside [MinSamplePct, MaxSamplePct].
	ErrInvalidSamplePct = errors.New("observe: sample percentage must be between 0.0 and 1.0")

	// ErrInvalidTracingExporter is returned for a tracing exporter name
	// not listed in ValidTracingExporters.
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")

	// ErrInvalidMetricsExporter is returned for a metrics exporter name
	// not listed in ValidMetricsExporters.
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")

	// ErrInvalidLogLevel is returned for a log level not listed in
	// ValidLogLevels.
	ErrInvalidLogLevel = errors.New("observe: invalid log level")
)

// Bounds for TracingConfig.SamplePct.
const (
	MinSamplePct = 0.0
	MaxSamplePct = 1.0
)

// Accepted exporter and level names. The empty string selects the default.
var (
	ValidTracingExporters = []string{"otlp", "jaeger", "stdout", "none", ""}
	ValidMetricsExporters = []string{"otlp", "prometheus", "stdout", "none", ""}
	ValidLogLevels        = []string{"debug", "info", "warn", "error", ""}
)

// RedactedFields are log field keys whose values are replaced with a
// placeholder before serialization. Tool-server configuration can carry
// credentials under these keys.
var RedactedFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apiKey",
	"credential",
	"authorization",
}
