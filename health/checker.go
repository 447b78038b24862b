package health

import (
	"context"
	"time"
)

// Status grades component health from best to worst. The ordering is
// load-bearing: aggregation reduces a set of results by taking the maximum.
type Status int

const (
	// StatusHealthy means the component is serving normally.
	StatusHealthy Status = iota
	// StatusDegraded means the component is serving but impaired, for
	// example a cache running on stale data.
	StatusDegraded
	// StatusUnhealthy means the component cannot serve.
	StatusUnhealthy
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

// String returns the lowercase name of the status, or "unknown" for
// values outside the defined range.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Result is the outcome of a single health check.
type Result struct {
	// Status grades the outcome.
	Status Status

	// Message is a short human-readable explanation.
	Message string

	// Error carries the underlying failure for unhealthy results.
	Error error

	// Details holds optional check-specific metadata.
	Details map[string]any

	// Timestamp records when the check ran.
	Timestamp time.Time
}

func newResult(status Status, message string, err error) Result {
	return Result{
		Status:    status,
		Message:   message,
		Error:     err,
		Timestamp: time.Now(),
	}
}

// Healthy builds a healthy result with the given message.
func Healthy(message string) Result { return newResult(StatusHealthy, message, nil) }

// Degraded builds a degraded result with the given message.
func Degraded(message string) Result { return newResult(StatusDegraded, message, nil) }

// Unhealthy builds an unhealthy result carrying the failure cause.
func Unhealthy(message string, err error) Result {
	return newResult(StatusUnhealthy, message, err)
}

// WithDetails returns a copy of the result with the given metadata attached.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is a named, on-demand health probe for one component.
type Checker interface {
	// Name identifies the checker within an aggregator.
	Name() string

	// Check probes the component. Implementations should honor ctx
	// cancellation and report it as an unhealthy result rather than block.
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a plain function into a named Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc wraps fn as a Checker with the given name.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

// Name implements Checker.
func (f *CheckerFunc) Name() string { return f.name }

// Check implements Checker.
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }
