// Package o11y defines the metrics and tracing abstractions used by the connector.
package o11y

import (
	"context"
)

// MetricsProvider abstracts metrics collection (OpenTelemetry, Prometheus, etc.)
type MetricsProvider interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// TracingProvider abstracts distributed tracing
type TracingProvider interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Counter represents a monotonically increasing metric
type Counter interface {
	Add(ctx context.Context, value int64, labels ...Label)
}

// Histogram records distribution of values
type Histogram interface {
	Record(ctx context.Context, value float64, labels ...Label)
}

// Gauge represents a value that can go up and down
type Gauge interface {
	Set(ctx context.Context, value float64, labels ...Label)
}

// Span represents a unit of work in a trace
type Span interface {
	SetAttributes(labels ...Label)
	SetStatus(code SpanStatusCode, description string)
	End()
}

// Label represents a key-value pair for metrics and tracing
type Label struct {
	Key   string
	Value string
}

// SpanStatusCode represents the status of a span
type SpanStatusCode int

const (
	SpanStatusUnset SpanStatusCode = iota
	SpanStatusOK
	SpanStatusError
)

// StartSpan starts a span on provider, or returns a no-op span when provider is nil.
func StartSpan(ctx context.Context, provider TracingProvider, name string) (context.Context, Span) {
	if provider == nil {
		return ctx, noopSpan{}
	}
	return provider.StartSpan(ctx, name)
}

type noopSpan struct{}

func (noopSpan) SetAttributes(...Label)           {}
func (noopSpan) SetStatus(SpanStatusCode, string) {}
func (noopSpan) End()                             {}
