// Package otel backs the o11y interfaces with OpenTelemetry.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/quinnipak/wssrecv/pkg/wssrecv/o11y"
)

// Provider is both an o11y.MetricsProvider and an o11y.TracingProvider.
type Provider struct {
	meter  metric.Meter
	tracer trace.Tracer
}

// Option customises a Provider.
type Option func(*options)

type options struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMeterProvider replaces the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// NewProvider creates a provider scoped to the given instrumentation name and
// version. Without options it reports through whatever global OpenTelemetry
// providers the host process has installed.
func NewProvider(name, version string, opts ...Option) *Provider {
	o := options{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Provider{
		meter:  o.meterProvider.Meter(name, metric.WithInstrumentationVersion(version)),
		tracer: o.tracerProvider.Tracer(name, trace.WithInstrumentationVersion(version)),
	}
}

// Counter returns an Int64Counter, or a no-op one if the SDK rejects the name.
func (p *Provider) Counter(name string) o11y.Counter {
	c, err := p.meter.Int64Counter(name)
	if err != nil {
		c = metricnoop.Int64Counter{}
	}
	return counter{c}
}

// Histogram returns a Float64Histogram, or a no-op one if the SDK rejects the name.
func (p *Provider) Histogram(name string) o11y.Histogram {
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		h = metricnoop.Float64Histogram{}
	}
	return histogram{h}
}

// Gauge returns a Float64Gauge, or a no-op one if the SDK rejects the name.
func (p *Provider) Gauge(name string) o11y.Gauge {
	g, err := p.meter.Float64Gauge(name)
	if err != nil {
		g = metricnoop.Float64Gauge{}
	}
	return gauge{g}
}

func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	ctx, s := p.tracer.Start(ctx, name)
	return ctx, span{s}
}

func labelSet(labels []o11y.Label) attribute.Set {
	kvs := make([]attribute.KeyValue, 0, len(labels))
	for _, l := range labels {
		kvs = append(kvs, attribute.String(l.Key, l.Value))
	}
	return attribute.NewSet(kvs...)
}

type counter struct{ metric.Int64Counter }

func (c counter) Add(ctx context.Context, value int64, labels ...o11y.Label) {
	c.Int64Counter.Add(ctx, value, metric.WithAttributeSet(labelSet(labels)))
}

type histogram struct{ metric.Float64Histogram }

func (h histogram) Record(ctx context.Context, value float64, labels ...o11y.Label) {
	h.Float64Histogram.Record(ctx, value, metric.WithAttributeSet(labelSet(labels)))
}

type gauge struct{ metric.Float64Gauge }

func (g gauge) Set(ctx context.Context, value float64, labels ...o11y.Label) {
	g.Float64Gauge.Record(ctx, value, metric.WithAttributeSet(labelSet(labels)))
}

type span struct{ trace.Span }

func (s span) SetAttributes(labels ...o11y.Label) {
	set := labelSet(labels)
	s.Span.SetAttributes(set.ToSlice()...)
}

var statusCodes = map[o11y.SpanStatusCode]codes.Code{
	o11y.SpanStatusUnset: codes.Unset,
	o11y.SpanStatusOK:    codes.Ok,
	o11y.SpanStatusError: codes.Error,
}

func (s span) SetStatus(code o11y.SpanStatusCode, description string) {
	s.Span.SetStatus(statusCodes[code], description)
}

func (s span) End() { s.Span.End() }
