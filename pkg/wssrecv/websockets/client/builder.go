package client

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/quinnipak/wssrecv/pkg/wssrecv"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/o11y"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/sinkutils"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/trust"
)

// ConnectorBuilder provides a fluent interface for building Connectors.
type ConnectorBuilder struct {
	url             string
	trustAnchor     string
	logger          *zap.Logger
	sink            wssrecv.Sink
	monitor         wssrecv.Monitor
	metricsProvider o11y.MetricsProvider
	tracingProvider o11y.TracingProvider
	headers         http.Header // Extra headers for the upgrade request
	readLimit       int64
}

// NewConnector creates a builder preconfigured with the default endpoint,
// the default trust anchor and a sink that prints to stdout.
func NewConnector() *ConnectorBuilder {
	return &ConnectorBuilder{
		url:         wssrecv.DefaultURL,
		trustAnchor: wssrecv.DefaultTrustAnchor,
		logger:      zap.NewNop(),
		sink:        sinkutils.NewPrintingSink(os.Stdout),
		readLimit:   wssrecv.DefaultReadLimit,
	}
}

// WithURL sets the secure WebSocket URL to connect to.
func (b *ConnectorBuilder) WithURL(url string) *ConnectorBuilder {
	b.url = url
	return b
}

// WithTrustAnchor sets the path of the PEM file used to verify the server.
func (b *ConnectorBuilder) WithTrustAnchor(path string) *ConnectorBuilder {
	b.trustAnchor = path
	return b
}

// WithLogger sets the logger for the connector.
func (b *ConnectorBuilder) WithLogger(logger *zap.Logger) *ConnectorBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithSink sets where the received message is emitted.
func (b *ConnectorBuilder) WithSink(sink wssrecv.Sink) *ConnectorBuilder {
	b.sink = sink
	return b
}

// WithMonitor sets an optional monitor that is told about every state transition.
func (b *ConnectorBuilder) WithMonitor(monitor wssrecv.Monitor) *ConnectorBuilder {
	b.monitor = monitor
	return b
}

// WithMetricsProvider enables connector metrics.
func (b *ConnectorBuilder) WithMetricsProvider(provider o11y.MetricsProvider) *ConnectorBuilder {
	b.metricsProvider = provider
	return b
}

// WithTracingProvider enables a span around each receive.
func (b *ConnectorBuilder) WithTracingProvider(provider o11y.TracingProvider) *ConnectorBuilder {
	b.tracingProvider = provider
	return b
}

// WithHeaders adds HTTP headers to the WebSocket upgrade request.
// Existing values for the same keys are replaced.
func (b *ConnectorBuilder) WithHeaders(headers map[string][]string) *ConnectorBuilder {
	if b.headers == nil {
		b.headers = make(http.Header)
	}
	for key, values := range headers {
		b.headers[http.CanonicalHeaderKey(key)] = values
	}
	return b
}

// WithHeader sets a single HTTP header for the WebSocket upgrade request.
func (b *ConnectorBuilder) WithHeader(key, value string) *ConnectorBuilder {
	if b.headers == nil {
		b.headers = make(http.Header)
	}
	b.headers.Set(key, value)
	return b
}

// WithReadLimit sets the maximum accepted message size in bytes.
// Zero restores wssrecv.DefaultReadLimit; -1 disables the limit.
func (b *ConnectorBuilder) WithReadLimit(limit int64) *ConnectorBuilder {
	switch {
	case limit == 0:
		b.readLimit = wssrecv.DefaultReadLimit
	case limit >= -1:
		b.readLimit = limit
	}
	return b
}

// Build creates and returns a new Connector with the configured options.
func (b *ConnectorBuilder) Build() (*Connector, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	return &Connector{
		url:       b.url,
		anchor:    trust.Anchor(b.trustAnchor),
		logger:    b.logger,
		sink:      b.sink,
		monitor:   b.monitor,
		metrics:   NewConnectorMetrics(b.metricsProvider),
		tracer:    b.tracingProvider,
		headers:   b.headers,
		readLimit: b.readLimit,
		state:     wssrecv.StateStart,
	}, nil
}

// IsValid checks that all required configuration is present.
func (b *ConnectorBuilder) IsValid() error {
	if b.url == "" {
		return &wssrecv.ConfigurationError{Reason: "URL is required"}
	}

	u, err := url.Parse(b.url)
	if err != nil {
		return &wssrecv.ConfigurationError{Reason: "invalid URL", Err: err}
	}
	if u.Scheme != "wss" {
		return &wssrecv.ConfigurationError{Reason: fmt.Sprintf("URL scheme must be wss, got %q", u.Scheme)}
	}
	if u.Host == "" {
		return &wssrecv.ConfigurationError{Reason: "URL has no host"}
	}

	if b.trustAnchor == "" {
		return &wssrecv.ConfigurationError{Reason: "trust anchor is required"}
	}

	if b.sink == nil {
		return &wssrecv.ConfigurationError{Reason: "sink is required"}
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	return nil
}
