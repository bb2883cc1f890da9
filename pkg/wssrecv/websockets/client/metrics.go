package client

import (
	"context"
	"time"

	"github.com/quinnipak/wssrecv/pkg/wssrecv"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/o11y"
)

// ConnectorMetrics holds the metric instruments recorded during a receive.
// A nil *ConnectorMetrics is valid and records nothing.
type ConnectorMetrics struct {
	connectionsTotal  o11y.Counter   // Dial attempts
	connectionErrors  o11y.Counter   // Failed receives, by failure class
	handshakeDuration o11y.Histogram // TLS + WebSocket upgrade time
	receiveWait       o11y.Histogram // Time between upgrade and first frame
	messagesReceived  o11y.Counter   // Messages read, by frame type
	messageSize       o11y.Histogram // Payload size in bytes
	state             o11y.Gauge     // Current connector state
}

// NewConnectorMetrics creates the instruments using provider.
// If the provider is nil, returns nil (no metrics will be collected).
func NewConnectorMetrics(provider o11y.MetricsProvider) *ConnectorMetrics {
	if provider == nil {
		return nil
	}

	return &ConnectorMetrics{
		connectionsTotal:  provider.Counter("wssrecv_connections_total"),
		connectionErrors:  provider.Counter("wssrecv_connection_errors_total"),
		handshakeDuration: provider.Histogram("wssrecv_handshake_duration_seconds"),
		receiveWait:       provider.Histogram("wssrecv_receive_wait_seconds"),
		messagesReceived:  provider.Counter("wssrecv_messages_received_total"),
		messageSize:       provider.Histogram("wssrecv_message_size_bytes"),
		state:             provider.Gauge("wssrecv_state"),
	}
}

// RecordDial records the start of a dial and returns a function to record its completion.
//
//	done := metrics.RecordDial(ctx)
//	conn, err := dial()
//	done(err)
func (m *ConnectorMetrics) RecordDial(ctx context.Context) func(error) {
	if m == nil {
		return func(error) {}
	}

	start := time.Now()
	m.connectionsTotal.Add(ctx, 1)

	return func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.handshakeDuration.Record(ctx, time.Since(start).Seconds(), o11y.Label{Key: "outcome", Value: outcome})
	}
}

// RecordFailure records a failed receive with the failure class as a label.
func (m *ConnectorMetrics) RecordFailure(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.connectionErrors.Add(ctx, 1, o11y.Label{Key: "error_type", Value: errorType})
}

// RecordMessage records the received message and how long the connector waited for it.
func (m *ConnectorMetrics) RecordMessage(ctx context.Context, msg wssrecv.Message, wait time.Duration) {
	if m == nil {
		return
	}
	m.messagesReceived.Add(ctx, 1, o11y.Label{Key: "type", Value: msg.Type.String()})
	m.messageSize.Record(ctx, float64(msg.Len()))
	m.receiveWait.Record(ctx, wait.Seconds())
}

// RecordState records the connector's current state.
func (m *ConnectorMetrics) RecordState(ctx context.Context, state wssrecv.State) {
	if m == nil {
		return
	}
	m.state.Set(ctx, float64(state), o11y.Label{Key: "state", Value: state.String()})
}
