package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/quinnipak/wssrecv/pkg/wssrecv"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/o11y"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/trust"
)

// Connector opens a single TLS-verified WebSocket connection, waits for one
// message, hands it to the sink and closes the connection. It never writes a
// data frame. A Connector can be used once.
type Connector struct {
	// Configuration
	url       string
	anchor    trust.Anchor
	logger    *zap.Logger
	sink      wssrecv.Sink
	monitor   wssrecv.Monitor
	metrics   *ConnectorMetrics
	tracer    o11y.TracingProvider
	headers   http.Header
	readLimit int64

	used  int32
	mu    sync.Mutex
	state wssrecv.State
}

// URL returns the endpoint the connector dials.
func (c *Connector) URL() string {
	return c.url
}

// State returns the connector's current state.
func (c *Connector) State() wssrecv.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Receive performs the whole connect, read, emit, close sequence.
// Failures are reported as *wssrecv.ConfigurationError, *wssrecv.ConnectionError
// or *wssrecv.ProtocolError; cancellation of ctx is returned as the context error.
func (c *Connector) Receive(ctx context.Context) (msg wssrecv.Message, err error) {
	if !atomic.CompareAndSwapInt32(&c.used, 0, 1) {
		return msg, wssrecv.ErrAlreadyUsed
	}

	ctx, span := o11y.StartSpan(ctx, c.tracer, "wssrecv.receive")
	defer func() {
		span.SetAttributes(
			o11y.Label{Key: "wssrecv.url", Value: c.url},
			o11y.Label{Key: "wssrecv.state", Value: c.State().String()},
		)
		if err != nil {
			span.SetStatus(o11y.SpanStatusError, err.Error())
		} else {
			span.SetStatus(o11y.SpanStatusOK, "")
		}
		span.End()
	}()

	tlsConfig, err := c.anchor.ClientConfig()
	if err != nil {
		return msg, c.fail(ctx, err)
	}
	c.transition(ctx, wssrecv.StateTLSContextBuilt)

	conn, err := c.dial(ctx, tlsConfig)
	if err != nil {
		return msg, c.fail(ctx, err)
	}
	c.transition(ctx, wssrecv.StateConnected)

	// Released on every failure path; the success path closes gracefully below.
	defer func() {
		if conn != nil {
			conn.CloseNow()
		}
	}()

	msg, err = c.read(ctx, conn)
	if err != nil {
		return wssrecv.Message{}, c.fail(ctx, err)
	}
	c.transition(ctx, wssrecv.StateMessageReceived)

	if err := c.sink.Emit(ctx, msg); err != nil {
		return msg, c.fail(ctx, fmt.Errorf("failed to emit message: %w", err))
	}

	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		c.logger.Debug("Close handshake did not complete cleanly", zap.Error(err))
	}
	conn = nil
	c.transition(ctx, wssrecv.StateClosed)

	return msg, nil
}

func (c *Connector) dial(ctx context.Context, tlsConfig *tls.Config) (*websocket.Conn, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}

	dialOptions := &websocket.DialOptions{
		HTTPClient: httpClient,
	}
	if len(c.headers) > 0 {
		dialOptions.HTTPHeader = c.headers.Clone()
	}

	c.logger.Debug("Dialing WebSocket server", zap.String("url", c.url))

	done := c.metrics.RecordDial(ctx)
	conn, _, err := websocket.Dial(ctx, c.url, dialOptions)
	done(err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		}
		return nil, &wssrecv.ConnectionError{URL: c.url, Err: err}
	}

	conn.SetReadLimit(c.readLimit)

	c.logger.Info("WebSocket connection established", zap.String("url", c.url))
	return conn, nil
}

func (c *Connector) read(ctx context.Context, conn *websocket.Conn) (wssrecv.Message, error) {
	start := time.Now()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return wssrecv.Message{}, fmt.Errorf("receive cancelled: %w", ctx.Err())
		}
		return wssrecv.Message{}, readError(err, c.readLimit)
	}

	msg := wssrecv.Message{Type: messageType(typ), Data: data}
	c.metrics.RecordMessage(ctx, msg, time.Since(start))
	c.logger.Debug("Message received",
		zap.String("type", msg.Type.String()),
		zap.Int("size", msg.Len()),
	)
	return msg, nil
}

// readError classifies a failed read. Every way the peer can end the
// session before a message arrives is a protocol error, as is a message
// larger than the read limit.
func readError(err error, limit int64) error {
	// The websocket library reports an exceeded limit only through its message text.
	if limit >= 0 && strings.Contains(err.Error(), "read limited at") {
		return &wssrecv.ProtocolError{
			Reason: fmt.Sprintf("message exceeds read limit of %d bytes", limit),
			Err:    err,
		}
	}
	if status := websocket.CloseStatus(err); status != -1 {
		return &wssrecv.ProtocolError{
			Reason: fmt.Sprintf("server closed the connection (%s) before sending a message", status),
			Err:    err,
		}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return &wssrecv.ProtocolError{Reason: "connection ended before a message was received", Err: err}
	}
	return &wssrecv.ProtocolError{Reason: "failed to read message", Err: err}
}

func messageType(t websocket.MessageType) wssrecv.MessageType {
	if t == websocket.MessageBinary {
		return wssrecv.MessageBinary
	}
	return wssrecv.MessageText
}

// failureType names the failure class for metrics and logs.
func failureType(err error) string {
	var (
		verification     *tls.CertificateVerificationError
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		certInvalid      x509.CertificateInvalidError
	)

	switch {
	case wssrecv.IsConfigurationError(err):
		return "configuration"
	case errors.As(err, &verification), errors.As(err, &unknownAuthority), errors.As(err, &hostname), errors.As(err, &certInvalid):
		return "tls"
	case wssrecv.IsConnectionError(err):
		return "connection"
	case wssrecv.IsProtocolError(err):
		return "protocol"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

func (c *Connector) fail(ctx context.Context, err error) error {
	kind := failureType(err)
	c.metrics.RecordFailure(ctx, kind)
	c.logger.Debug("Receive failed",
		zap.String("url", c.url),
		zap.String("state", c.State().String()),
		zap.String("error_type", kind),
		zap.Error(err),
	)
	c.setState(ctx, wssrecv.StateFailed, err)
	return err
}

func (c *Connector) transition(ctx context.Context, to wssrecv.State) {
	c.setState(ctx, to, nil)
}

func (c *Connector) setState(ctx context.Context, to wssrecv.State, err error) {
	c.mu.Lock()
	from := c.state
	if !from.CanTransition(to) {
		c.mu.Unlock()
		c.logger.Warn("Ignoring invalid state transition",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		return
	}
	c.state = to
	c.mu.Unlock()

	c.logger.Debug("State changed", zap.Stringer("from", from), zap.Stringer("to", to))
	c.metrics.RecordState(ctx, to)

	if c.monitor != nil {
		c.monitor.OnStateChange(ctx, from, to, err)
	}
}
