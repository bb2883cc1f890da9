package client

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/quinnipak/wssrecv/pkg/wssrecv"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/sinkutils"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/trust/trusttest"
)

// testServer is a TLS WebSocket server that runs handler for every accepted connection.
type testServer struct {
	*httptest.Server
	url      string
	anchor   string
	accepted atomic.Int32
	requests chan *http.Request
}

func newTestServer(t *testing.T, handler func(ctx context.Context, c *websocket.Conn)) *testServer {
	t.Helper()

	ts := &testServer{requests: make(chan *http.Request, 10)}
	ts.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		ts.accepted.Add(1)
		select {
		case ts.requests <- r:
		default:
		}
		handler(r.Context(), c)
	}))
	t.Cleanup(ts.Close)

	ts.url = "wss" + strings.TrimPrefix(ts.URL, "https")
	ts.anchor = trusttest.WriteFile(t, "server.crt", trusttest.EncodePEM(ts.Certificate().Raw))
	return ts
}

// sendThenObserve sends each payload and then reports what the client sent back.
func sendThenObserve(typ websocket.MessageType, observed chan<- error, payloads ...string) func(context.Context, *websocket.Conn) {
	return func(ctx context.Context, c *websocket.Conn) {
		for _, p := range payloads {
			if err := c.Write(ctx, typ, []byte(p)); err != nil {
				observed <- err
				return
			}
		}
		_, data, err := c.Read(ctx)
		if err == nil {
			err = errors.New("client sent a data frame: " + string(data))
		}
		observed <- err
	}
}

type recordingMonitor struct {
	mu          sync.Mutex
	transitions []wssrecv.State
	errs        []error
}

func (m *recordingMonitor) OnStateChange(ctx context.Context, from, to wssrecv.State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.transitions) == 0 {
		m.transitions = append(m.transitions, from)
	}
	m.transitions = append(m.transitions, to)
	if err != nil {
		m.errs = append(m.errs, err)
	}
}

func (m *recordingMonitor) states() []wssrecv.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]wssrecv.State(nil), m.transitions...)
}

func buildConnector(t *testing.T, url, anchor string, out *bytes.Buffer, monitor wssrecv.Monitor) *Connector {
	t.Helper()

	c, err := NewConnector().
		WithURL(url).
		WithTrustAnchor(anchor).
		WithLogger(zap.NewNop()).
		WithSink(sinkutils.NewPrintingSink(out)).
		WithMonitor(monitor).
		Build()
	require.NoError(t, err)
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestReceiveSingleMessage(t *testing.T) {
	observed := make(chan error, 1)
	srv := newTestServer(t, sendThenObserve(websocket.MessageText, observed, "M", "second message is never read"))

	var out bytes.Buffer
	monitor := &recordingMonitor{}
	c := buildConnector(t, srv.url, srv.anchor, &out, monitor)

	msg, err := c.Receive(testContext(t))
	require.NoError(t, err)

	assert.Equal(t, "Received: M\n", out.String())
	assert.Equal(t, "M", msg.String())
	assert.Equal(t, wssrecv.MessageText, msg.Type)
	assert.Equal(t, wssrecv.StateClosed, c.State())
	assert.Equal(t, []wssrecv.State{
		wssrecv.StateStart,
		wssrecv.StateTLSContextBuilt,
		wssrecv.StateConnected,
		wssrecv.StateMessageReceived,
		wssrecv.StateClosed,
	}, monitor.states())

	select {
	case err := <-observed:
		// The only thing the client ever sends is the close frame.
		assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err), "unexpected: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never observed the client closing")
	}
}

func TestReceiveBinaryMessage(t *testing.T) {
	observed := make(chan error, 1)
	srv := newTestServer(t, sendThenObserve(websocket.MessageBinary, observed, "\x00\x01"))

	var out bytes.Buffer
	c := buildConnector(t, srv.url, srv.anchor, &out, nil)

	msg, err := c.Receive(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, wssrecv.MessageBinary, msg.Type)
	assert.Equal(t, []byte{0x00, 0x01}, msg.Data)
	assert.Equal(t, "Received: \x00\x01\n", out.String())
}

func TestReceiveMissingTrustAnchor(t *testing.T) {
	srv := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {})

	var out bytes.Buffer
	monitor := &recordingMonitor{}
	c := buildConnector(t, srv.url, filepath.Join(t.TempDir(), "missing.crt"), &out, monitor)

	_, err := c.Receive(testContext(t))
	require.Error(t, err)
	assert.True(t, wssrecv.IsConfigurationError(err), "got %T: %v", err, err)
	assert.Equal(t, wssrecv.StateFailed, c.State())
	assert.Equal(t, []wssrecv.State{wssrecv.StateStart, wssrecv.StateFailed}, monitor.states())
	assert.Empty(t, out.String())
	assert.Equal(t, int32(0), srv.accepted.Load(), "no network I/O expected")
}

func TestReceiveFailureLeavesReportingToCaller(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	var out bytes.Buffer
	c, err := NewConnector().
		WithTrustAnchor(filepath.Join(t.TempDir(), "missing.crt")).
		WithLogger(zap.New(core)).
		WithSink(sinkutils.NewPrintingSink(&out)).
		Build()
	require.NoError(t, err)

	_, err = c.Receive(testContext(t))
	require.Error(t, err)

	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	failed := logs.FilterMessage("Receive failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.DebugLevel, failed[0].Level)
	assert.Equal(t, "configuration", failed[0].ContextMap()["error_type"])
}

func TestReceiveUntrustedServer(t *testing.T) {
	srv := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {
		c.Write(ctx, websocket.MessageText, []byte("should not be read"))
	})

	t.Run("certificate not covered by trust anchor", func(t *testing.T) {
		other := trusttest.WriteFile(t, "other.crt", trusttest.SelfSigned(t, "127.0.0.1"))

		var out bytes.Buffer
		monitor := &recordingMonitor{}
		c := buildConnector(t, srv.url, other, &out, monitor)

		_, err := c.Receive(testContext(t))
		require.Error(t, err)
		assert.True(t, wssrecv.IsConnectionError(err), "got %T: %v", err, err)
		assert.Equal(t, "tls", failureType(err))
		assert.NotContains(t, monitor.states(), wssrecv.StateConnected)
		assert.NotContains(t, monitor.states(), wssrecv.StateMessageReceived)
		assert.Empty(t, out.String())
	})

	t.Run("hostname mismatch", func(t *testing.T) {
		_, port, err := net.SplitHostPort(strings.TrimPrefix(srv.url, "wss://"))
		require.NoError(t, err)

		var out bytes.Buffer
		c := buildConnector(t, "wss://localhost:"+port, srv.anchor, &out, nil)

		_, err = c.Receive(testContext(t))
		require.Error(t, err)
		assert.True(t, wssrecv.IsConnectionError(err), "got %T: %v", err, err)
		assert.Empty(t, out.String())
	})

	assert.Equal(t, int32(0), srv.accepted.Load())
}

func TestReceiveServerUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	anchor := trusttest.WriteFile(t, "a.crt", trusttest.SelfSigned(t, "127.0.0.1"))

	var out bytes.Buffer
	c := buildConnector(t, "wss://"+addr, anchor, &out, nil)

	_, err = c.Receive(testContext(t))
	require.Error(t, err)
	assert.True(t, wssrecv.IsConnectionError(err), "got %T: %v", err, err)
	assert.Equal(t, "connection", failureType(err))
}

func TestReceiveServerClosesFirst(t *testing.T) {
	t.Run("close frame", func(t *testing.T) {
		srv := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {
			c.Close(websocket.StatusNormalClosure, "nothing to say")
		})

		var out bytes.Buffer
		monitor := &recordingMonitor{}
		c := buildConnector(t, srv.url, srv.anchor, &out, monitor)

		_, err := c.Receive(testContext(t))
		require.Error(t, err)
		assert.True(t, wssrecv.IsProtocolError(err), "got %T: %v", err, err)
		assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
		assert.Equal(t, []wssrecv.State{
			wssrecv.StateStart,
			wssrecv.StateTLSContextBuilt,
			wssrecv.StateConnected,
			wssrecv.StateFailed,
		}, monitor.states())
		require.Len(t, monitor.errs, 1)
		assert.Empty(t, out.String())
	})

	t.Run("abrupt disconnect", func(t *testing.T) {
		srv := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {
			c.CloseNow()
		})

		var out bytes.Buffer
		c := buildConnector(t, srv.url, srv.anchor, &out, nil)

		_, err := c.Receive(testContext(t))
		require.Error(t, err)
		assert.True(t, wssrecv.IsProtocolError(err), "got %T: %v", err, err)
		assert.Empty(t, out.String())
	})
}

func TestReceiveTwiceUsesIndependentConnections(t *testing.T) {
	observed := make(chan error, 2)
	srv := newTestServer(t, sendThenObserve(websocket.MessageText, observed, "hello"))

	for i := 0; i < 2; i++ {
		var out bytes.Buffer
		c := buildConnector(t, srv.url, srv.anchor, &out, nil)

		_, err := c.Receive(testContext(t))
		require.NoError(t, err)
		assert.Equal(t, "Received: hello\n", out.String())
	}

	assert.Equal(t, int32(2), srv.accepted.Load())
	first, second := <-srv.requests, <-srv.requests
	assert.NotEqual(t, first.RemoteAddr, second.RemoteAddr)
}

func TestReceiveIsSingleShot(t *testing.T) {
	observed := make(chan error, 2)
	srv := newTestServer(t, sendThenObserve(websocket.MessageText, observed, "hello"))

	var out bytes.Buffer
	c := buildConnector(t, srv.url, srv.anchor, &out, nil)

	_, err := c.Receive(testContext(t))
	require.NoError(t, err)

	_, err = c.Receive(testContext(t))
	assert.ErrorIs(t, err, wssrecv.ErrAlreadyUsed)
	assert.Equal(t, "Received: hello\n", out.String())
	assert.Equal(t, int32(1), srv.accepted.Load())
}

func TestReceiveCancelled(t *testing.T) {
	srv := newTestServer(t, func(ctx context.Context, c *websocket.Conn) {
		c.Read(ctx)
	})

	var out bytes.Buffer
	c := buildConnector(t, srv.url, srv.anchor, &out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	_, err := c.Receive(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, wssrecv.IsProtocolError(err))
	assert.Equal(t, wssrecv.StateFailed, c.State())
}

func TestReceiveReadLimit(t *testing.T) {
	observed := make(chan error, 1)
	srv := newTestServer(t, sendThenObserve(websocket.MessageText, observed, strings.Repeat("x", 100)))

	var out bytes.Buffer
	c, err := NewConnector().
		WithURL(srv.url).
		WithTrustAnchor(srv.anchor).
		WithSink(sinkutils.NewPrintingSink(&out)).
		WithReadLimit(10).
		Build()
	require.NoError(t, err)

	_, err = c.Receive(testContext(t))
	require.Error(t, err)
	assert.True(t, wssrecv.IsProtocolError(err), "got %T: %v", err, err)
	assert.Contains(t, err.Error(), "message exceeds read limit of 10 bytes")
	assert.Empty(t, out.String())
}

func TestReceiveLargeMessageWithDefaultLimit(t *testing.T) {
	payload := strings.Repeat("x", 40000)
	observed := make(chan error, 1)
	srv := newTestServer(t, sendThenObserve(websocket.MessageText, observed, payload))

	var out bytes.Buffer
	c := buildConnector(t, srv.url, srv.anchor, &out, nil)

	msg, err := c.Receive(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, len(payload), msg.Len())
	assert.Equal(t, "Received: "+payload+"\n", out.String())
	select {
	case err := <-observed:
		assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err), "unexpected: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never observed the client closing")
	}
}

func TestReceiveSendsHeaders(t *testing.T) {
	observed := make(chan error, 1)
	srv := newTestServer(t, sendThenObserve(websocket.MessageText, observed, "hi"))

	var out bytes.Buffer
	c, err := NewConnector().
		WithURL(srv.url).
		WithTrustAnchor(srv.anchor).
		WithSink(sinkutils.NewPrintingSink(&out)).
		WithHeader("User-Agent", "wssrecv-test").
		WithHeaders(map[string][]string{"x-api-key": {"key123"}}).
		Build()
	require.NoError(t, err)

	_, err = c.Receive(testContext(t))
	require.NoError(t, err)

	r := <-srv.requests
	assert.Equal(t, "wssrecv-test", r.Header.Get("User-Agent"))
	assert.Equal(t, "key123", r.Header.Get("X-Api-Key"))
}

func TestReceiveSinkFailure(t *testing.T) {
	observed := make(chan error, 1)
	srv := newTestServer(t, sendThenObserve(websocket.MessageText, observed, "hi"))

	boom := errors.New("sink broke")
	c, err := NewConnector().
		WithURL(srv.url).
		WithTrustAnchor(srv.anchor).
		WithSink(wssrecv.SinkFunc(func(context.Context, wssrecv.Message) error { return boom })).
		Build()
	require.NoError(t, err)

	_, err = c.Receive(testContext(t))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, wssrecv.StateFailed, c.State())
}
