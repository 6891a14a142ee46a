package socket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/resilience"
	"github.com/kbukum/wirekit/schema"
	"github.com/kbukum/wirekit/security"
)

// WSConn is a Transport over a gorilla/websocket connection. Writes are
// serialized with a mutex because the underlying connection supports one
// concurrent writer.
type WSConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  sync.Once
}

var _ Transport = (*WSConn)(nil)

// dialConfig holds websocket dial settings.
type dialConfig struct {
	handshakeTimeout time.Duration
	header           http.Header
	tls              security.TLSConfig
	retry            resilience.RetryConfig
}

// DialOption configures Dial.
type DialOption func(*dialConfig)

// WithHandshakeTimeout bounds the websocket handshake.
func WithHandshakeTimeout(d time.Duration) DialOption {
	return func(dc *dialConfig) { dc.handshakeTimeout = d }
}

// WithRequestHeader adds a header sent with the handshake request.
func WithRequestHeader(key, value string) DialOption {
	return func(dc *dialConfig) { dc.header.Set(key, value) }
}

// WithTLS sets the TLS configuration for wss endpoints.
func WithTLS(cfg security.TLSConfig) DialOption {
	return func(dc *dialConfig) { dc.tls = cfg }
}

// WithDialBackoff overrides the redial policy. The default makes five
// attempts with exponential backoff from one second, capped at thirty.
func WithDialBackoff(cfg resilience.RetryConfig) DialOption {
	return func(dc *dialConfig) { dc.retry = cfg }
}

// Dial connects to the websocket endpoint, retrying failed attempts
// with exponential backoff until the policy is exhausted or the context
// is cancelled.
func Dial(ctx context.Context, url string, opts ...DialOption) (*WSConn, error) {
	dc := dialConfig{
		handshakeTimeout: 10 * time.Second,
		header:           make(http.Header),
		retry: resilience.RetryConfig{
			MaxAttempts:    5,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			BackoffFactor:  2.0,
		},
	}
	for _, opt := range opts {
		opt(&dc)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: dc.handshakeTimeout,
	}
	if dc.tls.IsEnabled() {
		tlsConfig, err := dc.tls.Build()
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = tlsConfig
	}

	conn, err := resilience.Retry(ctx, dc.retry, func() (*websocket.Conn, error) {
		c, resp, err := dialer.DialContext(ctx, url, dc.header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return c, err
	})
	if err != nil {
		return nil, errors.ConnectionClosed("dial").WithCause(err)
	}
	return NewWSConn(conn), nil
}

// DialConn dials the endpoint and binds the resulting transport to a
// Conn in one step.
func DialConn(ctx context.Context, s *schema.Schema, url string, opts ...Option) (*Conn, error) {
	ws, err := Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewConn(ws, s, opts...), nil
}

// NewWSConn wraps an established websocket connection, such as one
// accepted by an upgrader on the server side.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Send writes one text frame. A context deadline maps to the write
// deadline.
func (w *WSConn) Send(ctx context.Context, frame []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, frame)
}

// Receive blocks for the next inbound message. A context deadline maps
// to the read deadline; close errors surface as-is for the read pump to
// act on.
func (w *WSConn) Receive(ctx context.Context) ([]byte, error) {
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := w.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, data, err := w.conn.ReadMessage()
	return data, err
}

// Close sends a close control frame, then releases the connection. Safe
// to call multiple times.
func (w *WSConn) Close() error {
	var err error
	w.closed.Do(func() {
		w.writeMu.Lock()
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}
