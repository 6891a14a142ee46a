package sseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
	"github.com/kbukum/wirekit/schema"
	"github.com/kbukum/wirekit/version"
	"github.com/kbukum/wirekit/wire"
)

const transportName = "sseclient"

// EventMessage is the event name given to frames that carry no event line.
const EventMessage = "message"

// Handler receives one dispatched event payload: the decoded JSON value,
// or the plain message string when the data line was not JSON.
type Handler func(payload any)

// ErrorHandler receives stream errors that trigger reconnection.
type ErrorHandler func(err error)

type connectMode int

const (
	modeRead connectMode = iota
	modePush
)

// Client consumes a push stream and dispatches typed events to listeners.
// It reconnects on unexpected interruptions until closed; an explicit
// Close is sticky and stops both reconnection and error reporting.
type Client struct {
	schema   *schema.Schema
	endpoint string
	cfg      Config

	httpClient *http.Client
	method     string
	headers    map[string]string
	body       []byte
	factory    EventSourceFactory
	mode       connectMode

	log     *logger.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	listeners map[string]map[uint64]Handler
	onError   map[uint64]ErrorHandler
	nextToken uint64

	stateMu     sync.Mutex
	retryDelay  time.Duration
	lastEventID string

	cancelMu      sync.Mutex
	cancelAttempt context.CancelFunc

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithConfig sets the consumer configuration. Zero fields fall back to
// defaults.
func WithConfig(cfg Config) Option {
	return func(c *Client) { c.cfg = cfg }
}

// WithHTTPClient sets the HTTP client used by the read loop.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHeader adds a request header. Any custom header disables the
// event-source fast path.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithMethod sets the request method. Anything but GET disables the
// event-source fast path.
func WithMethod(method string) Option {
	return func(c *Client) { c.method = method }
}

// WithBody sets a request body re-sent on every connection attempt.
func WithBody(body []byte) Option {
	return func(c *Client) { c.body = body }
}

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics sets the metrics recorder. A nil recorder is valid and
// records nothing.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithEventSource registers a push transport used for plain GET streams.
func WithEventSource(factory EventSourceFactory) Option {
	return func(c *Client) { c.factory = factory }
}

// WithErrorHandler registers a stream-error handler.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(c *Client) {
		c.nextToken++
		c.onError[c.nextToken] = fn
	}
}

// New creates a consumer for the endpoint, bound to the given schema.
func New(s *schema.Schema, endpoint string, opts ...Option) *Client {
	c := &Client{
		schema:     s,
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		method:     http.MethodGet,
		headers:    make(map[string]string),
		listeners:  make(map[string]map[uint64]Handler),
		onError:    make(map[uint64]ErrorHandler),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg.ApplyDefaults()
	c.retryDelay = c.cfg.RetryDelay
	if c.log == nil {
		c.log = logger.GetGlobalLogger().WithComponent(transportName)
	}
	return c
}

// Subscription is a cancel handle for a registered listener.
type Subscription struct {
	cancel func()
}

// Cancel removes the listener. Safe to call multiple times.
func (s Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// On registers a listener for the event name. Frames with no event line
// dispatch under EventMessage.
func (c *Client) On(event string, h Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.listeners[event]
	if !ok {
		set = make(map[uint64]Handler)
		c.listeners[event] = set
	}
	c.nextToken++
	token := c.nextToken
	set[token] = h
	return Subscription{cancel: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners[event], token)
	}}
}

// OnError registers a stream-error handler.
func (c *Client) OnError(fn ErrorHandler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextToken++
	token := c.nextToken
	c.onError[token] = fn
	return Subscription{cancel: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onError, token)
	}}
}

// Connect validates the client and starts the run loop. The transport
// mode is decided here, once, and holds for every reconnection: the
// event-source fast path only serves plain GET requests with no custom
// headers or body. Cancelling the context ends the run loop without
// reconnecting.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.ConnectionClosed("connect")
	}
	if c.endpoint == "" {
		return errors.InvalidInput("endpoint", "endpoint is required")
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if !c.started.CompareAndSwap(false, true) {
		return errors.InvalidInput("client", "already connected")
	}

	c.mode = modeRead
	if c.factory != nil && c.method == http.MethodGet && len(c.headers) == 0 && c.body == nil {
		c.mode = modePush
	}

	go c.run(ctx)
	return nil
}

// Close tears the client down. The flag is sticky: once set, transport
// errors neither reconnect nor report. Safe to call multiple times.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancelMu.Lock()
	if c.cancelAttempt != nil {
		c.cancelAttempt()
	}
	c.cancelMu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	c.log.Debug("Client closed")
	return nil
}

// Done returns a channel closed when the run loop has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// RetryDelay returns the current reconnection delay.
func (c *Client) RetryDelay() time.Duration {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.retryDelay
}

// LastEventID returns the most recent frame id seen on the stream.
func (c *Client) LastEventID() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.lastEventID
}

func (c *Client) run(ctx context.Context) {
	for {
		err := c.consumeOnce(ctx)

		if c.closed.Load() {
			c.closeOnce.Do(func() { close(c.done) })
			return
		}
		if err == nil {
			// the stream completed cleanly
			c.closed.Store(true)
			c.closeOnce.Do(func() { close(c.done) })
			return
		}
		if ctx.Err() != nil {
			c.closed.Store(true)
			c.closeOnce.Do(func() { close(c.done) })
			return
		}

		c.reportError(err)

		select {
		case <-time.After(c.RetryDelay()):
		case <-ctx.Done():
			c.closed.Store(true)
			c.closeOnce.Do(func() { close(c.done) })
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelMu.Lock()
	c.cancelAttempt = cancel
	c.cancelMu.Unlock()

	if c.mode == modePush {
		return c.consumePush(attemptCtx)
	}
	return c.consumeRead(attemptCtx)
}

// consumeRead runs the byte-stream read loop: read a chunk, append to the
// reassembly buffer, decode complete frames, keep the remainder. io.EOF is
// clean completion; any other interruption routes to reconnection.
func (c *Client) consumeRead(ctx context.Context) error {
	req, err := c.buildRequest(ctx)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	c.metrics.ConnectionOpened(ctx, transportName)
	defer c.metrics.ConnectionClosed(ctx, transportName)
	c.log.Debug("Stream opened", map[string]interface{}{"endpoint": c.endpoint})

	buf := make([]byte, c.cfg.ReadBufferSize)
	var rest []byte
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			var frames []wire.PushFrame
			frames, rest = wire.DecodePushChunk(append(rest, buf[:n]...))
			for _, frame := range frames {
				if stop := c.processFrame(ctx, frame); stop {
					return nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// consumePush drains a factory-provided push source.
func (c *Client) consumePush(ctx context.Context) error {
	src, err := c.factory(ctx, c.endpoint)
	if err != nil {
		return err
	}
	defer src.Close()

	c.metrics.ConnectionOpened(ctx, transportName)
	defer c.metrics.ConnectionClosed(ctx, transportName)

	for {
		select {
		case frame, ok := <-src.Frames():
			if !ok {
				return src.Err()
			}
			if stop := c.processFrame(ctx, frame); stop {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		}
	}
}

func (c *Client) buildRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if c.body != nil {
		body = bytes.NewReader(c.body)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, c.endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "wirekit/"+version.GetShortVersion())
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if id := c.LastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}
	return req, nil
}

// processFrame applies frame bookkeeping (id and retry lines), honors the
// reserved close event, and dispatches the rest. Returns true when the
// frame closed the client.
func (c *Client) processFrame(ctx context.Context, frame wire.PushFrame) bool {
	if frame.ID != "" {
		c.stateMu.Lock()
		c.lastEventID = frame.ID
		c.stateMu.Unlock()
	}
	if frame.Retry > 0 {
		c.stateMu.Lock()
		c.retryDelay = frame.Retry
		c.stateMu.Unlock()
		c.log.Debug("Retry delay updated", map[string]interface{}{
			"delay": frame.Retry.String(),
		})
	}

	if frame.Event == schema.EventClose {
		// close-event convention: tear down as if Close had been called
		_ = c.Close()
		return true
	}

	if frame.Event == "" && len(frame.Data) == 0 && frame.Message == "" {
		// bookkeeping-only frame (bare id or retry line)
		return false
	}

	c.dispatch(ctx, frame)
	return false
}

// dispatch delivers the frame payload to listeners. Streamed events carry
// their batch through as the decoded array; plain events deliver the
// decoded JSON value, or the message string when only a message was
// recovered. Zero listeners is a silent no-op.
func (c *Client) dispatch(ctx context.Context, frame wire.PushFrame) {
	event := frame.Event
	if event == "" {
		event = EventMessage
	}

	var payload any
	switch {
	case len(frame.Data) > 0:
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			payload = string(frame.Data)
		}
	case frame.Message != "":
		payload = frame.Message
	}

	c.metrics.RecordFrameReceived(ctx, transportName, event)
	if _, ok := c.schema.Lookup(event); !ok && event != EventMessage {
		c.log.Debug("Event not declared in schema", map[string]interface{}{
			"event": event,
		})
	}

	for _, h := range c.handlersFor(event) {
		c.invoke(h, payload)
	}
}

func (c *Client) handlersFor(event string) []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.listeners[event]
	if len(set) == 0 {
		return nil
	}
	handlers := make([]Handler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	return handlers
}

func (c *Client) invoke(h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Listener panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	h(payload)
}

// reportError delivers a stream error to error handlers. Never called
// once the client is closed.
func (c *Client) reportError(err error) {
	c.log.Warn("Stream interrupted", map[string]interface{}{
		"endpoint": c.endpoint,
		"error":    err.Error(),
	})
	c.metrics.RecordError(context.Background(), "stream", transportName)

	c.mu.Lock()
	handlers := make([]ErrorHandler, 0, len(c.onError))
	for _, h := range c.onError {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(err)
	}
}
