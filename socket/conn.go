package socket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
	"github.com/kbukum/wirekit/schema"
	"github.com/kbukum/wirekit/wire"
)

// Transport supplies raw inbound message delivery and a send primitive.
// The correlator and dispatcher are agnostic to how the bytes arrive.
type Transport interface {
	// Send writes one frame to the peer.
	Send(ctx context.Context, frame []byte) error
	// Receive blocks until one inbound message arrives. It returns an
	// error once the transport is closed or broken.
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the transport. Safe to call multiple times.
	Close() error
}

// Conn binds a Transport to a Dispatcher and a Correlator: typed emits
// and requests go out through the transport, Run pumps inbound messages
// into the dispatcher, and teardown rejects every in-flight request.
type Conn struct {
	transport  Transport
	schema     *schema.Schema
	log        *logger.Logger
	metrics    *observability.Metrics
	correlator *Correlator
	dispatcher *Dispatcher

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewConn binds the transport to the schema. The conn constructs its
// own correlator unless one is supplied with WithCorrelator.
func NewConn(t Transport, s *schema.Schema, opts ...Option) *Conn {
	o := newOptions(opts)
	correlator := o.correlator
	if correlator == nil {
		correlator = NewCorrelator(opts...)
	}
	return &Conn{
		transport:  t,
		schema:     s,
		log:        o.log,
		metrics:    o.metrics,
		correlator: correlator,
		dispatcher: NewDispatcher(s, append(opts, WithCorrelator(correlator))...),
		done:       make(chan struct{}),
	}
}

// Correlator returns the bound correlator.
func (c *Conn) Correlator() *Correlator { return c.correlator }

// Dispatcher returns the bound dispatcher.
func (c *Conn) Dispatcher() *Dispatcher { return c.dispatcher }

// On registers a listener for the event name.
func (c *Conn) On(event string, h Handler) Subscription {
	return c.dispatcher.On(event, h)
}

// OnRaw registers a catch-all for opaque inbound messages.
func (c *Conn) OnRaw(h RawHandler) Subscription {
	return c.dispatcher.OnRaw(h)
}

// Emit sends one fire-and-forget event. Unknown events report a schema
// violation; a closed conn reports connection-closed.
func (c *Conn) Emit(ctx context.Context, event string, payload any) error {
	if c.closed.Load() {
		return errors.ConnectionClosed(event)
	}
	if !c.schema.Has(event) {
		return errors.SchemaViolation(event, "event is not declared in the schema")
	}
	frame, err := wire.EncodeSocket(event, payload, "")
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, frame); err != nil {
		return errors.WriteFailure("", err).WithDetail("event", event)
	}
	c.metrics.RecordFrameSent(ctx, transportName, event)
	return nil
}

// Request sends the event with a correlation id and waits for the
// matching response, the timeout, or teardown.
func (c *Conn) Request(ctx context.Context, event string, payload any, opts ...RequestOption) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, errors.ConnectionClosed(event)
	}
	if !c.schema.Has(event) {
		return nil, errors.SchemaViolation(event, "event is not declared in the schema")
	}
	reply, err := c.correlator.Request(ctx, event, payload, c.transport.Send, opts...)
	if err == nil {
		c.metrics.RecordFrameSent(ctx, transportName, event)
	}
	return reply, err
}

// Run pumps inbound messages into the dispatcher until the transport
// fails or the context is cancelled. Every exit clears the pending
// requests, so in-flight requests reject with connection-closed. Returns
// nil on cancellation or an explicit Close, the receive error otherwise.
func (c *Conn) Run(ctx context.Context) error {
	c.metrics.ConnectionOpened(ctx, transportName)
	defer func() {
		c.metrics.ConnectionClosed(ctx, transportName)
		c.correlator.Clear()
		c.closeOnce.Do(func() { close(c.done) })
	}()

	for {
		raw, err := c.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || c.closed.Load() {
				return nil
			}
			c.log.Warn("Receive failed, stopping read pump", map[string]interface{}{
				"error":   err.Error(),
				"pending": c.correlator.Pending(),
			})
			c.metrics.RecordError(ctx, "receive", transportName)
			return err
		}
		c.dispatcher.Dispatch(ctx, raw)
	}
}

// Close tears the conn down: pending requests reject with
// connection-closed and the transport is released. Safe to call multiple
// times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.correlator.Clear()
	err := c.transport.Close()
	c.closeOnce.Do(func() { close(c.done) })
	c.log.Debug("Conn closed")
	return err
}

// Done returns a channel closed once the read pump has ended or Close
// was called.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Pending returns the number of in-flight requests.
func (c *Conn) Pending() int { return c.correlator.Pending() }
