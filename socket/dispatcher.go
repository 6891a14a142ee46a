package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
	"github.com/kbukum/wirekit/schema"
	"github.com/kbukum/wirekit/wire"
)

// Handler receives one dispatched event payload: the decoded JSON value,
// or nil for envelopes with no data field.
type Handler func(payload any)

// RawHandler receives inbound bytes that did not decode as a typed
// envelope. Opaque input is routed here rather than dropped.
type RawHandler func(raw []byte)

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

// Dispatcher routes inbound frames. Typed envelopes whose id matches a
// pending request settle that request and short-circuit listener
// delivery; unmatched ids fall through to ordinary dispatch; anything
// that is not a typed envelope goes to the raw catch-all.
type Dispatcher struct {
	schema     *schema.Schema
	correlator *Correlator
	log        *logger.Logger
	metrics    *observability.Metrics

	mu          sync.Mutex
	listeners   map[string]map[uint64]Handler
	rawHandlers map[uint64]RawHandler
	nextToken   uint64
}

// NewDispatcher creates a dispatcher for the schema. Bind a correlator
// with WithCorrelator to enable response short-circuiting.
func NewDispatcher(s *schema.Schema, opts ...Option) *Dispatcher {
	o := newOptions(opts)
	return &Dispatcher{
		schema:      s,
		correlator:  o.correlator,
		log:         o.log,
		metrics:     o.metrics,
		listeners:   make(map[string]map[uint64]Handler),
		rawHandlers: make(map[uint64]RawHandler),
	}
}

// On registers a listener for the event name.
func (d *Dispatcher) On(event string, h Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.listeners[event]
	if !ok {
		set = make(map[uint64]Handler)
		d.listeners[event] = set
	}
	d.nextToken++
	token := d.nextToken
	set[token] = h
	return Subscription{cancel: func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners[event], token)
	}}
}

// OnRaw registers a catch-all for opaque inbound messages.
func (d *Dispatcher) OnRaw(h RawHandler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextToken++
	token := d.nextToken
	d.rawHandlers[token] = h
	return Subscription{cancel: func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.rawHandlers, token)
	}}
}

// Dispatch routes one inbound message. Zero matching listeners is a
// silent no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) {
	ctx, span := observability.StartSpan(ctx, observability.SpanDispatch)
	defer span.End()

	env, ok := wire.DecodeSocket(raw, d.schema)
	if !ok {
		d.metrics.RecordFrameReceived(ctx, transportName, "raw")
		for _, h := range d.rawHandlersSnapshot() {
			d.invokeRaw(h, raw)
		}
		return
	}

	observability.SetSpanAttribute(ctx, observability.AttrEventName, env.Type)
	d.metrics.RecordFrameReceived(ctx, transportName, env.Type)

	if env.ID != "" && d.correlator != nil && d.correlator.Resolve(env.ID, env.Data) {
		return
	}

	var payload any
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			payload = string(env.Data)
		}
	}
	for _, h := range d.handlersFor(env.Type) {
		d.invoke(h, payload)
	}
}

func (d *Dispatcher) handlersFor(event string) []Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.listeners[event]
	if len(set) == 0 {
		return nil
	}
	handlers := make([]Handler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	return handlers
}

func (d *Dispatcher) rawHandlersSnapshot() []RawHandler {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rawHandlers) == 0 {
		return nil
	}
	handlers := make([]RawHandler, 0, len(d.rawHandlers))
	for _, h := range d.rawHandlers {
		handlers = append(handlers, h)
	}
	return handlers
}

func (d *Dispatcher) invoke(h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Listener panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	h(payload)
}

func (d *Dispatcher) invokeRaw(h RawHandler, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Raw handler panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	h(raw)
}
