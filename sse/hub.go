package sse

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
	"github.com/kbukum/wirekit/schema"
	"github.com/kbukum/wirekit/util"
)

// Hub manages the registry of push connections for one event schema.
// All registry mutation happens at registration and teardown; broadcasts
// snapshot the registry and never hold the lock while emitting.
type Hub struct {
	schema  *schema.Schema
	cfg     Config
	log     *logger.Logger
	metrics *observability.Metrics
	newID   func() string

	mu     sync.RWMutex
	conns  map[string]*Connection
	closed bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithConfig sets the emitter configuration. Zero fields fall back to
// defaults.
func WithConfig(cfg Config) HubOption {
	return func(h *Hub) { h.cfg = cfg }
}

// WithLogger sets the hub logger.
func WithLogger(l *logger.Logger) HubOption {
	return func(h *Hub) { h.log = l }
}

// WithMetrics sets the metrics recorder. A nil recorder is valid and
// records nothing.
func WithMetrics(m *observability.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithIDGenerator overrides the connection-id generator. Useful for
// deterministic ids in tests.
func WithIDGenerator(fn func() string) HubOption {
	return func(h *Hub) { h.newID = fn }
}

// NewHub creates a hub bound to the given schema.
func NewHub(s *schema.Schema, opts ...HubOption) *Hub {
	h := &Hub{
		schema: s,
		conns:  make(map[string]*Connection),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.cfg.ApplyDefaults()
	if h.log == nil {
		h.log = logger.GetGlobalLogger().WithComponent(transportName)
	}
	return h
}

// Schema returns the event schema the hub enforces.
func (h *Hub) Schema() *schema.Schema { return h.schema }

// Config returns the hub configuration after defaulting.
func (h *Hub) Config() Config { return h.cfg }

// OpenConnection allocates and registers a connection, then runs onReady
// in its own goroutine with the bound connection. Registration happens
// before onReady so mid-setup emits are valid. An onReady error becomes
// the connection's terminal error and triggers teardown. The context is
// the external cancellation signal: its Done tears the connection down.
func (h *Hub) OpenConnection(ctx context.Context, onReady func(*Connection) error, opts ...ConnectionOption) (*Connection, error) {
	conn := &Connection{
		id:       h.newID(),
		metadata: make(map[string]string),
		hub:      h,
		log:      h.log,
		metrics:  h.metrics,
		frames:   make(chan []byte, h.cfg.ClientBufferSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(conn)
	}

	displaced, err := h.register(conn)
	if err != nil {
		return nil, err
	}
	if displaced != nil {
		h.log.Warn("Connection id reused, closing previous connection", map[string]interface{}{
			"client_id": conn.id,
		})
		displaced.teardown(nil)
	}

	conn.state.Store(int32(StateOpen))
	h.metrics.ConnectionOpened(ctx, transportName)
	h.log.Debug("Connection opened", map[string]interface{}{
		"client_id":   conn.id,
		"total_conns": h.Len(),
	})

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				conn.teardown(nil)
			case <-conn.done:
			}
		}()
	}

	if onReady != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					conn.teardown(errors.Internal(fmt.Errorf("onReady panic: %v", r)))
				}
			}()
			if err := onReady(conn); err != nil {
				conn.teardown(err)
			}
		}()
	}
	return conn, nil
}

// register adds the connection to the registry and returns any previous
// connection holding the same id.
func (h *Hub) register(c *Connection) (*Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.ConnectionClosed("open")
	}
	prev := h.conns[c.id]
	h.conns[c.id] = c
	return prev, nil
}

// remove deletes the connection from the registry. The identity check
// keeps a displaced connection's teardown from evicting its successor.
func (h *Hub) remove(c *Connection) {
	h.mu.Lock()
	if h.conns[c.id] == c {
		delete(h.conns, c.id)
	}
	h.mu.Unlock()
}

// BroadcastResult reports an all-settled broadcast: every snapshot member
// lands in Delivered or in Failures keyed by connection id. Failures are
// never folded into one aggregate error.
type BroadcastResult struct {
	Delivered []string
	Failures  map[string]error
}

// Broadcast emits the event to every registered connection concurrently
// and waits for all of them. One slow or broken connection never aborts
// the rest.
func (h *Hub) Broadcast(ctx context.Context, event string, payload any) BroadcastResult {
	return h.emitAll(ctx, h.snapshot(), event, payload)
}

// BroadcastMatch emits the event to connections whose id matches the
// glob pattern. A malformed pattern is logged and delivers to no one.
func (h *Hub) BroadcastMatch(ctx context.Context, pattern, event string, payload any) BroadcastResult {
	var matched []*Connection
	for _, c := range h.snapshot() {
		ok, err := filepath.Match(pattern, c.id)
		if err != nil {
			h.log.Error("Bad broadcast pattern", map[string]interface{}{
				"pattern": pattern,
				"error":   err.Error(),
			})
			return BroadcastResult{Failures: make(map[string]error)}
		}
		if ok {
			matched = append(matched, c)
		}
	}
	return h.emitAll(ctx, matched, event, payload)
}

func (h *Hub) snapshot() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return util.Values(h.conns)
}

func (h *Hub) emitAll(ctx context.Context, conns []*Connection, event string, payload any) BroadcastResult {
	ctx, span := observability.StartSpan(ctx, observability.SpanBroadcast)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrEventName, event)

	result := BroadcastResult{Failures: make(map[string]error)}
	if len(conns) == 0 {
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			err := c.Emit(ctx, event, payload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures[c.id] = err
			} else {
				result.Delivered = append(result.Delivered, c.id)
			}
		}(conn)
	}
	wg.Wait()

	for id, err := range result.Failures {
		h.metrics.RecordBroadcastFailure(ctx, event)
		h.log.Warn("Broadcast delivery failed", map[string]interface{}{
			"client_id": id,
			"event":     event,
			"error":     err.Error(),
		})
	}
	return result
}

// SendToClient emits the event to one connection. An unknown id reports
// a disconnected-target error.
func (h *Hub) SendToClient(ctx context.Context, clientID, event string, payload any) error {
	conn, ok := h.Get(clientID)
	if !ok {
		return errors.DisconnectedTarget(clientID)
	}
	return conn.Emit(ctx, event, payload)
}

// DisconnectClient tears down one connection by id. An unknown id reports
// a disconnected-target error.
func (h *Hub) DisconnectClient(clientID string) error {
	conn, ok := h.Get(clientID)
	if !ok {
		return errors.DisconnectedTarget(clientID)
	}
	conn.teardown(nil)
	return nil
}

// Get returns the connection registered under the id.
func (h *Hub) Get(clientID string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[clientID]
	return conn, ok
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ClientIDs returns the ids of all registered connections.
func (h *Hub) ClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return util.Keys(h.conns)
}

// Close tears down every connection and rejects future registrations.
// Safe to call multiple times.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	for _, conn := range h.snapshot() {
		conn.teardown(nil)
	}
	h.log.Debug("Hub closed")
}
