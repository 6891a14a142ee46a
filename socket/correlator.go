package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
	"github.com/kbukum/wirekit/wire"
)

// SendFunc writes one encoded frame to the peer. The correlator treats a
// returned error as a synchronous send failure: the pending request is
// unregistered immediately and no timer is left behind.
type SendFunc func(ctx context.Context, frame []byte) error

// outcome is the single settlement of a pending request: a response
// payload or a terminal error, never both.
type outcome struct {
	payload json.RawMessage
	err     error
}

// pendingRequest is one in-flight request/response exchange. It settles
// exactly once: whichever path removes it from the registry delivers the
// outcome on done (buffered, never blocks).
type pendingRequest struct {
	id        string
	event     string
	createdAt time.Time
	timer     *time.Timer
	done      chan outcome
}

// Correlator tracks in-flight requests by correlation id. Any number of
// requests may be in flight at once, each independently timed; responses
// resolve in whatever order they arrive. Registry mutation happens only
// at registration, resolution, expiry, and Clear.
type Correlator struct {
	cfg     Config
	log     *logger.Logger
	metrics *observability.Metrics
	newID   func() string

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewCorrelator creates a correlator with the default 30s request
// timeout unless configured otherwise.
func NewCorrelator(opts ...Option) *Correlator {
	o := newOptions(opts)
	return &Correlator{
		cfg:     o.cfg,
		log:     o.log,
		metrics: o.metrics,
		newID:   o.newID,
		pending: make(map[string]*pendingRequest),
	}
}

// RequestOption configures a single Request call.
type RequestOption func(*requestConfig)

type requestConfig struct {
	timeout time.Duration
}

// WithRequestTimeout overrides the correlator's default timeout for one
// request.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(rc *requestConfig) { rc.timeout = d }
}

// Request sends the event with a fresh correlation id and blocks until
// exactly one of: a matching response arrives (payload returned), the
// timeout fires (request-timeout error carrying the event name and the
// timeout used), Clear rejects it (connection-closed error), or the
// caller's context is cancelled. A send error unregisters the request
// immediately and is returned as-is.
func (c *Correlator) Request(ctx context.Context, event string, payload any, send SendFunc, opts ...RequestOption) (json.RawMessage, error) {
	rc := requestConfig{timeout: c.cfg.RequestTimeout}
	for _, opt := range opts {
		opt(&rc)
	}

	id := c.newID()
	frame, err := wire.EncodeSocket(event, payload, id)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanRequest)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrEventName, event)
	observability.SetSpanAttribute(ctx, observability.AttrRequestID, id)

	p := &pendingRequest{
		id:        id,
		event:     event,
		createdAt: time.Now(),
		done:      make(chan outcome, 1),
	}
	// The timer is armed before the request is published so no settlement
	// path can ever observe a nil timer. A fire before registration just
	// take-misses in expire and no-ops.
	p.timer = time.AfterFunc(rc.timeout, func() { c.expire(id, rc.timeout) })
	if err := c.register(p); err != nil {
		p.timer.Stop()
		return nil, err
	}

	c.metrics.RequestStarted(ctx, event)
	c.log.Debug("Request sent", map[string]interface{}{
		"event":          event,
		"correlation_id": id,
		"timeout":        rc.timeout.String(),
		"pending":        c.Pending(),
	})

	if err := send(ctx, frame); err != nil {
		if q, ok := c.take(id); ok {
			q.timer.Stop()
		}
		c.settleMetrics(ctx, event, "error", p.createdAt)
		observability.SetSpanError(ctx, err)
		return nil, err
	}

	var out outcome
	select {
	case out = <-p.done:
	case <-ctx.Done():
		if q, ok := c.take(id); ok {
			q.timer.Stop()
			c.settleMetrics(ctx, event, "cancelled", p.createdAt)
			return nil, ctx.Err()
		}
		// a settlement won the race; honor it
		out = <-p.done
	}

	if out.err != nil {
		c.settleMetrics(ctx, event, settleStatus(out.err), p.createdAt)
		observability.SetSpanError(ctx, out.err)
		return nil, out.err
	}
	c.settleMetrics(ctx, event, "ok", p.createdAt)
	return out.payload, nil
}

// Resolve settles the pending request matching the id with the response
// payload. Returns false when no request matches, so the caller can fall
// through to ordinary dispatch.
func (c *Correlator) Resolve(id string, payload json.RawMessage) bool {
	p, ok := c.take(id)
	if !ok {
		return false
	}
	p.timer.Stop()
	p.done <- outcome{payload: payload}
	c.log.Debug("Request resolved", map[string]interface{}{
		"event":          p.event,
		"correlation_id": id,
	})
	return true
}

// Clear rejects every pending request with a connection-closed error and
// empties the registry. Idempotent; the transport collaborator calls it
// when the underlying connection closes.
func (c *Correlator) Clear() {
	c.mu.Lock()
	cleared := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	if len(cleared) == 0 {
		return
	}
	for _, p := range cleared {
		p.timer.Stop()
		p.done <- outcome{err: errors.ConnectionClosed(p.event)}
	}
	c.log.Debug("Pending requests cleared", map[string]interface{}{
		"count": len(cleared),
	})
}

// Pending returns the number of in-flight requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) register(p *pendingRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[p.id]; exists {
		return errors.Internal(nil).WithDetail("correlation_id", p.id).
			WithDetail("reason", "correlation id already pending")
	}
	c.pending[p.id] = p
	return nil
}

// take removes and returns the pending request for the id. The caller
// that wins the removal owns the settlement; every other path becomes a
// no-op, so each request settles exactly once.
func (c *Correlator) take(id string) (*pendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return p, ok
}

func (c *Correlator) expire(id string, timeout time.Duration) {
	p, ok := c.take(id)
	if !ok {
		return
	}
	c.log.Warn("Request timed out", map[string]interface{}{
		"event":          p.event,
		"correlation_id": id,
		"timeout":        timeout.String(),
	})
	p.done <- outcome{err: errors.RequestTimeout(p.event, timeout)}
}

func (c *Correlator) settleMetrics(ctx context.Context, event, status string, start time.Time) {
	c.metrics.RequestSettled(ctx, event, status, time.Since(start))
}

func settleStatus(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		switch appErr.Code {
		case errors.ErrCodeRequestTimeout:
			return "timeout"
		case errors.ErrCodeConnectionClosed:
			return "closed"
		}
	}
	return "error"
}
