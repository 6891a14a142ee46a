package sse

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
	"github.com/kbukum/wirekit/schema"
	"github.com/kbukum/wirekit/stream"
	"github.com/kbukum/wirekit/wire"
)

const transportName = "sse"

// ConnState is the lifecycle state of a Connection.
type ConnState int32

const (
	// StatePending means the connection is allocated but not yet registered.
	StatePending ConnState = iota
	// StateOpen means the connection is registered and accepting emits.
	StateOpen
	// StateClosing means teardown has started.
	StateClosing
	// StateClosed is terminal. No transition leaves it.
	StateClosed
)

// String returns the lowercase state name.
func (s ConnState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one registered consumer stream. Emits encode frames and
// enqueue them on the frames channel; an HTTP collaborator (or any sink)
// drains that channel. All teardown triggers converge on the same
// idempotent path, so the disconnect hook runs at most once.
type Connection struct {
	id       string
	metadata map[string]string

	hub     *Hub
	log     *logger.Logger
	metrics *observability.Metrics

	frames chan []byte
	done   chan struct{}

	state atomic.Int32

	// emitMu keeps concurrent emits from interleaving their frames.
	emitMu sync.Mutex
	// writeMu orders enqueues against the close of the frames channel.
	writeMu sync.Mutex

	closeOnce    sync.Once
	onDisconnect func(clientID string)

	errMu sync.Mutex
	err   error
}

// ConnectionOption configures a Connection before it is registered.
type ConnectionOption func(*Connection)

// WithClientID overrides the generated connection id.
func WithClientID(id string) ConnectionOption {
	return func(c *Connection) {
		if id != "" {
			c.id = id
		}
	}
}

// WithMetadata attaches a metadata key-value pair to the connection.
func WithMetadata(key, value string) ConnectionOption {
	return func(c *Connection) {
		c.metadata[key] = value
	}
}

// WithOnDisconnect registers a hook invoked exactly once when the
// connection is torn down. Panics inside the hook are recovered and
// logged, never propagated.
func WithOnDisconnect(fn func(clientID string)) ConnectionOption {
	return func(c *Connection) {
		c.onDisconnect = fn
	}
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// Metadata returns the connection metadata.
func (c *Connection) Metadata() map[string]string { return c.metadata }

// Frames returns the channel of encoded frames for the sink to drain.
// It is closed when the connection is torn down; buffered frames remain
// readable after close.
func (c *Connection) Frames() <-chan []byte { return c.frames }

// Done returns a channel closed when teardown starts.
func (c *Connection) Done() <-chan struct{} { return c.done }

// State returns the current lifecycle state.
func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// Err returns the terminal error, or nil on a clean close. It is set
// before Done is closed.
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close tears the connection down cleanly. Safe to call multiple times.
func (c *Connection) Close() error {
	c.teardown(nil)
	return nil
}

// Emit encodes and enqueues one event for this connection. Unknown events
// report a schema violation; streamed descriptors delegate to chunked
// emission. Returns a connection-closed error once teardown has started.
// Sequential emits are written in call order; Emit returns after the
// frame is enqueued to the sink.
func (c *Connection) Emit(ctx context.Context, event string, payload any) error {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	if c.State() >= StateClosing {
		return errors.ConnectionClosed(event)
	}

	desc, ok := c.hub.schema.Lookup(event)
	if !ok {
		return errors.SchemaViolation(event, "event is not declared in the schema")
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanEmit)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrClientID, c.id)
	observability.SetSpanAttribute(ctx, observability.AttrEventName, event)

	var err error
	if desc.Streams {
		err = c.emitChunked(ctx, desc, payload)
	} else {
		err = c.emitSingle(ctx, desc.Name, payload)
	}
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return err
}

func (c *Connection) emitSingle(ctx context.Context, event string, payload any) error {
	frame, err := wire.EncodePush(event, payload)
	if err != nil {
		return err
	}
	if err := c.write(ctx, frame); err != nil {
		return err
	}
	c.metrics.RecordFrameSent(ctx, transportName, event)
	return nil
}

// emitChunked resolves the payload into a source and flushes it in
// descriptor-sized batches. A payload map carrying a "data" key is an
// envelope: the batch rides the data field and the remaining fields are
// merged into every flushed frame. Any other payload flushes bare JSON
// arrays. A failed flush abandons the source and halts pulls.
func (c *Connection) emitChunked(ctx context.Context, desc schema.Descriptor, payload any) error {
	size := desc.ChunkSize
	if size <= 0 {
		size = c.hub.cfg.DefaultChunkSize
	}

	var envelope map[string]any
	seq := payload
	if m, ok := payload.(map[string]any); ok {
		if data, found := m["data"]; found {
			seq = data
			envelope = make(map[string]any, len(m)-1)
			for k, v := range m {
				if k != "data" {
					envelope[k] = v
				}
			}
		}
	}

	src := stream.Resolve(seq)
	return stream.Batches(ctx, src, size, func(batch []any) error {
		var body any = batch
		if envelope != nil {
			merged := make(map[string]any, len(envelope)+1)
			for k, v := range envelope {
				merged[k] = v
			}
			merged["data"] = batch
			body = merged
		}
		frame, err := wire.EncodePush(desc.Name, body)
		if err != nil {
			return err
		}
		if err := c.write(ctx, frame); err != nil {
			return err
		}
		c.metrics.RecordFrameSent(ctx, transportName, desc.Name)
		return nil
	})
}

// write enqueues one encoded frame. It blocks while the buffer is full
// and fails once teardown starts or the caller's context is cancelled.
func (c *Connection) write(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() >= StateClosing {
		return errors.ConnectionClosed("write")
	}

	select {
	case c.frames <- frame:
		return nil
	case <-c.done:
		return errors.ConnectionClosed("write")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// teardown is the single disconnect path, shared by sink write failures,
// consumer cancellation, external signals, explicit closes, and hub
// shutdown. The registry entry is removed first so re-entrant calls are
// no-ops, the disconnect hook runs defensively, then the frames channel
// is closed. Done is closed before writeMu is taken so a blocked write
// can release the mutex.
func (c *Connection) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.hub.remove(c)

		if cause != nil {
			c.errMu.Lock()
			c.err = cause
			c.errMu.Unlock()
		}
		close(c.done)

		c.runDisconnectHook()

		c.writeMu.Lock()
		close(c.frames)
		c.writeMu.Unlock()

		c.state.Store(int32(StateClosed))
		c.metrics.ConnectionClosed(context.Background(), transportName)

		fields := map[string]interface{}{"client_id": c.id}
		if cause != nil {
			fields["error"] = cause.Error()
		}
		c.log.Debug("Connection closed", fields)
	})
}

func (c *Connection) runDisconnectHook() {
	if c.onDisconnect == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Disconnect hook panicked", map[string]interface{}{
				"client_id": c.id,
				"panic":     fmt.Sprint(r),
			})
		}
	}()
	c.onDisconnect(c.id)
}
