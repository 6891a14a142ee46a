package sseclient

import (
	"context"

	"github.com/kbukum/wirekit/wire"
)

// EventSource is a push transport that yields decoded frames. When one is
// available the client consumes it directly instead of running its own
// byte-stream read loop.
type EventSource interface {
	// Frames returns the decoded frame channel. It is closed when the
	// source ends; Err reports why.
	Frames() <-chan wire.PushFrame

	// Err returns the terminal error after Frames closes, nil for a clean
	// end of stream.
	Err() error

	// Close releases the source.
	Close() error
}

// EventSourceFactory opens a push transport for the endpoint. The client
// uses it only for plain GET requests with no custom headers or body;
// anything else falls back to the read loop.
type EventSourceFactory func(ctx context.Context, endpoint string) (EventSource, error)
