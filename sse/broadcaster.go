package sse

import "context"

// Broadcaster is the hub's fan-out surface. Handlers and services can
// depend on it instead of the concrete Hub.
type Broadcaster interface {
	// Broadcast emits the event to every registered connection.
	Broadcast(ctx context.Context, event string, payload any) BroadcastResult

	// BroadcastMatch emits the event to connections whose id matches the
	// glob pattern (e.g. "job:*" or "job:abc123").
	BroadcastMatch(ctx context.Context, pattern, event string, payload any) BroadcastResult
}

var _ Broadcaster = (*Hub)(nil)
