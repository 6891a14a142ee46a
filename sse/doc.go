// Package sse emits schema-typed events to consumers over server-push
// framing. A Hub owns the connection registry for one event schema;
// each Connection encodes emits into push frames and hands them to a
// sink through its Frames channel. The bundled HTTP handler attaches
// that channel to a text/event-stream response.
//
// Streamed events are chunked: the payload resolves into a sequence and
// flushes one frame per chunk-size batch. Teardown is idempotent and
// shared by every disconnect trigger, so disconnect hooks run exactly
// once no matter how a connection dies.
//
//	s, _ := schema.NewBuilder().
//		Event("tick").
//		Event("batch").Streams().ChunkSize(100).
//		Build()
//
//	hub := sse.NewHub(s)
//	mux.Handle("/events", sse.Handler(hub))
//	hub.Broadcast(ctx, "tick", map[string]any{"n": 1})
package sse
