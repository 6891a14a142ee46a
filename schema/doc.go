// Package schema defines the event vocabulary shared by wirekit emitters
// and consumers.
//
// A Schema maps event names to descriptors: whether the payload is a
// streamed sequence, the chunk size used when flushing it, and advisory
// payload/response shapes. Both transports (SSE push and bidirectional
// sockets) validate event names against the same Schema, so the producer
// and consumer sides of a service agree on one vocabulary.
//
//	s, err := schema.NewBuilder().
//	    Event("tick").Payload(Tick{}).
//	    Event("logs").Streams().ChunkSize(256).
//	    Event("status").Response(StatusReply{}).
//	    Build()
//
// The name "close" is reserved for orderly termination and is present in
// every built Schema; redefining it is a schema violation.
package schema
