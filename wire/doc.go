// Package wire implements the two wirekit frame codecs.
//
// The push protocol frames a one-way event stream as newline-delimited
// field lines terminated by a blank line, the format consumed by
// EventSource-style readers:
//
//	event: tick
//	data: {"seq":1}
//
// DecodePushChunk is incremental: feed it the bytes read so far and it
// returns the complete frames plus the unconsumed remainder to prepend
// to the next read.
//
// The socket protocol wraps each message in a JSON envelope
// {"type","data","id"} for bidirectional links; the optional id
// correlates requests with responses.
package wire
