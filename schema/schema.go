package schema

import "sort"

// EventClose is the reserved event name used to signal orderly stream
// termination to consumers. It is always present in a built Schema and
// cannot be redefined.
const EventClose = "close"

// DefaultChunkSize is the batch size used for streamed events whose
// descriptor does not set one.
const DefaultChunkSize = 1024

// Descriptor describes a single named event: whether its payload is a
// sequence that should be flushed in batches, how large those batches
// are, and the advisory payload/response shapes.
type Descriptor struct {
	// Name is the event name used on the wire.
	Name string

	// Streams marks the payload as a sequence to be emitted in chunks.
	Streams bool

	// ChunkSize is the number of items per flushed frame for streamed
	// events. Zero means the emitter's default applies.
	ChunkSize int

	// PayloadShape is an advisory example of the payload structure.
	PayloadShape any

	// ResponseShape is an advisory example of the response structure
	// for request/response exchanges over a socket.
	ResponseShape any
}

// Schema is an immutable set of event descriptors keyed by name.
// Build one with NewBuilder. The reserved close event is always present.
type Schema struct {
	events map[string]Descriptor
}

// Lookup returns the descriptor for an event name. A nil schema defines
// no events.
func (s *Schema) Lookup(name string) (Descriptor, bool) {
	if s == nil {
		return Descriptor{}, false
	}
	d, ok := s.events[name]
	return d, ok
}

// Has reports whether the event name is defined.
func (s *Schema) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Names returns all defined event names in sorted order, including
// the reserved close event.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.events))
	for name := range s.events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of defined events, including the reserved
// close event.
func (s *Schema) Len() int {
	return len(s.events)
}
