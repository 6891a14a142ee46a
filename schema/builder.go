package schema

import (
	"fmt"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/validation"
)

// Builder assembles a Schema from fluent event definitions.
//
//	s, err := schema.NewBuilder().
//	    Event("status").Payload(Status{}).Response(StatusReply{}).
//	    Event("logs").Streams().ChunkSize(256).
//	    Build()
type Builder struct {
	events []*EventBuilder
}

// NewBuilder creates an empty schema builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Event starts the definition of a named event and returns its builder.
func (b *Builder) Event(name string) *EventBuilder {
	eb := &EventBuilder{
		parent: b,
		desc:   Descriptor{Name: name},
	}
	b.events = append(b.events, eb)
	return eb
}

// Build validates the accumulated definitions and returns the Schema.
// Redefining the reserved close event or repeating a name fails with a
// schema violation.
func (b *Builder) Build() (*Schema, error) {
	v := validation.New()
	seen := make(map[string]bool, len(b.events))

	for i, eb := range b.events {
		field := fmt.Sprintf("events[%d].name", i)
		v.Required(field, eb.desc.Name)
		if eb.chunkSet {
			v.Min(fmt.Sprintf("events[%d].chunk_size", i), eb.desc.ChunkSize, 1)
		}

		if eb.desc.Name == EventClose {
			return nil, errors.SchemaViolation(EventClose, "reserved event name cannot be redefined")
		}
		if seen[eb.desc.Name] {
			return nil, errors.SchemaViolation(eb.desc.Name, "duplicate event name")
		}
		seen[eb.desc.Name] = true
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}

	events := make(map[string]Descriptor, len(b.events)+1)
	for _, eb := range b.events {
		events[eb.desc.Name] = eb.desc
	}
	events[EventClose] = Descriptor{Name: EventClose}

	return &Schema{events: events}, nil
}

// EventBuilder configures a single event definition. Its Event and Build
// methods delegate back to the parent builder so definitions chain.
type EventBuilder struct {
	parent   *Builder
	desc     Descriptor
	chunkSet bool
}

// Payload sets the advisory payload shape.
func (eb *EventBuilder) Payload(shape any) *EventBuilder {
	eb.desc.PayloadShape = shape
	return eb
}

// Response sets the advisory response shape for request/response use.
func (eb *EventBuilder) Response(shape any) *EventBuilder {
	eb.desc.ResponseShape = shape
	return eb
}

// Streams marks the event payload as a sequence emitted in chunks.
func (eb *EventBuilder) Streams() *EventBuilder {
	eb.desc.Streams = true
	return eb
}

// ChunkSize sets the per-event batch size for streamed emission.
func (eb *EventBuilder) ChunkSize(n int) *EventBuilder {
	eb.desc.ChunkSize = n
	eb.chunkSet = true
	return eb
}

// Event starts the next event definition on the parent builder.
func (eb *EventBuilder) Event(name string) *EventBuilder {
	return eb.parent.Event(name)
}

// Build finalizes the parent builder.
func (eb *EventBuilder) Build() (*Schema, error) {
	return eb.parent.Build()
}
