package wire

import (
	"encoding/json"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/schema"
)

// Envelope is the socket protocol message: a named event with an
// optional payload and an optional correlation id.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	ID   string          `json:"id,omitempty"`
}

// EncodeSocket marshals an envelope for the named event. The id is
// omitted from the wire form when empty.
func EncodeSocket(name string, payload any, id string) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.SerializationFailure(name, err)
		}
		data = b
	}

	frame, err := json.Marshal(Envelope{Type: name, Data: data, ID: id})
	if err != nil {
		return nil, errors.SerializationFailure(name, err)
	}
	return frame, nil
}

// DecodeSocket parses raw bytes as an envelope. It reports true only for
// well-formed envelopes whose type is a non-empty name defined in the
// schema; everything else is opaque (false) and should be routed to the
// raw catch-all handler rather than dropped. A nil schema accepts any
// non-empty type.
func DecodeSocket(raw []byte, s *schema.Schema) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, false
	}
	if env.Type == "" {
		return Envelope{}, false
	}
	if s != nil && !s.Has(env.Type) {
		return Envelope{}, false
	}
	return env, true
}
