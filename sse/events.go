package sse

// EventConnected is emitted to a consumer right after it attaches, when
// the schema declares it. Schemas that omit it get no greeting frame.
const EventConnected = "connected"

// ConnectedEvent is the payload of the connected event.
type ConnectedEvent struct {
	ClientID string            `json:"client_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
