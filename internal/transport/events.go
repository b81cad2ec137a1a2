package transport

import "encoding/json"

// EventType tags a message on the wire. Using a dedicated type keeps
// dispatch keyed on declared constants instead of ad-hoc strings.
type EventType string

const (
	// Client-originated message types.
	EventTypeAuthenticate EventType = "authenticate"
	EventTypeOperation    EventType = "operation"
	EventTypeLock         EventType = "lock"
	EventTypeUnlock       EventType = "unlock"
	EventTypeCursor       EventType = "cursor"

	// Server-originated message types.
	EventTypeAuthResult      EventType = "auth_result"
	EventTypeSync            EventType = "sync"
	EventTypeAck             EventType = "ack"
	EventTypeJoined          EventType = "joined"
	EventTypeLeft            EventType = "left"
	EventTypeConflictDropped EventType = "conflict_dropped"
	EventTypeRestore         EventType = "restore"
	EventTypeError           EventType = "error"
)

// Envelope is the transport-agnostic message frame: a type tag plus an
// opaque payload the handler decodes.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler consumes one inbound envelope. Handlers for the same event
// type run in subscription order on the read loop; a slow handler
// delays the ones behind it.
type Handler func(Envelope)

// HandlerID identifies one subscription so it can be removed without
// comparing function values.
type HandlerID uint64
