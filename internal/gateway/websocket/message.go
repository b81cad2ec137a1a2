package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aetherflow/collabedit/internal/session"
	"github.com/aetherflow/collabedit/internal/transform"
)

// MessageType tags a websocket frame.
type MessageType string

const (
	// Connection-level messages.
	MessageTypePing       MessageType = "ping"
	MessageTypePong       MessageType = "pong"
	MessageTypeAuth       MessageType = "authenticate"
	MessageTypeAuthResult MessageType = "auth_result"
	MessageTypeError      MessageType = "error"

	// Collaboration messages.
	MessageTypeOperation MessageType = "operation"
	MessageTypeLock      MessageType = "lock"
	MessageTypeUnlock    MessageType = "unlock"
	MessageTypeCursor    MessageType = "cursor"

	// Server-pushed messages.
	MessageTypeSync            MessageType = "sync"
	MessageTypeAck             MessageType = "ack"
	MessageTypeJoined          MessageType = "joined"
	MessageTypeLeft            MessageType = "left"
	MessageTypeConflictDropped MessageType = "conflict_dropped"
	MessageTypeRestore         MessageType = "restore"
)

// Message is the websocket frame: a typed envelope around a JSON
// payload.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// NewMessage creates a message with a marshaled payload. A payload
// that fails to marshal yields a message with empty data; callers
// pass plain structs so that does not happen in practice.
func NewMessage(msgType MessageType, data interface{}) *Message {
	msg := &Message{
		ID:        newMessageID(),
		Type:      msgType,
		Timestamp: time.Now(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			msg.Data = raw
		}
	}
	return msg
}

// NewErrorMessage creates an error frame.
func NewErrorMessage(err string) *Message {
	return &Message{
		ID:        newMessageID(),
		Type:      MessageTypeError,
		Timestamp: time.Now(),
		Error:     err,
	}
}

// ToJSON serializes the message.
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON parses a wire frame.
func FromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeData unmarshals the payload into v.
func (m *Message) DecodeData(v interface{}) error {
	return json.Unmarshal(m.Data, v)
}

// AuthData is the first message a client sends: credentials plus the
// document it wants to join.
type AuthData struct {
	Token      string `json:"token,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	UserName   string `json:"user_name,omitempty"`
	DocumentID string `json:"document_id"`
}

// AuthResult reports the outcome of authentication.
type AuthResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// OperationData carries one edit and the session version its author
// based it on.
type OperationData struct {
	Operation   transform.Operation `json:"operation"`
	BaseVersion uint64              `json:"base_version"`
}

// LockData is a lock or unlock request for [Start, End).
type LockData struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CursorData is an ephemeral presence update.
type CursorData struct {
	Cursor transform.CursorPosition `json:"cursor"`
}

// SyncData is the full document state pushed right after a successful
// join, and whenever the client must resynchronize.
type SyncData struct {
	Content      string         `json:"content"`
	Version      uint64         `json:"version"`
	Participants []string       `json:"participants"`
	Locks        []session.Lock `json:"locks"`
}

// AckData confirms receipt of an operation. Applied is false when the
// operation was deduplicated or dropped by conflict resolution.
type AckData struct {
	OperationID string `json:"operation_id"`
	Applied     bool   `json:"applied"`
	Version     uint64 `json:"version,omitempty"`
}

// EventData wraps a broadcast session event for participants.
type EventData struct {
	DocumentID string                    `json:"document_id,omitempty"`
	UserID     string                    `json:"user_id,omitempty"`
	Operation  *transform.Operation      `json:"operation,omitempty"`
	Lock       *session.Lock             `json:"lock,omitempty"`
	Cursor     *transform.CursorPosition `json:"cursor,omitempty"`
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "unknown"
	}
	return id.String()
}
