package transform

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrOutOfBounds      = errors.New("operation out of bounds")
	ErrOverlap          = errors.New("operations overlap")
	ErrInvalidOperation = errors.New("invalid operation")
)

// Type is the kind of edit an operation performs.
type Type string

const (
	TypeInsert  Type = "insert"
	TypeDelete  Type = "delete"
	TypeReplace Type = "replace"
)

// CursorPosition is the author's cursor and selection at authoring time.
// Ephemeral presence data, never persisted.
type CursorPosition struct {
	Position  int    `json:"position"`
	Selection [2]int `json:"selection"`
}

// Operation is an atomic edit intent authored by one participant.
//
// An Operation is immutable once created. Transform returns adjusted
// copies and never mutates its arguments.
type Operation struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Position  int             `json:"position"`
	Content   string          `json:"content"`
	UserID    string          `json:"user_id"`
	UserName  string          `json:"user_name,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Cursor    *CursorPosition `json:"cursor,omitempty"`
}

// Validate checks the operation's intrinsic fields. Bounds against a
// concrete buffer are checked by Apply.
func (op Operation) Validate() error {
	if op.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidOperation)
	}
	if op.Position < 0 {
		return fmt.Errorf("%w: negative position", ErrInvalidOperation)
	}
	switch op.Type {
	case TypeInsert, TypeDelete, TypeReplace:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, op.Type)
	}
	if op.Content == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidOperation)
	}
	return nil
}

// Span returns the half-open range [start, end) of the buffer the
// operation affects: [Position, Position+len(Content)).
func (op Operation) Span() (start, end int) {
	return op.Position, op.Position + len(op.Content)
}

// LengthDelta returns the net change in buffer length after applying
// the operation.
func (op Operation) LengthDelta() int {
	switch op.Type {
	case TypeInsert:
		return len(op.Content)
	case TypeDelete:
		return -len(op.Content)
	default: // replace removes and re-inserts the same length
		return 0
	}
}

// withPosition returns a copy of op at a shifted position.
func (op Operation) withPosition(pos int) Operation {
	op.Position = pos
	return op
}

// Before reports whether a precedes b in the total order used to break
// positional ties: by timestamp, then user id, then operation id. The
// order is identical on every participant, which is what makes the
// insert tie-break deterministic.
func Before(a, b Operation) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.UserID != b.UserID {
		return a.UserID < b.UserID
	}
	return a.ID < b.ID
}
