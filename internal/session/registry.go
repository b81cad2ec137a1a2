package session

import "context"

// Registry is the durable record of live sessions, shared across
// process restarts and, with the Redis implementation, across
// instances. It stores only session metadata; the mutable buffer,
// lock, and cursor state never leaves the Manager. Writes are
// best-effort: the Manager logs registry failures and keeps serving
// from memory.
type Registry interface {
	// Put stores or replaces a session record.
	Put(ctx context.Context, session *Session) error

	// Get retrieves a session record by document id, or
	// ErrSessionNotFound.
	Get(ctx context.Context, docID string) (*Session, error)

	// Delete removes a session record. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, docID string) error

	// List returns all known session records.
	List(ctx context.Context) ([]*Session, error)

	// Count returns the number of known sessions.
	Count(ctx context.Context) (int, error)

	// Close releases the registry's resources.
	Close() error
}
