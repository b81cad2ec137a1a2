package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/aetherflow/collabedit/internal/transform"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotParticipant  = errors.New("user is not a session participant")
	ErrLockOverlap     = errors.New("lock range overlaps an existing lock")
	ErrRangeLocked     = errors.New("range is locked by another user")
	ErrStaleBase       = errors.New("operation base version is outside the session history")
	ErrManagerClosed   = errors.New("manager is closed")
	ErrInvalidRange    = errors.New("invalid range")
)

// Session is the metadata of one collaboratively-edited document: the
// live context binding a document to its connected participants. The
// heavier mutable state (buffer, locks, cursors, history) stays inside
// the manager and is exposed through accessors returning copies.
type Session struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Participants []string  `json:"participants"`
}

// Lock is an exclusive claim on a half-open byte range [Start, End) of
// the document. Locks from different users never overlap; a user's own
// locks may. Locks do not expire on their own: they are released by an
// explicit unlock or when the holder leaves the session.
type Lock struct {
	Start      int       `json:"start"`
	End        int       `json:"end"`
	UserID     string    `json:"user_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Overlaps reports whether the lock's range intersects [start, end).
func (l Lock) Overlaps(start, end int) bool {
	return l.Start < end && start < l.End
}

// docState is the authoritative live state of one document session.
// All access is serialized by its mutex; sessions for different
// documents never block each other.
type docState struct {
	mu sync.Mutex

	id         string
	documentID string

	createdAt    time.Time
	lastActivity time.Time

	// participants maps user id to join time. A set keyed by user id
	// is what keeps joins idempotent.
	participants map[string]time.Time
	cursors      map[string]transform.CursorPosition
	locks        []Lock

	content string
	// version counts applied operations since the session was loaded.
	version uint64
	// history holds the operations applied since historyBase; the
	// entry at index i was applied at version historyBase+i+1. A
	// restore wipes history and moves the base forward, so bases from
	// before the restore can no longer be transformed against.
	history     []transform.Operation
	historyBase uint64
	// applied records operation ids for at-least-once dedup.
	applied map[string]struct{}

	// checkpointed is the number of history entries already persisted
	// to the version store.
	checkpointed int

	// idleSince is set when the last participant leaves; zero while
	// the session is occupied.
	idleSince time.Time
}

// snapshot builds the exported Session view. Caller holds d.mu.
func (d *docState) snapshot() *Session {
	users := make([]string, 0, len(d.participants))
	for user := range d.participants {
		users = append(users, user)
	}
	sort.Strings(users)

	return &Session{
		ID:           d.id,
		DocumentID:   d.documentID,
		CreatedAt:    d.createdAt,
		LastActivity: d.lastActivity,
		Participants: users,
	}
}

// touch updates the activity clock. Caller holds d.mu.
func (d *docState) touch() {
	d.lastActivity = time.Now()
}
