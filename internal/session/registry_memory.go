package session

import (
	"context"
	"sync"
)

// MemoryRegistry is the in-process Registry used for single-instance
// deployments and tests.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryRegistry creates an in-memory session registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]*Session),
	}
}

func (r *MemoryRegistry) Put(ctx context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	copied.Participants = append([]string(nil), session.Participants...)
	r.sessions[session.DocumentID] = &copied
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, docID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[docID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	copied := *session
	copied.Participants = append([]string(nil), session.Participants...)
	return &copied, nil
}

func (r *MemoryRegistry) Delete(ctx context.Context, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, docID)
	return nil
}

func (r *MemoryRegistry) List(ctx context.Context) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		copied := *session
		copied.Participants = append([]string(nil), session.Participants...)
		result = append(result, &copied)
	}
	return result, nil
}

func (r *MemoryRegistry) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), nil
}

func (r *MemoryRegistry) Close() error {
	return nil
}
