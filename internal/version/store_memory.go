package version

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aetherflow/collabedit/internal/transform"
)

// MemoryStore is an in-memory Store implementation for development and
// tests.
type MemoryStore struct {
	mu sync.RWMutex

	// versionsByDoc holds each document's versions newest-first.
	versionsByDoc map[string][]*Version
}

// NewMemoryStore creates an in-memory version store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versionsByDoc: make(map[string][]*Version),
	}
}

func (s *MemoryStore) SaveVersion(ctx context.Context, docID, content, author, message string, ops []transform.Operation) (*Version, error) {
	versionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate version ID: %w", err)
	}

	v := &Version{
		ID:         versionID.String(),
		DocumentID: docID,
		Content:    content,
		Operations: append([]transform.Operation(nil), ops...),
		Timestamp:  time.Now(),
		Author:     author,
		Message:    message,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Prepend: history is kept newest-first.
	s.versionsByDoc[docID] = append([]*Version{v}, s.versionsByDoc[docID]...)

	return copyVersion(v), nil
}

func (s *MemoryStore) GetVersion(ctx context.Context, docID, versionID string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.versionsByDoc[docID] {
		if v.ID == versionID {
			return copyVersion(v), nil
		}
	}
	return nil, ErrVersionNotFound
}

func (s *MemoryStore) GetVersionHistory(ctx context.Context, docID string) ([]*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versionsByDoc[docID]
	result := make([]*Version, 0, len(versions))
	for _, v := range versions {
		result = append(result, copyVersion(v))
	}
	return result, nil
}

func (s *MemoryStore) LatestVersion(ctx context.Context, docID string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versionsByDoc[docID]
	if len(versions) == 0 {
		return nil, ErrNoVersions
	}
	return copyVersion(versions[0]), nil
}

func (s *MemoryStore) CountVersions(ctx context.Context, docID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.versionsByDoc[docID]), nil
}

// copyVersion returns a copy so callers cannot mutate stored history.
func copyVersion(v *Version) *Version {
	c := *v
	c.Operations = append([]transform.Operation(nil), v.Operations...)
	return &c
}
