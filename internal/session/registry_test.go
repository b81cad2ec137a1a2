package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testSession(docID string, participants ...string) *Session {
	return &Session{
		ID:           "sess-" + docID,
		DocumentID:   docID,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		Participants: participants,
	}
}

func TestMemoryRegistryPutGet(t *testing.T) {
	r := NewMemoryRegistry()
	defer r.Close()
	ctx := context.Background()

	if err := r.Put(ctx, testSession("doc1", "u1", "u2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := r.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.DocumentID != "doc1" || len(got.Participants) != 2 {
		t.Errorf("unexpected record: %+v", got)
	}

	if _, err := r.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryRegistryPutOverwrites(t *testing.T) {
	r := NewMemoryRegistry()
	defer r.Close()
	ctx := context.Background()

	r.Put(ctx, testSession("doc1", "u1"))
	r.Put(ctx, testSession("doc1", "u1", "u2"))

	got, _ := r.Get(ctx, "doc1")
	if len(got.Participants) != 2 {
		t.Errorf("record not overwritten: %+v", got)
	}

	n, _ := r.Count(ctx)
	if n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestMemoryRegistryDelete(t *testing.T) {
	r := NewMemoryRegistry()
	defer r.Close()
	ctx := context.Background()

	r.Put(ctx, testSession("doc1", "u1"))
	if err := r.Delete(ctx, "doc1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := r.Get(ctx, "doc1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}

	// Deleting a missing record is a no-op.
	if err := r.Delete(ctx, "doc1"); err != nil {
		t.Errorf("repeated delete failed: %v", err)
	}
}

func TestMemoryRegistryList(t *testing.T) {
	r := NewMemoryRegistry()
	defer r.Close()
	ctx := context.Background()

	r.Put(ctx, testSession("doc1", "u1"))
	r.Put(ctx, testSession("doc2", "u2"))

	sessions, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("expected 2 records, got %d", len(sessions))
	}
}

func TestMemoryRegistryReturnsCopies(t *testing.T) {
	r := NewMemoryRegistry()
	defer r.Close()
	ctx := context.Background()

	original := testSession("doc1", "u1")
	r.Put(ctx, original)

	// Mutating either side must not leak into the stored record.
	original.Participants[0] = "tampered"
	got, _ := r.Get(ctx, "doc1")
	if got.Participants[0] != "u1" {
		t.Errorf("stored record aliased the caller's slice: %v", got.Participants)
	}

	got.Participants[0] = "tampered"
	again, _ := r.Get(ctx, "doc1")
	if again.Participants[0] != "u1" {
		t.Errorf("returned record aliased storage: %v", again.Participants)
	}
}
