package version

import (
	"context"
	"errors"
	"time"

	"github.com/aetherflow/collabedit/internal/transform"
)

var (
	ErrVersionNotFound = errors.New("version not found")
	ErrNoVersions      = errors.New("no versions for document")
)

// Version is a durable, full-content checkpoint of a document plus the
// operations applied since the prior checkpoint. Immutable once
// created; restore is a full-content replace, never an operation
// replay.
type Version struct {
	ID         string                `json:"id"`
	DocumentID string                `json:"document_id"`
	Content    string                `json:"content"`
	Operations []transform.Operation `json:"operations"`
	Timestamp  time.Time             `json:"timestamp"`
	Author     string                `json:"author"`
	Message    string                `json:"message,omitempty"`
}

// Store is the durable version history of documents, keyed by document
// id. It is the only component permitted to persist versions; live
// session state stays with the session manager.
type Store interface {
	// SaveVersion persists a new immutable version and returns it. ops
	// are the operations applied since the previous version.
	SaveVersion(ctx context.Context, docID, content, author, message string, ops []transform.Operation) (*Version, error)

	// GetVersion retrieves one version of a document.
	GetVersion(ctx context.Context, docID, versionID string) (*Version, error)

	// GetVersionHistory returns all versions of a document ordered
	// newest-first.
	GetVersionHistory(ctx context.Context, docID string) ([]*Version, error)

	// LatestVersion returns the most recent version, or ErrNoVersions
	// when the document has never been checkpointed.
	LatestVersion(ctx context.Context, docID string) (*Version, error)

	// CountVersions returns the number of versions stored for a
	// document.
	CountVersions(ctx context.Context, docID string) (int, error)
}
