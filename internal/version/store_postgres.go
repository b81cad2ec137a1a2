package version

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/aetherflow/collabedit/internal/transform"
)

// PostgresStore is the PostgreSQL implementation of Store. Versions
// are stored keyed by document id and read back ordered by timestamp
// descending.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresStoreConfig configures a PostgresStore.
type PostgresStoreConfig struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// NewPostgresStore creates a PostgreSQL-backed version store.
func NewPostgresStore(config *PostgresStoreConfig) (*PostgresStore, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &PostgresStore{
		db:     config.DB,
		logger: config.Logger,
	}, nil
}

// InitSchema creates the versions table when it does not exist yet.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS document_versions (
			id          UUID PRIMARY KEY,
			document_id TEXT NOT NULL,
			content     TEXT NOT NULL,
			operations  JSONB NOT NULL DEFAULT '[]',
			created_at  TIMESTAMPTZ NOT NULL,
			author      TEXT NOT NULL,
			message     TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_document_versions_doc
			ON document_versions (document_id, created_at DESC);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to init versions schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveVersion(ctx context.Context, docID, content, author, message string, ops []transform.Operation) (*Version, error) {
	versionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate version ID: %w", err)
	}

	if ops == nil {
		ops = []transform.Operation{}
	}
	opsJSON, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal operations: %w", err)
	}

	v := &Version{
		ID:         versionID.String(),
		DocumentID: docID,
		Content:    content,
		Operations: ops,
		Timestamp:  time.Now(),
		Author:     author,
		Message:    message,
	}

	query := `
		INSERT INTO document_versions (
			id, document_id, content, operations, created_at, author, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.db.ExecContext(ctx, query,
		v.ID,
		v.DocumentID,
		v.Content,
		opsJSON,
		v.Timestamp,
		v.Author,
		v.Message,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("version %s already exists: %w", v.ID, err)
		}
		s.logger.Error("Failed to save version",
			zap.String("doc_id", docID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to save version: %w", err)
	}

	return v, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, docID, versionID string) (*Version, error) {
	query := `
		SELECT id, document_id, content, operations, created_at, author, message
		FROM document_versions
		WHERE document_id = $1 AND id = $2`

	v, err := s.scanVersion(s.db.QueryRowContext(ctx, query, docID, versionID))
	if err == sql.ErrNoRows {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) GetVersionHistory(ctx context.Context, docID string) ([]*Version, error) {
	query := `
		SELECT id, document_id, content, operations, created_at, author, message
		FROM document_versions
		WHERE document_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*Version, 0)
	for rows.Next() {
		v, err := s.scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate versions: %w", err)
	}

	return versions, nil
}

func (s *PostgresStore) LatestVersion(ctx context.Context, docID string) (*Version, error) {
	query := `
		SELECT id, document_id, content, operations, created_at, author, message
		FROM document_versions
		WHERE document_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	v, err := s.scanVersion(s.db.QueryRowContext(ctx, query, docID))
	if err == sql.ErrNoRows {
		return nil, ErrNoVersions
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) CountVersions(ctx context.Context, docID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_versions WHERE document_id = $1`, docID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count versions: %w", err)
	}
	return count, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanVersion(row scanner) (*Version, error) {
	var v Version
	var opsJSON []byte

	err := row.Scan(
		&v.ID,
		&v.DocumentID,
		&v.Content,
		&opsJSON,
		&v.Timestamp,
		&v.Author,
		&v.Message,
	)
	if err != nil {
		return nil, err
	}

	if len(opsJSON) > 0 {
		if err := json.Unmarshal(opsJSON, &v.Operations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal operations: %w", err)
		}
	}

	return &v, nil
}
