package version

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestPostgresStore connects to the database named by
// COLLABEDIT_POSTGRES_DSN. Tests are skipped when the variable is unset
// or the database is unreachable.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	dsn := os.Getenv("COLLABEDIT_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COLLABEDIT_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("PostgreSQL not reachable: %v", err)
	}

	store, err := NewPostgresStore(&PostgresStoreConfig{
		DB:     db,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	require.NoError(t, store.InitSchema(context.Background()))

	t.Cleanup(func() {
		db.Close()
	})

	return store
}

// testDocID returns a fresh document id so runs do not interfere.
func testDocID(t *testing.T) string {
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return "test-doc-" + id.String()
}

func TestPostgresStoreSaveAndGet(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	docID := testDocID(t)

	v, err := store.SaveVersion(ctx, docID, "hello world", "u1", "initial checkpoint", testOps("op1", "op2"))
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)

	got, err := store.GetVersion(ctx, docID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)
	assert.Equal(t, "hello world", got.Content)
	assert.Equal(t, "u1", got.Author)
	assert.Equal(t, "initial checkpoint", got.Message)
	assert.Len(t, got.Operations, 2)
	assert.Equal(t, "op1", got.Operations[0].ID)
}

func TestPostgresStoreGetVersionNotFound(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	docID := testDocID(t)

	missing, err := uuid.NewV7()
	require.NoError(t, err)

	_, err = store.GetVersion(ctx, docID, missing.String())
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestPostgresStoreHistoryNewestFirst(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	docID := testDocID(t)

	v1, err := store.SaveVersion(ctx, docID, "a", "u1", "first", nil)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	v2, err := store.SaveVersion(ctx, docID, "ab", "u1", "second", nil)
	require.NoError(t, err)

	history, err := store.GetVersionHistory(ctx, docID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, v2.ID, history[0].ID)
	assert.Equal(t, v1.ID, history[1].ID)

	latest, err := store.LatestVersion(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, latest.ID)
}

func TestPostgresStoreLatestVersionEmpty(t *testing.T) {
	store := newTestPostgresStore(t)

	_, err := store.LatestVersion(context.Background(), testDocID(t))
	assert.ErrorIs(t, err, ErrNoVersions)
}

func TestPostgresStoreCountVersions(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	docID := testDocID(t)

	n, err := store.CountVersions(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = store.SaveVersion(ctx, docID, "a", "u1", "", nil)
	require.NoError(t, err)
	_, err = store.SaveVersion(ctx, docID, "ab", "u1", "", nil)
	require.NoError(t, err)

	n, err = store.CountVersions(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPostgresStoreEmptyOperations(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	docID := testDocID(t)

	v, err := store.SaveVersion(ctx, docID, "content", "u1", "", nil)
	require.NoError(t, err)

	got, err := store.GetVersion(ctx, docID, v.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Operations)
}
