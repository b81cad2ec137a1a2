package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestRedisRegistry connects to the Redis named by
// COLLABEDIT_REDIS_ADDR. Tests are skipped when the variable is unset
// or Redis is unreachable.
func newTestRedisRegistry(t *testing.T, ttl time.Duration) *RedisRegistry {
	addr := os.Getenv("COLLABEDIT_REDIS_ADDR")
	if addr == "" {
		t.Skip("COLLABEDIT_REDIS_ADDR not set, skipping Redis tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not reachable: %v", err)
	}

	r, err := NewRedisRegistry(&RedisRegistryConfig{
		Client: client,
		Logger: zaptest.NewLogger(t),
		TTL:    ttl,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		r.Close()
	})

	return r
}

func redisTestDocID(t *testing.T) string {
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return "test-doc-" + id.String()
}

func TestRedisRegistryPutGetDelete(t *testing.T) {
	r := newTestRedisRegistry(t, time.Minute)
	ctx := context.Background()
	docID := redisTestDocID(t)

	require.NoError(t, r.Put(ctx, testSession(docID, "u1", "u2")))

	got, err := r.Get(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, docID, got.DocumentID)
	assert.Equal(t, []string{"u1", "u2"}, got.Participants)

	require.NoError(t, r.Delete(ctx, docID))
	_, err = r.Get(ctx, docID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisRegistryGetMissing(t *testing.T) {
	r := newTestRedisRegistry(t, time.Minute)

	_, err := r.Get(context.Background(), redisTestDocID(t))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisRegistryListAndCount(t *testing.T) {
	r := newTestRedisRegistry(t, time.Minute)
	ctx := context.Background()

	doc1, doc2 := redisTestDocID(t), redisTestDocID(t)
	require.NoError(t, r.Put(ctx, testSession(doc1, "u1")))
	require.NoError(t, r.Put(ctx, testSession(doc2, "u2")))
	t.Cleanup(func() {
		r.Delete(ctx, doc1)
		r.Delete(ctx, doc2)
	})

	sessions, err := r.List(ctx)
	require.NoError(t, err)
	found := map[string]bool{}
	for _, s := range sessions {
		found[s.DocumentID] = true
	}
	assert.True(t, found[doc1])
	assert.True(t, found[doc2])

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}

func TestRedisRegistryTTLExpiry(t *testing.T) {
	r := newTestRedisRegistry(t, 100*time.Millisecond)
	ctx := context.Background()
	docID := redisTestDocID(t)

	require.NoError(t, r.Put(ctx, testSession(docID, "u1")))
	time.Sleep(200 * time.Millisecond)

	_, err := r.Get(ctx, docID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// List prunes the stale index entry for the expired record.
	sessions, err := r.List(ctx)
	require.NoError(t, err)
	for _, s := range sessions {
		assert.NotEqual(t, docID, s.DocumentID)
	}
}
