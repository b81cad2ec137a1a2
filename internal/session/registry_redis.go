package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// Redis key layout
	sessionKeyPrefix = "collab:session:" // collab:session:{documentID}
	sessionSetKey    = "collab:sessions" // set of document IDs with live sessions
)

// RedisRegistry stores session records in Redis so that reconnecting
// clients land on their session regardless of which instance accepted
// the original join, and so a restarted instance can tell which
// documents had live sessions.
type RedisRegistry struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// RedisRegistryConfig configures a RedisRegistry.
type RedisRegistryConfig struct {
	Client *redis.Client
	Logger *zap.Logger

	// TTL is the expiry applied to session records. Records are
	// refreshed on every Put, so only sessions no instance touches
	// anymore fall out. Zero means no expiry.
	TTL time.Duration
}

// NewRedisRegistry creates a Redis-backed session registry.
func NewRedisRegistry(config *RedisRegistryConfig) (*RedisRegistry, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &RedisRegistry{
		client: config.Client,
		logger: config.Logger,
		ttl:    config.TTL,
	}, nil
}

func (r *RedisRegistry) Put(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := sessionKeyPrefix + session.DocumentID

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, data, r.ttl)
	pipe.SAdd(ctx, sessionSetKey, session.DocumentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, docID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+docID).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisRegistry) Delete(ctx context.Context, docID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+docID)
	pipe.SRem(ctx, sessionSetKey, docID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) List(ctx context.Context) ([]*Session, error) {
	docIDs, err := r.client.SMembers(ctx, sessionSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(docIDs))
	for _, docID := range docIDs {
		session, err := r.Get(ctx, docID)
		if err == ErrSessionNotFound {
			// Record expired but the index entry lingered; clean it up.
			if err := r.client.SRem(ctx, sessionSetKey, docID).Err(); err != nil {
				r.logger.Warn("failed to prune stale session index entry",
					zap.String("document_id", docID),
					zap.Error(err))
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

func (r *RedisRegistry) Count(ctx context.Context) (int, error) {
	count, err := r.client.SCard(ctx, sessionSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return int(count), nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
