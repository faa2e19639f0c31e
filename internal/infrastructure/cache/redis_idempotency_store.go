package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// DefaultIdempotencyKeyPrefix namespaces dedup keys
const DefaultIdempotencyKeyPrefix = "meetprep:dedup:"

// RedisIdempotencyStore implements IdempotencyStore using Redis
// This is suitable for distributed deployments where multiple workers
// need to share dedup state
type RedisIdempotencyStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisIdempotencyStore creates a store on a shared Redis client
func NewRedisIdempotencyStore(client redis.UniversalClient, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = DefaultIdempotencyKeyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkProcessed marks an envelope as processed with a TTL
// Returns true if the envelope was newly marked, false if it was already processed
// Uses SETNX (SET if Not eXists) for atomic operation
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, envelopeID string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetNX(ctx, s.keyPrefix+envelopeID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark envelope as processed: %w", err)
	}
	return result, nil
}

// IsProcessed checks if an envelope has already been processed
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, envelopeID string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.keyPrefix+envelopeID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if envelope is processed: %w", err)
	}
	return exists > 0, nil
}

// Close is a no-op: the client is shared and closed by its owner
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

// Ensure RedisIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
