package cache

import (
	"context"
	"fmt"

	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StoreFactory creates the dedup and join stores, on Redis when a client is available
type StoreFactory struct {
	client                redis.UniversalClient
	keyPrefix             string
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithKeyPrefix sets the namespace of every Redis key (default: "meetprep:")
func WithKeyPrefix(prefix string) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.keyPrefix = prefix
	}
}

// WithInMemoryFallback controls whether the dedup store falls back to memory when Redis is unavailable
// Default is true (allow fallback)
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStoreFactory creates a new factory. client may be nil.
func NewStoreFactory(client redis.UniversalClient, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		client:                client,
		keyPrefix:             "meetprep:",
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *StoreFactory) redisAvailable(ctx context.Context) error {
	if f.client == nil {
		return fmt.Errorf("no Redis client configured")
	}
	return f.client.Ping(ctx).Err()
}

// CreateIdempotencyStore creates a Redis store, falling back to in-memory when allowed
// WARNING: In-memory stores do not share state across process instances,
// which can lead to duplicate processing in distributed deployments
func (f *StoreFactory) CreateIdempotencyStore(ctx context.Context) (shared.IdempotencyStore, error) {
	if err := f.redisAvailable(ctx); err != nil {
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("Redis required for dedup but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
			"This may cause duplicate processing in distributed deployments.",
			zap.Error(err),
		)
		return NewInMemoryIdempotencyStore(), nil
	}
	f.logger.Info("using Redis idempotency store")
	return NewRedisIdempotencyStore(f.client, f.keyPrefix+"dedup:"), nil
}

// CreateJoinStore creates the Redis join store. It never falls back: without
// Redis the server keeps join state in the database instead.
func (f *StoreFactory) CreateJoinStore(ctx context.Context) (meeting.JoinStore, error) {
	if err := f.redisAvailable(ctx); err != nil {
		return nil, fmt.Errorf("Redis required for the meeting join but unavailable: %w", err)
	}
	f.logger.Info("using Redis join store")
	return NewRedisJoinStore(f.client, f.keyPrefix+"join:"), nil
}
