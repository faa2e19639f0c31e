package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStoreFactory_UsesRedisWhenAvailable(t *testing.T) {
	_, client := newMiniredisClient(t)
	f := NewStoreFactory(client, WithLogger(zap.NewNop()), WithKeyPrefix("test:"))
	ctx := context.Background()

	dedup, err := f.CreateIdempotencyStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &RedisIdempotencyStore{}, dedup)

	join, err := f.CreateJoinStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &RedisJoinStore{}, join)
}

func TestStoreFactory_Fallback(t *testing.T) {
	ctx := context.Background()

	f := NewStoreFactory(nil)
	dedup, err := f.CreateIdempotencyStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryIdempotencyStore{}, dedup)
	defer dedup.Close()

	_, err = f.CreateJoinStore(ctx)
	assert.Error(t, err, "join store never falls back to memory")

	strict := NewStoreFactory(nil, WithInMemoryFallback(false))
	_, err = strict.CreateIdempotencyStore(ctx)
	assert.Error(t, err)
	_, err = strict.CreateJoinStore(ctx)
	assert.Error(t, err)
}

func TestStoreFactory_JoinStoreRequiresReachableRedis(t *testing.T) {
	mr, client := newMiniredisClient(t)
	f := NewStoreFactory(client)
	mr.Close()

	join, err := f.CreateJoinStore(context.Background())
	assert.Nil(t, join)
	assert.ErrorContains(t, err, "meeting join")
}
