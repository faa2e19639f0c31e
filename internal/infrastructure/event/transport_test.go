package event

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/meetprep/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewTransport(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		tr, err := NewTransport(config.BusConfig{Transport: config.TransportMemory, Partitions: 3}, nil, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &MemoryTransport{}, tr)
		assert.Equal(t, 3, tr.Partitions())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		tr, err := NewTransport(config.BusConfig{Transport: config.TransportRedis, Partitions: 4, Namespace: "test"}, client, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &RedisStreamTransport{}, tr)
		assert.Equal(t, 4, tr.Partitions())
	})

	t.Run("redis without client", func(t *testing.T) {
		_, err := NewTransport(config.BusConfig{Transport: config.TransportRedis}, nil, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewTransport(config.BusConfig{Transport: "kafka"}, nil, zap.NewNop())
		assert.Error(t, err)
	})
}
