package event

import (
	"fmt"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewTransport builds the transport selected by cfg.Transport. client is required for the
// redis transport and ignored otherwise.
func NewTransport(cfg config.BusConfig, client redis.UniversalClient, logger *zap.Logger) (shared.Transport, error) {
	switch cfg.Transport {
	case config.TransportMemory, "":
		return NewMemoryTransport(cfg.Partitions, WithMemoryBatchSize(cfg.BatchSize)), nil
	case config.TransportRedis:
		if client == nil {
			return nil, fmt.Errorf("redis transport requires a redis client")
		}
		return NewRedisStreamTransport(client, RedisStreamConfig{
			Namespace:  cfg.Namespace,
			Partitions: cfg.Partitions,
			Block:      cfg.Block,
			LeaseTTL:   cfg.LeaseTTL,
			BatchSize:  int64(cfg.BatchSize),
		}, logger.Named("redis-transport")), nil
	default:
		return nil, fmt.Errorf("unknown bus transport %q", cfg.Transport)
	}
}
