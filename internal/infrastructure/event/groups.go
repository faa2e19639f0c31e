package event

import (
	"fmt"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// GroupConfig controls how saga handlers are turned into workers
type GroupConfig struct {
	// Members is the number of workers started per consumer group
	Members int
	// Dedup, when set, absorbs redeliveries of the same envelope per handler
	Dedup    shared.IdempotencyStore
	DedupTTL time.Duration
	Metrics  Metrics
}

// NewSagaWorkers creates the workers of every handler. Each handler gets its own consumer
// group named after it, so every handler sees every envelope of its topics and a slow
// handler never holds back the others.
func NewSagaWorkers(
	transport shared.Transport,
	checkpoints shared.CheckpointStore,
	handlers []SagaHandler,
	cfg GroupConfig,
	logger *zap.Logger,
) ([]*Worker, error) {
	members := cfg.Members
	if members < 1 {
		members = 1
	}

	seen := make(map[string]bool, len(handlers))
	var workers []*Worker
	for _, h := range handlers {
		group := h.Name()
		if seen[group] {
			return nil, fmt.Errorf("duplicate handler name %q", group)
		}
		seen[group] = true

		table := NewDispatchTable()
		if err := table.RegisterSaga(h); err != nil {
			return nil, err
		}
		if cfg.Dedup != nil {
			table = WrapDispatchTable(table, cfg.Dedup, logger, WithIdempotencyConfig(shared.IdempotencyConfig{
				TTL:     cfg.DedupTTL,
				Enabled: true,
			}))
		}

		for i := 0; i < members; i++ {
			opts := []WorkerOption{WithDispatchTable(table)}
			if cfg.Metrics != nil {
				opts = append(opts, WithWorkerMetrics(cfg.Metrics))
			}
			workers = append(workers, NewWorker(transport, checkpoints, h.Subscribes(), group, logger, opts...))
		}
	}
	return workers, nil
}
