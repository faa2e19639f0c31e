// Package scheduler runs periodic maintenance of the event bus
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// CompactionConfig holds configuration for the compaction trigger
type CompactionConfig struct {
	// Interval is how often retained history is compacted
	Interval time.Duration
	// Timeout bounds a single compaction run
	Timeout time.Duration
}

// DefaultCompactionConfig returns default compaction configuration
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		Interval: 10 * time.Minute,
		Timeout:  time.Minute,
	}
}

// CompactionTrigger periodically drops transport history every consumer group has passed
type CompactionTrigger struct {
	config    CompactionConfig
	compactor shared.Compactor
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	runs    atomic.Int64
	dropped atomic.Int64
}

// NewCompactionTrigger creates a new compaction trigger
func NewCompactionTrigger(config CompactionConfig, compactor shared.Compactor, logger *zap.Logger) *CompactionTrigger {
	defaults := DefaultCompactionConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &CompactionTrigger{
		config:    config,
		compactor: compactor,
		logger:    logger,
	}
}

// Start starts the trigger loop. Calling Start on a running trigger is a no-op.
func (c *CompactionTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Compaction trigger started", zap.Duration("interval", c.config.Interval))
	return nil
}

// Stop stops the trigger and waits for a running compaction to finish
func (c *CompactionTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Compaction trigger stopped",
			zap.Int64("runs", c.runs.Load()),
			zap.Int64("dropped", c.dropped.Load()),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CompactionTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.RunOnce(ctx)
		}
	}
}

// RunOnce compacts immediately and returns the number of dropped records
func (c *CompactionTrigger) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	n, err := c.compactor.Compact(ctx)
	c.runs.Add(1)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("Compaction failed", zap.Error(err))
		}
		return 0, err
	}
	c.dropped.Add(n)
	if n > 0 {
		c.logger.Info("Compacted transport history",
			zap.Int64("dropped", n),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return n, nil
}

// Stats returns the number of runs and the total of dropped records
func (c *CompactionTrigger) Stats() (runs, dropped int64) {
	return c.runs.Load(), c.dropped.Load()
}
