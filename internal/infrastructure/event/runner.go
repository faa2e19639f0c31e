package event

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner runs a set of workers together. The first worker to fail cancels the others.
type Runner struct {
	workers     []*Worker
	stopTimeout time.Duration
	logger      *zap.Logger
}

// NewRunner creates a runner. stopTimeout bounds the graceful drain on shutdown.
func NewRunner(logger *zap.Logger, stopTimeout time.Duration, workers ...*Worker) *Runner {
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &Runner{workers: workers, stopTimeout: stopTimeout, logger: logger}
}

// Add appends a worker. It must be called before Run.
func (r *Runner) Add(w *Worker) {
	r.workers = append(r.workers, w)
}

// Workers returns the managed workers
func (r *Runner) Workers() []*Worker {
	return r.workers
}

// Run starts every worker and blocks until ctx is cancelled or a worker fails. On return
// all workers have been stopped.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		w := w
		g.Go(func() error {
			return w.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.stopTimeout)
		defer cancel()
		for _, w := range r.workers {
			if err := w.Stop(stopCtx); err != nil {
				r.logger.Warn("worker did not stop cleanly",
					zap.String("group", w.Group()),
					zap.String("member", w.Member()),
					zap.Error(err),
				)
			}
		}
		return nil
	})

	r.logger.Info("worker runner started", zap.Int("workers", len(r.workers)))
	err := g.Wait()
	r.logger.Info("worker runner stopped")
	return err
}
