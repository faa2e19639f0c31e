package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrWorkerRunning is returned by Start when the worker already runs
var ErrWorkerRunning = errors.New("worker already running")

// Worker is one member of a consumer group. It receives the envelopes of its partitions one
// at a time, dispatches those matching its subscription and commits the checkpoint after
// every delivery, whatever the handler outcome.
type Worker struct {
	transport    shared.Transport
	checkpoints  shared.CheckpointStore
	subscription topic.Set
	group        string
	member       string
	table        *DispatchTable
	serializer   *EnvelopeSerializer
	logger       *zap.Logger
	metrics      Metrics
	idleTimeout  time.Duration

	running      atomic.Bool
	lastActivity atomic.Int64
	mu           sync.Mutex
	cancel       context.CancelFunc
	abort        context.CancelFunc
	done         chan struct{}

	delivered atomic.Int64
	failed    atomic.Int64
}

// WorkerOption is a functional option for Worker
type WorkerOption func(*Worker)

// WithDispatchTable sets the handlers of the worker
func WithDispatchTable(table *DispatchTable) WorkerOption {
	return func(w *Worker) {
		w.table = table
	}
}

// WithMember sets the member name (default: random)
func WithMember(member string) WorkerOption {
	return func(w *Worker) {
		w.member = member
	}
}

// WithWorkerMetrics sets the metrics sink
func WithWorkerMetrics(m Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithIdleTimeout makes Start return once no delivery arrived for d
func WithIdleTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.idleTimeout = d
	}
}

// NewWorker creates a consumer group member
func NewWorker(
	transport shared.Transport,
	checkpoints shared.CheckpointStore,
	subscription topic.Set,
	group string,
	logger *zap.Logger,
	opts ...WorkerOption,
) *Worker {
	w := &Worker{
		transport:    transport,
		checkpoints:  checkpoints,
		subscription: subscription,
		group:        group,
		member:       group + "-" + uuid.NewString()[:8],
		table:        NewDispatchTable(),
		serializer:   NewEnvelopeSerializer(),
		logger:       logger,
		metrics:      noopMetrics{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("group", w.group), zap.String("member", w.member))
	return w
}

// NewDrainWorker creates a member that subscribes to everything and handles nothing. It only
// moves the group's checkpoints forward.
func NewDrainWorker(transport shared.Transport, checkpoints shared.CheckpointStore, group string, logger *zap.Logger, opts ...WorkerOption) *Worker {
	opts = append([]WorkerOption{WithDispatchTable(NewDispatchTable())}, opts...)
	return NewWorker(transport, checkpoints, topic.Wildcard, group, logger, opts...)
}

// Group returns the consumer group name
func (w *Worker) Group() string { return w.group }

// Member returns the member name
func (w *Worker) Member() string { return w.member }

// Delivered returns the number of deliveries processed so far
func (w *Worker) Delivered() int64 { return w.delivered.Load() }

// Failed returns the number of handler failures so far
func (w *Worker) Failed() int64 { return w.failed.Load() }

// Start consumes until Stop is called, ctx is cancelled or the idle timeout elapses.
func (w *Worker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrWorkerRunning
	}
	defer w.running.Store(false)

	consumeCtx, cancel := context.WithCancel(ctx)
	// handlers outlive the consume loop so an in-flight handler can finish after Stop
	handlerCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	w.mu.Lock()
	w.cancel, w.abort, w.done = cancel, abort, done
	w.mu.Unlock()
	defer func() {
		cancel()
		abort()
		close(done)
	}()

	w.lastActivity.Store(time.Now().UnixNano())
	if w.idleTimeout > 0 {
		go w.watchIdle(consumeCtx, cancel)
	}

	w.logger.Info("worker started",
		zap.Strings("topics", topicNames(w.subscription)),
		zap.Int("handlers", w.table.Len()),
	)

	req := shared.ConsumeRequest{
		Group:  w.group,
		Member: w.member,
		Cursor: func(ctx context.Context, partition int) (string, error) {
			return w.checkpoints.Load(ctx, w.group, partition)
		},
	}
	err := w.transport.Consume(consumeCtx, req, func(_ context.Context, d shared.Delivery) {
		w.deliver(handlerCtx, d)
	})

	w.logger.Info("worker stopped",
		zap.Int64("delivered", w.delivered.Load()),
		zap.Int64("failed", w.failed.Load()),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop ends the consume loop and waits for the in-flight handler. If ctx expires first the
// handler's context is cancelled and ctx's error returned.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, abort, done := w.cancel, w.abort, w.done
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		abort()
		<-done
		return fmt.Errorf("worker %s stop: %w", w.member, ctx.Err())
	}
}

func (w *Worker) watchIdle(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(w.idleTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			last := time.Unix(0, w.lastActivity.Load())
			if now.Sub(last) >= w.idleTimeout {
				w.logger.Debug("worker idle, stopping", zap.Duration("idle", now.Sub(last)))
				cancel()
				return
			}
		}
	}
}

// deliver processes one delivery and always commits its offset
func (w *Worker) deliver(ctx context.Context, d shared.Delivery) {
	w.lastActivity.Store(time.Now().UnixNano())
	defer w.commit(ctx, d)
	w.delivered.Add(1)
	w.metrics.RecordDelivered(ctx, w.group, d.Message.Topic)

	if d.Message.Topic != "" && !w.subscription.Contains(d.Message.Topic) {
		return
	}
	handlers := w.table.Handlers(d.Message.Topic)
	if len(handlers) == 0 && d.Message.Topic != "" {
		return
	}

	env, err := w.serializer.Deserialize(d.Message.Body)
	if err != nil {
		w.logger.Error("dropping undecodable envelope",
			zap.Int("partition", d.Partition),
			zap.String("offset", d.Offset),
			zap.Error(err),
		)
		return
	}
	if !w.subscription.Contains(env.Topic) {
		return
	}

	hctx := shared.WithCausalContext(ctx, shared.CausalContextFromEnvelope(env))
	for _, h := range w.table.Handlers(env.Topic) {
		w.dispatch(hctx, h, env)
	}
}

// dispatch runs one handler, turning errors and panics into logged HandlerErrors
func (w *Worker) dispatch(ctx context.Context, h shared.EnvelopeHandler, env *shared.Envelope) {
	ctx, span := telemetry.StartHandleSpan(ctx, w.group, h.Name(), env)
	defer span.End()

	start := time.Now()
	err := w.safeHandle(ctx, h, env)
	w.metrics.RecordHandled(ctx, h.Name(), env.Topic, time.Since(start), err)
	if err == nil {
		return
	}
	telemetry.RecordError(span, err)

	w.failed.Add(1)
	w.logger.Error("handler failed to process envelope",
		zap.String("handler", h.Name()),
		zap.String("topic", env.Topic.String()),
		zap.String("envelope_id", env.ID.String()),
		zap.String("correlation_id", env.CorrelationID),
		zap.String("tenant_id", env.TenantID),
		zap.Error(err),
	)
}

func (w *Worker) safeHandle(ctx context.Context, h shared.EnvelopeHandler, env *shared.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &shared.HandlerError{
				Handler:    h.Name(),
				Topic:      env.Topic,
				EnvelopeID: env.ID.String(),
				Panic:      true,
				Err:        fmt.Errorf("%v", r),
			}
		}
	}()

	if herr := h.Handle(ctx, env); herr != nil {
		return &shared.HandlerError{
			Handler:    h.Name(),
			Topic:      env.Topic,
			EnvelopeID: env.ID.String(),
			Err:        herr,
		}
	}
	return nil
}

func (w *Worker) commit(ctx context.Context, d shared.Delivery) {
	if err := w.checkpoints.Commit(ctx, w.group, d.Partition, d.Offset); err != nil {
		w.logger.Warn("failed to commit checkpoint",
			zap.Int("partition", d.Partition),
			zap.String("offset", d.Offset),
			zap.Error(err),
		)
	}
}

func topicNames(s topic.Set) []string {
	if s.IsWildcard() {
		return []string{"*"}
	}
	ts := s.Topics()
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}
