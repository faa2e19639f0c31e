package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingTransport keeps every sent batch and never delivers anything
type recordingTransport struct {
	mu         sync.Mutex
	batches    [][]shared.Message
	partitions int
	err        error
}

func newRecordingTransport(partitions int) *recordingTransport {
	return &recordingTransport{partitions: partitions}
}

func (t *recordingTransport) Send(_ context.Context, msgs ...shared.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.batches = append(t.batches, append([]shared.Message(nil), msgs...))
	return nil
}

func (t *recordingTransport) Consume(ctx context.Context, _ shared.ConsumeRequest, _ shared.DeliveryFunc) error {
	<-ctx.Done()
	return ctx.Err()
}

func (t *recordingTransport) Partitions() int { return t.partitions }

func (t *recordingTransport) failWith(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

func (t *recordingTransport) messages() []shared.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []shared.Message
	for _, b := range t.batches {
		out = append(out, b...)
	}
	return out
}

func (t *recordingTransport) sendCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.batches)
}

func decodeMessage(t *testing.T, m shared.Message) *shared.Envelope {
	t.Helper()
	env, err := NewEnvelopeSerializer().Deserialize(m.Body)
	require.NoError(t, err)
	return env
}

// collector is a handler recording the envelopes it saw, in order
type collector struct {
	name string
	fn   func(ctx context.Context, env *shared.Envelope) error

	mu   sync.Mutex
	seen []*shared.Envelope
	ctxs []context.Context
}

func newCollector(name string) *collector {
	return &collector{name: name}
}

func (c *collector) Name() string { return c.name }

func (c *collector) Handle(ctx context.Context, env *shared.Envelope) error {
	c.mu.Lock()
	c.seen = append(c.seen, env)
	c.ctxs = append(c.ctxs, ctx)
	c.mu.Unlock()
	if c.fn != nil {
		return c.fn(ctx, env)
	}
	return nil
}

func (c *collector) envelopes() []*shared.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*shared.Envelope(nil), c.seen...)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// startWorker runs w in the background and registers a cleanup that stops it
func startWorker(t *testing.T, w *Worker) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.running.Load() && w.cancel != nil
	}, time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
	return errCh
}

func newTestTable(t *testing.T, h shared.EnvelopeHandler, topics ...topic.Topic) *DispatchTable {
	t.Helper()
	table := NewDispatchTable()
	require.NoError(t, table.Register(h, topics...))
	return table
}

func newTestPublisher(transport shared.Transport, ledger shared.StatusLedger) *Publisher {
	return NewPublisher(transport, ledger, zap.NewNop())
}

var errBroker = errors.New("broker unavailable")
