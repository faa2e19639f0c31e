package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const waitFor = 2 * time.Second

type recordingMetrics struct {
	mu        sync.Mutex
	published []topic.Topic
	delivered []topic.Topic
	handled   map[string]int
	errors    int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{handled: make(map[string]int)}
}

func (m *recordingMetrics) RecordPublished(_ context.Context, t topic.Topic) {
	m.mu.Lock()
	m.published = append(m.published, t)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordDelivered(_ context.Context, _ string, t topic.Topic) {
	m.mu.Lock()
	m.delivered = append(m.delivered, t)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordHandled(_ context.Context, handler string, _ topic.Topic, _ time.Duration, err error) {
	m.mu.Lock()
	m.handled[handler]++
	if err != nil {
		m.errors++
	}
	m.mu.Unlock()
}

func (m *recordingMetrics) snapshot() (published, delivered int, handled map[string]int, errs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.handled))
	for k, v := range m.handled {
		out[k] = v
	}
	return len(m.published), len(m.delivered), out, m.errors
}

type busFixture struct {
	transport   *MemoryTransport
	checkpoints *MemoryCheckpointStore
	publisher   *Publisher
}

func newBusFixture(partitions int) *busFixture {
	transport := NewMemoryTransport(partitions)
	return &busFixture{
		transport:   transport,
		checkpoints: NewMemoryCheckpointStore(),
		publisher:   NewPublisher(transport, nil, zap.NewNop()),
	}
}

func (f *busFixture) publish(t *testing.T, tp topic.Topic, payload shared.Payload, opts ...shared.PublishOption) {
	t.Helper()
	require.NoError(t, f.publisher.Publish(context.Background(), tp, payload, opts...))
}

func TestWorker_DispatchesSubscribedTopicsOnly(t *testing.T) {
	f := newBusFixture(4)
	persons := newCollector("person-saga")
	w := NewWorker(f.transport, f.checkpoints, topic.NewSet(topic.NewPerson), "person",
		zap.NewNop(), WithDispatchTable(newTestTable(t, persons, topic.NewPerson)))
	startWorker(t, w)

	f.publish(t, topic.NewPerson, shared.Payload{"email": "ada@acme.io"})
	f.publish(t, topic.NewCompany, shared.Payload{"domain": "acme.io"})
	f.publish(t, topic.NewMeeting, shared.Payload{"meeting_id": "m-1"})

	require.Eventually(t, func() bool { return w.Delivered() == 3 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, persons.count())
	assert.Equal(t, topic.NewPerson, persons.envelopes()[0].Topic)
	assert.Zero(t, w.Failed())
}

func TestWorker_CommitsRegardlessOfOutcome(t *testing.T) {
	f := newBusFixture(1)
	failing := newCollector("failing")
	failing.fn = func(context.Context, *shared.Envelope) error { return errors.New("provider exploded") }
	core, logs := observer.New(zapcore.ErrorLevel)
	w := NewWorker(f.transport, f.checkpoints, topic.NewSet(topic.NewCompany), "company",
		zap.New(core), WithDispatchTable(newTestTable(t, failing, topic.NewCompany)))
	startWorker(t, w)

	f.publish(t, topic.NewCompany, shared.Payload{"domain": "acme.io"})
	f.publish(t, topic.NewCompany, shared.Payload{"domain": "globex.com"})

	require.Eventually(t, func() bool { return w.Failed() == 2 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		off, _ := f.checkpoints.Load(context.Background(), "company", 0)
		return off == "1"
	}, waitFor, 5*time.Millisecond)

	entries := logs.FilterMessage("handler failed to process envelope").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "failing", entries[0].ContextMap()["handler"])
}

func TestWorker_RecoversHandlerPanic(t *testing.T) {
	f := newBusFixture(1)
	h := newCollector("panicky")
	h.fn = func(_ context.Context, env *shared.Envelope) error {
		if env.Payload.String("domain") == "boom.io" {
			panic("nil map write")
		}
		return nil
	}
	core, logs := observer.New(zapcore.ErrorLevel)
	w := NewWorker(f.transport, f.checkpoints, topic.NewSet(topic.NewCompany), "company",
		zap.New(core), WithDispatchTable(newTestTable(t, h, topic.NewCompany)))
	startWorker(t, w)

	f.publish(t, topic.NewCompany, shared.Payload{"domain": "boom.io"})
	f.publish(t, topic.NewCompany, shared.Payload{"domain": "acme.io"})

	require.Eventually(t, func() bool { return h.count() == 2 }, waitFor, 5*time.Millisecond)
	assert.EqualValues(t, 1, w.Failed())

	entries := logs.FilterMessage("handler failed to process envelope").All()
	require.Len(t, entries, 1)
	msg, _ := entries[0].ContextMap()["error"].(string)
	assert.Contains(t, msg, "panicked")
	assert.Contains(t, msg, "nil map write")
}

func TestWorker_PreservesOrderPerObject(t *testing.T) {
	f := newBusFixture(8)
	h := newCollector("ordered")
	w := NewWorker(f.transport, f.checkpoints, topic.NewSet(topic.NewPersonalData), "profile",
		zap.NewNop(), WithDispatchTable(newTestTable(t, h, topic.NewPersonalData)))
	startWorker(t, w)

	const n = 50
	for i := 0; i < n; i++ {
		f.publish(t, topic.NewPersonalData, shared.Payload{"email": "ada@acme.io", "seq": strconv.Itoa(i)})
	}

	require.Eventually(t, func() bool { return h.count() == n }, waitFor, 5*time.Millisecond)
	for i, env := range h.envelopes() {
		assert.Equal(t, strconv.Itoa(i), env.Payload.String("seq"))
	}
}

func TestWorker_PropagatesCausalContext(t *testing.T) {
	f := newBusFixture(2)
	h := newCollector("causal")
	w := NewWorker(f.transport, f.checkpoints, topic.NewSet(topic.NewMeeting), "meeting",
		zap.NewNop(), WithDispatchTable(newTestTable(t, h, topic.NewMeeting)))
	startWorker(t, w)

	f.publish(t, topic.NewMeeting, shared.Payload{"meeting_id": "m-7"},
		shared.WithCorrelationID("corr-7"), shared.WithTenant("acme"))

	require.Eventually(t, func() bool { return h.count() == 1 }, waitFor, 5*time.Millisecond)
	h.mu.Lock()
	ctx := h.ctxs[0]
	h.mu.Unlock()
	cc, ok := shared.CausalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "corr-7", cc.CorrelationID)
	assert.Equal(t, topic.NewMeeting, cc.Topic)
	assert.Equal(t, "acme", cc.TenantID)
}

func TestWorker_ResumesFromCheckpoint(t *testing.T) {
	transport := NewMemoryTransport(1)
	checkpoints := NewMemoryCheckpointStore()
	pub := NewPublisher(transport, nil, zap.NewNop())
	ctx := context.Background()
	for _, d := range []string{"a.io", "b.io", "c.io"} {
		require.NoError(t, pub.Publish(ctx, topic.NewCompany, shared.Payload{"domain": d}))
	}
	// the group already processed offset 0 in an earlier run
	require.NoError(t, checkpoints.Commit(ctx, "company", 0, "0"))

	h := newCollector("company-saga")
	w := NewWorker(transport, checkpoints, topic.NewSet(topic.NewCompany), "company",
		zap.NewNop(), WithDispatchTable(newTestTable(t, h, topic.NewCompany)))
	startWorker(t, w)

	require.Eventually(t, func() bool { return h.count() == 2 }, waitFor, 5*time.Millisecond)
	envs := h.envelopes()
	assert.Equal(t, "b.io", envs[0].Payload.String("domain"))
	assert.Equal(t, "c.io", envs[1].Payload.String("domain"))
}

func TestWorker_RestartedMemberDoesNotRedeliver(t *testing.T) {
	f := newBusFixture(2)
	h := newCollector("restart")
	table := newTestTable(t, h, topic.NewCompany)
	subs := topic.NewSet(topic.NewCompany)

	w1 := NewWorker(f.transport, f.checkpoints, subs, "company", zap.NewNop(), WithDispatchTable(table))
	startWorker(t, w1)
	f.publish(t, topic.NewCompany, shared.Payload{"domain": "a.io"})
	require.Eventually(t, func() bool { return h.count() == 1 }, waitFor, 5*time.Millisecond)
	require.NoError(t, w1.Stop(context.Background()))

	f.publish(t, topic.NewCompany, shared.Payload{"domain": "b.io"})
	w2 := NewWorker(f.transport, f.checkpoints, subs, "company", zap.NewNop(), WithDispatchTable(table))
	startWorker(t, w2)

	require.Eventually(t, func() bool { return h.count() == 2 }, waitFor, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, h.count())
	assert.Equal(t, "b.io", h.envelopes()[1].Payload.String("domain"))
}

func TestWorker_GroupsConsumeIndependently(t *testing.T) {
	f := newBusFixture(2)
	a := newCollector("a")
	b := newCollector("b")
	subs := topic.NewSet(topic.NewPerson)
	startWorker(t, NewWorker(f.transport, f.checkpoints, subs, "group-a", zap.NewNop(), WithDispatchTable(newTestTable(t, a, topic.NewPerson))))
	startWorker(t, NewWorker(f.transport, f.checkpoints, subs, "group-b", zap.NewNop(), WithDispatchTable(newTestTable(t, b, topic.NewPerson))))

	f.publish(t, topic.NewPerson, shared.Payload{"email": "ada@acme.io"})
	f.publish(t, topic.NewPerson, shared.Payload{"email": "grace@navy.mil"})

	require.Eventually(t, func() bool { return a.count() == 2 && b.count() == 2 }, waitFor, 5*time.Millisecond)
}

func TestDrainWorker_AdvancesCheckpoints(t *testing.T) {
	f := newBusFixture(2)
	for i := 0; i < 5; i++ {
		f.publish(t, topic.NewPerson, shared.Payload{"email": fmt.Sprintf("p%d@acme.io", i)})
	}

	w := NewDrainWorker(f.transport, f.checkpoints, "person", zap.NewNop(), WithIdleTimeout(100*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))

	assert.EqualValues(t, 5, w.Delivered())
	assert.Zero(t, w.Failed())
	cps, err := f.checkpoints.List(context.Background(), "person")
	require.NoError(t, err)
	assert.NotEmpty(t, cps)

	// a real member of the group sees nothing old
	h := newCollector("late")
	late := NewWorker(f.transport, f.checkpoints, topic.NewSet(topic.NewPerson), "person",
		zap.NewNop(), WithDispatchTable(newTestTable(t, h, topic.NewPerson)), WithIdleTimeout(100*time.Millisecond))
	require.NoError(t, late.Start(context.Background()))
	assert.Zero(t, h.count())
}

func TestWorker_StartTwice(t *testing.T) {
	f := newBusFixture(1)
	w := NewWorker(f.transport, f.checkpoints, topic.Wildcard, "g", zap.NewNop())
	startWorker(t, w)

	assert.ErrorIs(t, w.Start(context.Background()), ErrWorkerRunning)
}

func TestWorker_StopBeforeStart(t *testing.T) {
	f := newBusFixture(1)
	w := NewWorker(f.transport, f.checkpoints, topic.Wildcard, "g", zap.NewNop())
	assert.NoError(t, w.Stop(context.Background()))
}

func TestWorker_StopWaitsForInFlightHandler(t *testing.T) {
	f := newBusFixture(1)
	entered := make(chan struct{})
	release := make(chan struct{})
	h := newCollector("slow")
	h.fn = func(context.Context, *shared.Envelope) error {
		close(entered)
		<-release
		return nil
	}
	w := NewWorker(f.transport, f.checkpoints, topic.NewSet(topic.NewMeeting), "meeting",
		zap.NewNop(), WithDispatchTable(newTestTable(t, h, topic.NewMeeting)))
	startWorker(t, w)
	f.publish(t, topic.NewMeeting, shared.Payload{"meeting_id": "m-1"})
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while handler was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-stopped)

	off, _ := f.checkpoints.Load(context.Background(), "meeting", 0)
	assert.Equal(t, "0", off)
}

func TestWorker_StopTimeoutCancelsHandler(t *testing.T) {
	f := newBusFixture(1)
	entered := make(chan struct{})
	cancelled := make(chan struct{})
	h := newCollector("stuck")
	h.fn = func(ctx context.Context, _ *shared.Envelope) error {
		close(entered)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}
	w := NewWorker(f.transport, f.checkpoints, topic.NewSet(topic.NewMeeting), "meeting",
		zap.NewNop(), WithDispatchTable(newTestTable(t, h, topic.NewMeeting)))
	startWorker(t, w)
	f.publish(t, topic.NewMeeting, shared.Payload{"meeting_id": "m-1"})
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := w.Stop(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	select {
	case <-cancelled:
	case <-time.After(waitFor):
		t.Fatal("handler context was not cancelled")
	}
}

func TestWorker_IdleTimeoutEndsStart(t *testing.T) {
	f := newBusFixture(1)
	w := NewWorker(f.transport, f.checkpoints, topic.Wildcard, "idle", zap.NewNop(), WithIdleTimeout(40*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("worker did not stop after idle timeout")
	}
}

func TestWorker_SkipsUndecodableEnvelope(t *testing.T) {
	f := newBusFixture(1)
	h := newCollector("h")
	core, logs := observer.New(zapcore.ErrorLevel)
	w := NewWorker(f.transport, f.checkpoints, topic.NewSet(topic.NewPerson), "person",
		zap.New(core), WithDispatchTable(newTestTable(t, h, topic.NewPerson)))
	startWorker(t, w)

	require.NoError(t, f.transport.Send(context.Background(), shared.Message{Topic: topic.NewPerson, Partition: 0, Body: []byte("{not json")}))
	f.publish(t, topic.NewPerson, shared.Payload{"email": "ada@acme.io"})

	require.Eventually(t, func() bool { return h.count() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("dropping undecodable envelope").Len())
	assert.EqualValues(t, 2, w.Delivered())
}

func TestWorker_RecordsMetrics(t *testing.T) {
	transport := NewMemoryTransport(1)
	m := newRecordingMetrics()
	pub := NewPublisher(transport, nil, zap.NewNop(), WithPublisherMetrics(m))
	ok := newCollector("ok")
	bad := newCollector("bad")
	bad.fn = func(context.Context, *shared.Envelope) error { return errors.New("nope") }
	table := NewDispatchTable()
	require.NoError(t, table.Register(ok, topic.NewCompany))
	require.NoError(t, table.Register(bad, topic.NewCompany))
	w := NewWorker(transport, NewMemoryCheckpointStore(), topic.NewSet(topic.NewCompany), "company",
		zap.NewNop(), WithDispatchTable(table), WithWorkerMetrics(m))
	startWorker(t, w)

	require.NoError(t, pub.Publish(context.Background(), topic.NewCompany, shared.Payload{"domain": "acme.io"}))

	require.Eventually(t, func() bool {
		_, _, handled, _ := m.snapshot()
		return handled["bad"] == 1 && handled["ok"] == 1
	}, waitFor, 5*time.Millisecond)
	published, delivered, _, errs := m.snapshot()
	assert.Equal(t, 1, published)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, errs)
}
