package event

import (
	"context"
	"errors"
	"testing"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockStatusLedger is a mock implementation of shared.StatusLedger
type MockStatusLedger struct {
	mock.Mock
}

func (m *MockStatusLedger) Start(ctx context.Context, in shared.StartInput) (bool, error) {
	args := m.Called(ctx, in)
	return args.Bool(0), args.Error(1)
}

func (m *MockStatusLedger) Update(ctx context.Context, objectID, tenantID string, t topic.Topic, state shared.StatusState, errMsg string) error {
	return m.Called(ctx, objectID, tenantID, t, state, errMsg).Error(0)
}

func (m *MockStatusLedger) Get(ctx context.Context, objectID, tenantID string, t topic.Topic) (*shared.StatusRecord, error) {
	args := m.Called(ctx, objectID, tenantID, t)
	rec, _ := args.Get(0).(*shared.StatusRecord)
	return rec, args.Error(1)
}

func (m *MockStatusLedger) Delete(ctx context.Context, objectID, tenantID string, t topic.Topic) error {
	return m.Called(ctx, objectID, tenantID, t).Error(0)
}

func (m *MockStatusLedger) ListByObject(ctx context.Context, objectID, tenantID string) ([]shared.StatusRecord, error) {
	args := m.Called(ctx, objectID, tenantID)
	recs, _ := args.Get(0).([]shared.StatusRecord)
	return recs, args.Error(1)
}

func (m *MockStatusLedger) DeleteByObject(ctx context.Context, objectID, tenantID string) (int64, error) {
	args := m.Called(ctx, objectID, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func TestPublisher_PublishOpensLedgerEntry(t *testing.T) {
	transport := newRecordingTransport(4)
	ledger := persistence.NewMemoryStatusLedger()
	pub := newTestPublisher(transport, ledger)
	ctx := context.Background()

	err := pub.Publish(ctx, topic.NewPerson, shared.Payload{"email": "ada@acme.io"}, shared.WithTenant("acme"))
	require.NoError(t, err)

	msgs := transport.messages()
	require.Len(t, msgs, 1)
	env := decodeMessage(t, msgs[0])
	assert.Equal(t, topic.NewPerson, env.Topic)
	assert.Equal(t, "acme", env.TenantID)
	assert.NotEmpty(t, env.CorrelationID)
	assert.Equal(t, "ada@acme.io", env.PartitionKey)
	assert.Equal(t, PartitionFor("ada@acme.io", 4), msgs[0].Partition)

	rec, err := ledger.Get(ctx, "ada@acme.io", "acme", topic.NewPerson)
	require.NoError(t, err)
	assert.Equal(t, shared.StatusStarted, rec.State)
	assert.Equal(t, "person", rec.ObjectType)
	assert.Equal(t, env.CorrelationID, rec.CorrelationID)
}

func TestPublisher_InheritsCausalContext(t *testing.T) {
	transport := newRecordingTransport(4)
	ledger := persistence.NewMemoryStatusLedger()
	pub := newTestPublisher(transport, ledger)

	ctx := shared.WithCausalContext(context.Background(), shared.CausalContext{
		CorrelationID: "corr-42",
		Topic:         topic.NewPerson,
		TenantID:      "acme",
	})
	require.NoError(t, pub.Publish(ctx, topic.EnrichPersonPrimary, shared.Payload{"email": "ada@acme.io"}))

	env := decodeMessage(t, transport.messages()[0])
	assert.Equal(t, "corr-42", env.CorrelationID)
	assert.Equal(t, topic.NewPerson, env.CausationTopic)
	assert.Equal(t, "acme", env.TenantID)

	rec, err := ledger.Get(ctx, "ada@acme.io", "acme", topic.EnrichPersonPrimary)
	require.NoError(t, err)
	assert.Equal(t, topic.NewPerson, rec.PreviousTopic)
}

func TestPublisher_ExplicitOptionsWinOverCausalContext(t *testing.T) {
	transport := newRecordingTransport(2)
	pub := newTestPublisher(transport, nil)

	ctx := shared.WithCausalContext(context.Background(), shared.CausalContext{CorrelationID: "inherited", TenantID: "acme"})
	require.NoError(t, pub.Publish(ctx, topic.NewCompany, shared.Payload{"domain": "acme.io"},
		shared.WithCorrelationID("explicit"),
		shared.WithScope(shared.ScopePrivate),
	))

	env := decodeMessage(t, transport.messages()[0])
	assert.Equal(t, "explicit", env.CorrelationID)
	assert.Equal(t, shared.ScopePrivate, env.Scope)
	assert.Equal(t, "acme", env.TenantID)
}

func TestPublisher_GlobalDropsInheritedTenant(t *testing.T) {
	transport := newRecordingTransport(2)
	ledger := persistence.NewMemoryStatusLedger()
	pub := newTestPublisher(transport, ledger)

	ctx := shared.WithCausalContext(context.Background(), shared.CausalContext{
		CorrelationID: "corr-7",
		Topic:         topic.NewPerson,
		TenantID:      "acme",
	})
	require.NoError(t, pub.Publish(ctx, topic.NewCompany, shared.Payload{"domain": "acme.io"}, shared.Global()))

	env := decodeMessage(t, transport.messages()[0])
	assert.Empty(t, env.TenantID)
	assert.Equal(t, "corr-7", env.CorrelationID)

	_, err := ledger.Get(ctx, "acme.io", "", topic.NewCompany)
	require.NoError(t, err)
}

func TestPublisher_SerializationError(t *testing.T) {
	transport := newRecordingTransport(2)
	pub := newTestPublisher(transport, nil)

	err := pub.Publish(context.Background(), topic.NewMeeting, shared.Payload{"meeting_id": "m-1", "bad": make(chan int)})

	var serr *shared.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, topic.NewMeeting, serr.Topic)
	assert.Zero(t, transport.sendCalls())
}

func TestPublisher_UnknownTopic(t *testing.T) {
	pub := newTestPublisher(newRecordingTransport(2), nil)

	err := pub.Publish(context.Background(), topic.Topic("person-deleted"), shared.Payload{})
	assert.ErrorIs(t, err, shared.ErrUnknownTopic)
}

func TestPublisher_TransportErrorSkipsLedger(t *testing.T) {
	transport := newRecordingTransport(2)
	transport.failWith(errBroker)
	ledger := new(MockStatusLedger)
	pub := newTestPublisher(transport, ledger)

	err := pub.Publish(context.Background(), topic.NewPerson, shared.Payload{"email": "ada@acme.io"})

	var terr *shared.TransportError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, errBroker)
	ledger.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
}

func TestPublisher_LedgerFailureIsOnlyLogged(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	ledger := new(MockStatusLedger)
	ledger.On("Start", mock.Anything, mock.MatchedBy(func(in shared.StartInput) bool {
		return in.ObjectID == "m-1" && in.ObjectType == "meeting"
	})).Return(false, errors.New("db down"))
	transport := newRecordingTransport(2)
	pub := NewPublisher(transport, ledger, zap.New(core))

	err := pub.Publish(context.Background(), topic.NewMeeting, shared.Payload{"meeting_id": "m-1"})

	require.NoError(t, err)
	assert.Len(t, transport.messages(), 1)
	assert.Equal(t, 1, recorded.FilterMessage("failed to record status for published envelope").Len())
	ledger.AssertExpectations(t)
}

func TestPublisher_NoObjectIDUsesCorrelationAsKey(t *testing.T) {
	transport := newRecordingTransport(8)
	ledger := new(MockStatusLedger)
	pub := newTestPublisher(transport, ledger)

	require.NoError(t, pub.Publish(context.Background(), topic.NewMeeting, shared.Payload{"title": "sync"},
		shared.WithCorrelationID("corr-x")))

	env := decodeMessage(t, transport.messages()[0])
	assert.Equal(t, "corr-x", env.PartitionKey)
	ledger.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
}

func TestPublisher_SameObjectSamePartition(t *testing.T) {
	transport := newRecordingTransport(16)
	pub := newTestPublisher(transport, nil)
	ctx := context.Background()

	for _, tp := range []topic.Topic{topic.NewPerson, topic.EnrichPersonPrimary, topic.NewPersonalData} {
		require.NoError(t, pub.Publish(ctx, tp, shared.Payload{"email": "grace@navy.mil"}))
	}

	msgs := transport.messages()
	require.Len(t, msgs, 3)
	for _, m := range msgs[1:] {
		assert.Equal(t, msgs[0].Partition, m.Partition)
	}
}

func TestBatch_FlushSendsOnce(t *testing.T) {
	transport := newRecordingTransport(4)
	ledger := persistence.NewMemoryStatusLedger()
	pub := newTestPublisher(transport, ledger)
	ctx := context.Background()

	b := pub.Batch()
	require.NoError(t, b.Add(ctx, topic.NewPerson, shared.Payload{"email": "a@acme.io"}))
	require.NoError(t, b.Add(ctx, topic.NewPerson, shared.Payload{"email": "b@acme.io"}))
	require.NoError(t, b.Add(ctx, topic.NewCompany, shared.Payload{"domain": "acme.io"}))
	assert.Equal(t, 3, b.Len())
	assert.Zero(t, transport.sendCalls())

	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 1, transport.sendCalls())
	assert.Len(t, transport.messages(), 3)
	assert.Zero(t, b.Len())
	assert.Equal(t, 3, ledger.Len())

	// empty flush is a no-op
	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 1, transport.sendCalls())
}

func TestBatch_FlushFailureKeepsQueue(t *testing.T) {
	transport := newRecordingTransport(4)
	pub := newTestPublisher(transport, nil)
	ctx := context.Background()

	b := pub.Batch()
	require.NoError(t, b.Add(ctx, topic.NewPerson, shared.Payload{"email": "a@acme.io"}))
	transport.failWith(errBroker)

	err := b.Flush(ctx)
	var terr *shared.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, b.Len())

	transport.failWith(nil)
	require.NoError(t, b.Flush(ctx))
	assert.Len(t, transport.messages(), 1)
}

func TestBatch_AddRejectsInvalidEnvelope(t *testing.T) {
	b := newTestPublisher(newRecordingTransport(2), nil).Batch()

	err := b.Add(context.Background(), topic.NewPerson, shared.Payload{"fn": func() {}})
	var serr *shared.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Zero(t, b.Len())
}
