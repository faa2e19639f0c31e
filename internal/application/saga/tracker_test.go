package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEnvelope(t topic.Topic, payload shared.Payload) *shared.Envelope {
	env := shared.NewEnvelope(t, payload, shared.ScopePublic)
	env.CorrelationID = "corr-1"
	env.TenantID = "acme"
	env.CausationTopic = topic.NewPerson
	return env
}

func TestTracker_BeginOpensMissingRecord(t *testing.T) {
	ledger := persistence.NewMemoryStatusLedger()
	tracker := NewTracker(ledger, zap.NewNop())
	ctx := context.Background()

	step := tracker.Begin(ctx, newEnvelope(topic.EnrichPersonPrimary, shared.Payload{"email": "ada@acme.io"}))
	assert.Nil(t, step.Previous)
	assert.False(t, step.Completed())

	rec, err := ledger.Get(ctx, "ada@acme.io", "acme", topic.EnrichPersonPrimary)
	require.NoError(t, err)
	assert.Equal(t, shared.StatusStarted, rec.State)
	assert.Equal(t, topic.NewPerson, rec.PreviousTopic)
	assert.Equal(t, "person", rec.ObjectType)
}

func TestTracker_StepTransitions(t *testing.T) {
	ledger := persistence.NewMemoryStatusLedger()
	tracker := NewTracker(ledger, zap.NewNop())
	ctx := context.Background()
	env := newEnvelope(topic.EnrichPersonPrimary, shared.Payload{"email": "ada@acme.io"})

	step := tracker.Begin(ctx, env)
	step.Processing(ctx)
	rec, err := ledger.Get(ctx, "ada@acme.io", "acme", topic.EnrichPersonPrimary)
	require.NoError(t, err)
	assert.Equal(t, shared.StatusProcessing, rec.State)

	step.Fail(ctx, errors.New("provider down"))
	rec, err = ledger.Get(ctx, "ada@acme.io", "acme", topic.EnrichPersonPrimary)
	require.NoError(t, err)
	assert.Equal(t, shared.StatusFailed, rec.State)
	assert.Equal(t, "provider down", rec.ErrorMessage)

	step.Complete(ctx)
	again := tracker.Begin(ctx, env)
	assert.True(t, again.Completed())
}

func TestTracker_NoObjectIDIsNoop(t *testing.T) {
	ledger := persistence.NewMemoryStatusLedger()
	tracker := NewTracker(ledger, zap.NewNop())
	ctx := context.Background()

	step := tracker.Begin(ctx, newEnvelope(topic.NewMeeting, shared.Payload{"subject": "sync"}))
	step.Complete(ctx)

	assert.Empty(t, step.ObjectID)
	assert.Equal(t, 0, ledger.Len())
}

func TestTracker_NilLedger(t *testing.T) {
	tracker := NewTracker(nil, zap.NewNop())
	ctx := context.Background()

	step := tracker.Begin(ctx, newEnvelope(topic.NewPerson, shared.Payload{"email": "ada@acme.io"}))
	step.Processing(ctx)
	step.Complete(ctx)

	assert.False(t, step.Completed())
	assert.Nil(t, tracker.Ledger())
}
