package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMockEnvelopeHandler(t *testing.T) {
	handler := NewMockEnvelopeHandler("recorder")

	assert.Equal(t, "recorder", handler.Name())
	assert.Equal(t, 0, handler.HandledCount())
}

func TestMockEnvelopeHandler_Handle(t *testing.T) {
	handler := NewMockEnvelopeHandler("recorder")
	env := NewTestEnvelope(topic.NewPerson, "acme", shared.Payload{"email": "ada@acme.io"})

	err := handler.Handle(context.Background(), env)

	require.NoError(t, err)
	assert.Equal(t, 1, handler.HandledCount())
	assert.Same(t, env, handler.Handled()[0])
}

func TestMockEnvelopeHandler_SetErrorAndReset(t *testing.T) {
	handler := NewMockEnvelopeHandler("recorder")
	handler.SetError(assert.AnError)

	err := handler.Handle(context.Background(), NewTestEnvelope(topic.NewPerson, "acme", nil))
	assert.Equal(t, assert.AnError, err)

	handler.Reset()
	assert.Equal(t, 0, handler.HandledCount())
	assert.NoError(t, handler.Handle(context.Background(), NewTestEnvelope(topic.NewPerson, "acme", nil)))
}

func TestNewTestEnvelope(t *testing.T) {
	env := NewTestEnvelope(topic.NewCompany, "acme", shared.Payload{"domain": "acme.io"})

	assert.Equal(t, topic.NewCompany, env.Topic)
	assert.Equal(t, "acme", env.TenantID)
	assert.NotEmpty(t, env.CorrelationID)
	assert.Equal(t, "acme.io", env.Payload.String("domain"))

	cc, ok := shared.CausalFromContext(HandlerContext(env))
	require.True(t, ok)
	assert.Equal(t, env.CorrelationID, cc.CorrelationID)
	assert.Equal(t, topic.NewCompany, cc.Topic)
}

func TestRecordingPublisher(t *testing.T) {
	pub := NewRecordingPublisher()
	ctx := HandlerContext(NewTestEnvelope(topic.NewPerson, "acme", nil))

	require.NoError(t, pub.Publish(ctx, topic.EnrichPersonPrimary, shared.Payload{"email": "ada@acme.io"}))
	require.NoError(t, pub.Publish(ctx, topic.NewCompany, shared.Payload{"domain": "acme.io"}, shared.Global()))

	assert.Equal(t, []topic.Topic{topic.EnrichPersonPrimary, topic.NewCompany}, pub.Topics())
	assert.Equal(t, "acme", pub.ByTopic(topic.EnrichPersonPrimary)[0].TenantID())
	assert.Empty(t, pub.ByTopic(topic.NewCompany)[0].TenantID())

	pub.SetError(assert.AnError)
	assert.Error(t, pub.Publish(ctx, topic.NewPerson, nil))
}

func TestRecordingPublisher_Batch(t *testing.T) {
	pub := NewRecordingPublisher()
	ctx := context.Background()

	batch := pub.NewBatch()
	require.NoError(t, batch.Add(ctx, topic.NewPerson, shared.Payload{"email": "a@x.io"}))
	require.NoError(t, batch.Add(ctx, topic.NewPerson, shared.Payload{"email": "b@x.io"}))
	assert.Empty(t, pub.All(), "nothing recorded before flush")

	require.NoError(t, batch.Flush(ctx))
	assert.Len(t, pub.All(), 2)
	assert.Equal(t, 1, pub.Flushes())
}

func TestWaitForCondition(t *testing.T) {
	t.Run("condition met", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			time.Sleep(20 * time.Millisecond)
			close(done)
		}()

		result := WaitForCondition(t, func() bool {
			select {
			case <-done:
				return true
			default:
				return false
			}
		}, 200*time.Millisecond, 10*time.Millisecond)

		assert.True(t, result)
	})

	t.Run("condition not met within timeout", func(t *testing.T) {
		result := WaitForCondition(t, func() bool {
			return false
		}, 50*time.Millisecond, 10*time.Millisecond)

		assert.False(t, result)
	})
}

func TestWaitForEnvelopeCount(t *testing.T) {
	handler := NewMockEnvelopeHandler("recorder")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = handler.Handle(context.Background(), NewTestEnvelope(topic.NewPerson, "acme", nil))
		_ = handler.Handle(context.Background(), NewTestEnvelope(topic.NewPerson, "acme", nil))
	}()

	result := WaitForEnvelopeCount(t, handler, 2, 200*time.Millisecond)
	assert.True(t, result)
}
