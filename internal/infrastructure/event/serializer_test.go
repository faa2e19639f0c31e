package event

import (
	"testing"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeSerializer_RoundTripKeepsMetadata(t *testing.T) {
	s := NewEnvelopeSerializer()
	env := shared.NewEnvelope(topic.CompanyEnriched, shared.Payload{
		"domain":  "acme.io",
		"company": map[string]any{"name": "Acme", "employees": 120.0},
	}, shared.ScopePrivate)
	env.CorrelationID = "corr-1"
	env.CausationTopic = topic.NewCompany
	env.TenantID = "acme"
	env.PartitionKey = "acme.io"

	data, err := s.Serialize(env)
	require.NoError(t, err)
	got, err := s.Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, env.Topic, got.Topic)
	assert.Equal(t, env.Scope, got.Scope)
	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Equal(t, topic.NewCompany, got.CausationTopic)
	assert.Equal(t, "acme", got.TenantID)
	assert.Equal(t, "acme.io", got.PartitionKey)
	assert.Equal(t, "Acme", got.Payload.Object("company")["name"])
	assert.True(t, env.OccurredAt.Equal(got.OccurredAt))
}

func TestEnvelopeSerializer_Errors(t *testing.T) {
	s := NewEnvelopeSerializer()

	t.Run("unencodable payload", func(t *testing.T) {
		env := shared.NewEnvelope(topic.NewPerson, shared.Payload{"email": "a@b.c", "ch": make(chan struct{})}, shared.ScopePublic)
		_, err := s.Serialize(env)
		var serr *shared.SerializationError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, topic.NewPerson, serr.Topic)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := s.Deserialize([]byte(`{"topic":`))
		var serr *shared.SerializationError
		assert.ErrorAs(t, err, &serr)
	})

	t.Run("topic outside vocabulary", func(t *testing.T) {
		_, err := s.Deserialize([]byte(`{"topic":"person-archived","payload":{}}`))
		assert.ErrorIs(t, err, shared.ErrUnknownTopic)
	})

	t.Run("missing payload", func(t *testing.T) {
		env, err := s.Deserialize([]byte(`{"topic":"new-person"}`))
		require.NoError(t, err)
		assert.NotNil(t, env.Payload)
	})
}

func TestPartitionFor(t *testing.T) {
	assert.Equal(t, 0, PartitionFor("anything", 1))
	assert.Equal(t, 0, PartitionFor("anything", 0))

	seen := make(map[int]bool)
	for _, k := range []string{"a@acme.io", "b@acme.io", "c@acme.io", "acme.io", "globex.com", "m-1", "m-2", "m-3"} {
		p := PartitionFor(k, 4)
		assert.GreaterOrEqual(t, p, 0)
		assert.Less(t, p, 4)
		assert.Equal(t, p, PartitionFor(k, 4))
		seen[p] = true
	}
	assert.Greater(t, len(seen), 1)
}
