package event

import (
	"encoding/json"
	"fmt"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
)

// EnvelopeSerializer handles the JSON wire form of envelopes
type EnvelopeSerializer struct{}

// NewEnvelopeSerializer creates a new envelope serializer
func NewEnvelopeSerializer() *EnvelopeSerializer {
	return &EnvelopeSerializer{}
}

// Serialize encodes an envelope. Payload values JSON cannot represent yield a
// *shared.SerializationError.
func (s *EnvelopeSerializer) Serialize(env *shared.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, &shared.SerializationError{Topic: env.Topic, Err: err}
	}
	return data, nil
}

// Deserialize decodes an envelope and rejects topics outside the vocabulary
func (s *EnvelopeSerializer) Deserialize(data []byte) (*shared.Envelope, error) {
	var env shared.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &shared.SerializationError{Err: fmt.Errorf("failed to unmarshal envelope: %w", err)}
	}
	if !env.Topic.IsValid() {
		return nil, &shared.SerializationError{
			Topic: env.Topic,
			Err:   fmt.Errorf("%w: %s (vocabulary %s)", shared.ErrUnknownTopic, env.Topic, topic.Version),
		}
	}
	if env.Payload == nil {
		env.Payload = shared.Payload{}
	}
	return &env, nil
}
