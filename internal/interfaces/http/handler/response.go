package handler

import (
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/interfaces/http/dto"
)

// StatusRecordResponse is one ledger entry of an object
type StatusRecordResponse struct {
	ObjectID      string `json:"object_id"`
	ObjectType    string `json:"object_type,omitempty"`
	Topic         string `json:"topic"`
	PreviousTopic string `json:"previous_topic,omitempty"`
	State         string `json:"state"`
	ErrorMessage  string `json:"error_message,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	dto.TimestampResponse
}

func toStatusRecordResponse(r shared.StatusRecord) StatusRecordResponse {
	return StatusRecordResponse{
		ObjectID:      r.ObjectID,
		ObjectType:    r.ObjectType,
		Topic:         r.Topic.String(),
		PreviousTopic: r.PreviousTopic.String(),
		State:         string(r.State),
		ErrorMessage:  r.ErrorMessage,
		CorrelationID: r.CorrelationID,
		TimestampResponse: dto.TimestampResponse{
			StartedAt: r.StartedAt.UTC().Truncate(time.Millisecond),
			UpdatedAt: r.UpdatedAt.UTC().Truncate(time.Millisecond),
		},
	}
}
