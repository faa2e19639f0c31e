package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// PublishEventRequest is a trigger envelope submitted from outside the bus
type PublishEventRequest struct {
	Topic         string         `json:"topic" binding:"required,topic"`
	Payload       map[string]any `json:"payload" binding:"required"`
	Scope         string         `json:"scope" binding:"omitempty,oneof=public private"`
	CorrelationID string         `json:"correlation_id" binding:"omitempty,max=128"`
}

// PublishEventResponse identifies the published envelope's saga
type PublishEventResponse struct {
	Topic         string `json:"topic"`
	TenantID      string `json:"tenant_id"`
	CorrelationID string `json:"correlation_id"`
	ObjectID      string `json:"object_id,omitempty"`
}

// EventHandler publishes trigger envelopes on behalf of the token's tenant
type EventHandler struct {
	BaseHandler
	publisher shared.EnvelopePublisher
	logger    *zap.Logger
}

// NewEventHandler creates an EventHandler
func NewEventHandler(publisher shared.EnvelopePublisher, logger *zap.Logger) *EventHandler {
	return &EventHandler{publisher: publisher, logger: logger}
}

// Publish handles POST /events
func (h *EventHandler) Publish(c *gin.Context) {
	var req PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if limit, ok := middleware.IsBodyTooLarge(err); ok {
			middleware.AbortPayloadTooLarge(c, limit)
			return
		}
		middleware.HandleValidationError(c, err)
		return
	}
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	t, err := topic.Parse(req.Topic)
	if err != nil {
		h.HandleError(c, shared.ErrUnknownTopic)
		return
	}
	scope := shared.ScopePublic
	if req.Scope != "" {
		scope = shared.Scope(req.Scope)
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	payload := shared.Payload(req.Payload)

	if err := h.publisher.Publish(c.Request.Context(), t, payload,
		shared.WithTenant(tenantID),
		shared.WithScope(scope),
		shared.WithCorrelationID(correlationID),
	); err != nil {
		h.logger.Error("publish trigger failed",
			zap.String("topic", t.String()),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		h.HandleError(c, err)
		return
	}

	h.logger.Info("trigger published",
		zap.String("topic", t.String()),
		zap.String("tenant_id", tenantID),
		zap.String("correlation_id", correlationID),
		zap.String("subject", middleware.GetJWTSubject(c)),
	)
	h.Accepted(c, PublishEventResponse{
		Topic:         t.String(),
		TenantID:      tenantID,
		CorrelationID: correlationID,
		ObjectID:      shared.ExtractObjectID(payload),
	})
}
