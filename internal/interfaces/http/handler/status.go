package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/interfaces/http/dto"
	"github.com/meetprep/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// ResetResponse reports how many ledger records a reset removed
type ResetResponse struct {
	ObjectID string `json:"object_id"`
	Deleted  int64  `json:"deleted"`
}

// StatusHandler exposes the status ledger of the token's tenant
type StatusHandler struct {
	BaseHandler
	ledger shared.StatusLedger
	logger *zap.Logger
}

// NewStatusHandler creates a StatusHandler
func NewStatusHandler(ledger shared.StatusLedger, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{ledger: ledger, logger: logger}
}

// List handles GET /status/:object_id
func (h *StatusHandler) List(c *gin.Context) {
	objectID, tenantID, ok := h.bindObject(c)
	if !ok {
		return
	}

	records, err := h.ledger.ListByObject(c.Request.Context(), objectID, tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]StatusRecordResponse, len(records))
	for i, r := range records {
		out[i] = toStatusRecordResponse(r)
	}
	h.SuccessList(c, out, len(out))
}

// Get handles GET /status/:object_id/:topic
func (h *StatusHandler) Get(c *gin.Context) {
	objectID, tenantID, ok := h.bindObject(c)
	if !ok {
		return
	}
	t, err := topic.Parse(c.Param("topic"))
	if err != nil {
		h.HandleError(c, shared.ErrUnknownTopic)
		return
	}

	rec, err := h.ledger.Get(c.Request.Context(), objectID, tenantID, t)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toStatusRecordResponse(*rec))
}

// Reset handles DELETE /status/:object_id. Removing the records lets every saga of the
// object run again.
func (h *StatusHandler) Reset(c *gin.Context) {
	objectID, tenantID, ok := h.bindObject(c)
	if !ok {
		return
	}

	n, err := h.ledger.DeleteByObject(c.Request.Context(), objectID, tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.logger.Info("saga status reset",
		zap.String("object_id", objectID),
		zap.String("tenant_id", tenantID),
		zap.Int64("deleted", n),
		zap.String("subject", middleware.GetJWTSubject(c)),
	)
	h.Success(c, ResetResponse{ObjectID: objectID, Deleted: n})
}

func (h *StatusHandler) bindObject(c *gin.Context) (objectID, tenantID string, ok bool) {
	var req dto.ObjectRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return "", "", false
	}
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return "", "", false
	}
	return req.ObjectID, tenantID, true
}
