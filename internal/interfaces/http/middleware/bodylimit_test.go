package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meetprep/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triggerBody(descriptionLen int) string {
	return `{"topic":"new-meeting","payload":{"external_id":"cal-7","description":"` +
		strings.Repeat("x", descriptionLen) + `"}}`
}

func bodyLimitRouter(limit int64) *gin.Engine {
	router := gin.New()
	router.Use(BodyLimit(limit))
	router.POST("/api/v1/events", func(c *gin.Context) {
		var req struct {
			Topic   string         `json:"topic"`
			Payload map[string]any `json:"payload"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			if limit, ok := IsBodyTooLarge(err); ok {
				AbortPayloadTooLarge(c, limit)
				return
			}
			c.Status(http.StatusBadRequest)
			return
		}
		c.String(http.StatusAccepted, req.Topic)
	})
	router.GET("/api/v1/status/:object_id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("trigger payload within the limit is accepted", func(t *testing.T) {
		router := bodyLimitRouter(1024)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(triggerBody(100))))

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "new-meeting", w.Body.String())
	})

	t.Run("declared length over the limit is rejected before the handler", func(t *testing.T) {
		router := bodyLimitRouter(256)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(triggerBody(1024)))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		resp := decodeError(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodePayloadTooLarge, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "256")
	})

	t.Run("chunked trigger payload is cut at the limit", func(t *testing.T) {
		router := bodyLimitRouter(256)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", io.NopCloser(strings.NewReader(triggerBody(1024))))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, dto.ErrCodePayloadTooLarge, decodeError(t, w).Error.Code)
	})

	t.Run("status reads have no body to limit", func(t *testing.T) {
		router := bodyLimitRouter(10)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status/ada@globex.io", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestIsBodyTooLarge(t *testing.T) {
	_, ok := IsBodyTooLarge(io.ErrUnexpectedEOF)
	assert.False(t, ok)

	limit, ok := IsBodyTooLarge(&http.MaxBytesError{Limit: 512})
	assert.True(t, ok)
	assert.EqualValues(t, 512, limit)
}
