package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meetprep/backend/internal/infrastructure/auth"
	"github.com/meetprep/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:   "test-secret-key-at-least-32-chars",
		Issuer:   "test-issuer",
		TokenTTL: 15 * time.Minute,
	})
}

func newTestToken(t *testing.T, jwtService *auth.JWTService, scopes ...string) string {
	t.Helper()
	token, _, err := jwtService.GenerateToken(auth.GenerateTokenInput{
		TenantID: "acme",
		Subject:  "ops@acme.io",
		Scopes:   scopes,
	})
	require.NoError(t, err)
	return token
}

func serve(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(AuthHeaderKey, token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	jwtService := newTestJWTService()
	token := newTestToken(t, jwtService, auth.ScopeStatusRead)

	router := gin.New()
	router.Use(JWTAuthMiddleware(jwtService))
	router.GET("/test", func(c *gin.Context) {
		claims := GetJWTClaims(c)
		require.NotNil(t, claims)
		assert.Equal(t, "acme", GetJWTTenantID(c))
		assert.Equal(t, "ops@acme.io", GetJWTSubject(c))
		assert.Equal(t, []string{auth.ScopeStatusRead}, claims.Scopes)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rec := serve(router, "/test", BearerPrefix+token)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	jwtService := newTestJWTService()
	other := auth.NewJWTService(config.JWTConfig{Secret: "another-secret-key-at-least-32-chars", Issuer: "test-issuer"})
	forged := newTestToken(t, other)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "INVALID_TOKEN"},
		{"no bearer prefix", newTestToken(t, jwtService), "INVALID_TOKEN"},
		{"empty token", BearerPrefix, "INVALID_TOKEN"},
		{"garbage", BearerPrefix + "not.a.jwt", "INVALID_TOKEN"},
		{"wrong secret", BearerPrefix + forged, "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(JWTAuthMiddleware(jwtService))
			router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

			rec := serve(router, "/test", tt.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestJWTAuthMiddleware_ExpiredToken(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, err := jwtService.GenerateToken(auth.GenerateTokenInput{
		TenantID: "acme",
		Subject:  "ops@acme.io",
		TTL:      time.Millisecond,
	})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	router := gin.New()
	router.Use(JWTAuthMiddleware(jwtService))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(router, "/test", BearerPrefix+token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_EXPIRED", errorCode(t, rec))
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	router := gin.New()
	router.Use(JWTAuthMiddleware(newTestJWTService()))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(router, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthMiddleware_CustomOnError(t *testing.T) {
	var seen error
	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(JWTMiddlewareConfig{
		JWTService: newTestJWTService(),
		OnError: func(c *gin.Context, err error) {
			seen = err
			c.AbortWithStatus(http.StatusTeapot)
		},
	}))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(router, "/test", "")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, seen, auth.ErrInvalidToken)
}

func TestRequireScope(t *testing.T) {
	jwtService := newTestJWTService()
	router := gin.New()
	router.Use(JWTAuthMiddleware(jwtService))
	router.GET("/reset", RequireScope(auth.ScopeStatusReset), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(router, "/reset", BearerPrefix+newTestToken(t, jwtService, auth.ScopeStatusRead))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	rec = serve(router, "/reset", BearerPrefix+newTestToken(t, jwtService, auth.ScopeStatusReset))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireScope_WithoutClaims(t *testing.T) {
	router := gin.New()
	router.GET("/reset", RequireScope(auth.ScopeStatusReset), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(router, "/reset", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetJWTClaims_NotFound(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Nil(t, GetJWTClaims(c))
	assert.Empty(t, GetJWTTenantID(c))
	assert.Empty(t, GetJWTSubject(c))
}
