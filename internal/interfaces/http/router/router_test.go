package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)
	r.Register(NewDomainGroup("test", "/test").GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	}))
	r.Setup()

	w := serve(engine, http.MethodGet, "/api/v1/test/ping")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup_Methods(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("status", "/status").
		GET("/:id", func(c *gin.Context) { c.String(http.StatusOK, "get") }).
		POST("", func(c *gin.Context) { c.String(http.StatusCreated, "post") }).
		DELETE("/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	g.RegisterRoutes(engine.Group("/api/v1"))

	assert.Equal(t, "status", g.Name())
	assert.Equal(t, "/status", g.Prefix())
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/status/abc").Code)
	assert.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/api/v1/status").Code)
	assert.Equal(t, http.StatusNoContent, serve(engine, http.MethodDelete, "/api/v1/status/abc").Code)
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/other").Code)
}

func TestDomainGroup_MiddlewareAndSubgroups(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("ops", "/ops").Use(func(c *gin.Context) {
		c.Header("X-Group", "ops")
		c.Next()
	})
	g.Group("nested", "/nested").GET("/leaf", func(c *gin.Context) { c.String(http.StatusOK, "leaf") })
	g.RegisterRoutes(engine.Group("/api/v1"))

	w := serve(engine, http.MethodGet, "/api/v1/ops/nested/leaf")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "leaf", w.Body.String())
	assert.Equal(t, "ops", w.Header().Get("X-Group"))
}
