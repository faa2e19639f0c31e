package router

import (
	"github.com/gin-gonic/gin"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/infrastructure/auth"
	"github.com/meetprep/backend/internal/infrastructure/logger"
	"github.com/meetprep/backend/internal/interfaces/http/handler"
	"github.com/meetprep/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultBodyLimit caps trigger payloads
const DefaultBodyLimit int64 = 1 << 20

// OpsConfig wires the ops API
type OpsConfig struct {
	Name    string
	Version string

	JWTService *auth.JWTService
	Publisher  shared.EnvelopePublisher
	Ledger     shared.StatusLedger
	// Triggers are the topics POST /events accepts. Empty accepts every known topic.
	Triggers     []topic.Topic
	HealthChecks map[string]handler.HealthCheck

	Tracing middleware.TracingConfig
	// Meter receives HTTP server metrics when set
	Meter     metric.Meter
	BodyLimit int64
	// PublishLimiter throttles POST /events per tenant when set
	PublishLimiter *middleware.RateLimiter
	Logger         *zap.Logger
}

// NewOpsEngine builds the gin engine of the ops API:
//
//	GET    /health
//	GET    /api/v1/system/info
//	POST   /api/v1/events                      events:publish
//	GET    /api/v1/status/:object_id           status:read
//	GET    /api/v1/status/:object_id/:topic    status:read
//	DELETE /api/v1/status/:object_id           status:reset
func NewOpsEngine(cfg OpsConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyLimit
	}
	middleware.SetupValidator(cfg.Triggers...)

	engine := gin.New()
	engine.Use(logger.Recovery(log), logger.RequestID())
	engine.Use(middleware.TracingWithConfig(cfg.Tracing)...)
	engine.Use(middleware.HTTPMetricsWithMeter(cfg.Meter, log))
	engine.Use(logger.GinMiddleware(log), middleware.BodyLimit(bodyLimit))

	system := handler.NewSystemHandler(cfg.Name, cfg.Version, cfg.HealthChecks)
	engine.GET("/health", system.Health)

	events := handler.NewEventHandler(cfg.Publisher, log.Named("events"))
	status := handler.NewStatusHandler(cfg.Ledger, log.Named("status"))
	authn := middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService: cfg.JWTService,
		Logger:     log,
	})

	r := NewRouter(engine)
	r.Register(NewDomainGroup("system", "/system").GET("/info", system.GetSystemInfo))

	eventsGroup := NewDomainGroup("events", "/events").Use(authn)
	publish := []gin.HandlerFunc{middleware.RequireScope(auth.ScopePublish)}
	if cfg.PublishLimiter != nil {
		publish = append(publish, middleware.RateLimitByTenant(cfg.PublishLimiter))
	}
	eventsGroup.POST("", append(publish, events.Publish)...)
	r.Register(eventsGroup)

	statusGroup := NewDomainGroup("status", "/status").Use(authn)
	statusGroup.GET("/:object_id", middleware.RequireScope(auth.ScopeStatusRead), status.List)
	statusGroup.GET("/:object_id/:topic", middleware.RequireScope(auth.ScopeStatusRead), status.Get)
	statusGroup.DELETE("/:object_id", middleware.RequireScope(auth.ScopeStatusReset), status.Reset)
	r.Register(statusGroup)

	r.Setup()
	return engine
}
