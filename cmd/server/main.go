package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meetprep/backend/internal/application/orchestration"
	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/auth"
	"github.com/meetprep/backend/internal/infrastructure/cache"
	"github.com/meetprep/backend/internal/infrastructure/config"
	"github.com/meetprep/backend/internal/infrastructure/event"
	"github.com/meetprep/backend/internal/infrastructure/logger"
	"github.com/meetprep/backend/internal/infrastructure/migration"
	"github.com/meetprep/backend/internal/infrastructure/notify"
	"github.com/meetprep/backend/internal/infrastructure/persistence"
	"github.com/meetprep/backend/internal/infrastructure/provider"
	"github.com/meetprep/backend/internal/infrastructure/scheduler"
	"github.com/meetprep/backend/internal/infrastructure/telemetry"
	"github.com/meetprep/backend/internal/interfaces/http/handler"
	"github.com/meetprep/backend/internal/interfaces/http/middleware"
	"github.com/meetprep/backend/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	baseLog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = baseLog.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log := loggerProvider.Bridge(baseLog, zapcore.InfoLevel)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
		_ = meterProvider.Shutdown(shutdownCtx)
		_ = loggerProvider.Shutdown(shutdownCtx)
	}()

	busMetrics, err := telemetry.NewBusMetrics(meterProvider.Meter("meetprep/bus"))
	if err != nil {
		log.Fatal("Failed to create bus metrics", zap.Error(err))
	}

	log.Info("Starting enrichment orchestrator",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("transport", cfg.Bus.Transport),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.NewDBTracing(cfg.Telemetry, log).Register(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	if cfg.Database.AutoMigrate {
		if err := migration.Apply(cfg.Database.DSN(), log.Named("migrate")); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Redis is needed by the stream transport and the dedup store
	var redisClient *redis.Client
	if cfg.Bus.Transport == config.TransportRedis || cfg.Bus.DedupEnabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
	}

	// Bus
	var universal redis.UniversalClient
	if redisClient != nil {
		universal = redisClient
	}
	transport, err := event.NewTransport(cfg.Bus, universal, log)
	if err != nil {
		log.Fatal("Failed to create transport", zap.Error(err))
	}
	var checkpoints shared.CheckpointStore = event.NewMemoryCheckpointStore()
	if cfg.Bus.Transport == config.TransportRedis {
		checkpoints = persistence.NewGormCheckpointStore(db.DB)
	}

	ledger := persistence.NewGormStatusLedger(db.DB, log.Named("ledger"))
	publisher := event.NewPublisher(transport, ledger, log.Named("publisher"), event.WithPublisherMetrics(busMetrics))

	stores := cache.NewStoreFactory(universal,
		cache.WithLogger(log),
		cache.WithKeyPrefix(cfg.Bus.Namespace+":"),
		cache.WithInMemoryFallback(cfg.Bus.Transport == config.TransportMemory),
	)
	var joins meeting.JoinStore = persistence.NewGormJoinStore(db.DB)
	if cfg.Bus.Transport == config.TransportRedis {
		if joins, err = stores.CreateJoinStore(ctx); err != nil {
			log.Fatal("Failed to create join store", zap.Error(err))
		}
	}

	sink, err := notify.New(ctx, cfg.Notify, log)
	if err != nil {
		log.Fatal("Failed to create notification sink", zap.Error(err))
	}
	defer func() {
		_ = sink.Close()
	}()

	providers := provider.NewSet(cfg.Providers, log.Named("provider"),
		provider.WithCallRecorder(busMetrics),
		provider.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	)

	handlers := orchestration.Handlers(orchestration.Dependencies{
		Persons:   persistence.NewGormPersonRepository(db.DB),
		Companies: persistence.NewGormCompanyRepository(db.DB),
		Meetings:  persistence.NewGormMeetingRepository(db.DB),
		Joins:     joins,
		Ledger:    ledger,
		Publisher: publisher,
		Notifier:  sink,
		Providers: orchestration.Providers{
			PersonPrimary:   providers.PersonPrimary,
			PersonSecondary: providers.PersonSecondary,
			Company:         providers.Company,
			CompanyNews:     providers.CompanyNews,
			Profile:         providers.Profile,
			Goals:           providers.Goals,
		},
		PersonSecondaryTTL: cfg.Freshness.PersonSecondaryTTL,
		CompanyNewsTTL:     cfg.Freshness.CompanyNewsTTL,
		Logger:             log,
	})

	graph := orchestration.Graph(handlers)
	if err := graph.Validate(); err != nil {
		if cfg.Bus.StrictGraph {
			log.Fatal("Saga graph is incomplete", zap.Error(err))
		}
		log.Warn("Saga graph is incomplete", zap.Error(err))
	}

	groupCfg := event.GroupConfig{
		Members:  cfg.Workers.MembersPerGroup,
		DedupTTL: cfg.Bus.DedupTTL,
		Metrics:  busMetrics,
	}
	if cfg.Bus.DedupEnabled {
		if groupCfg.Dedup, err = stores.CreateIdempotencyStore(ctx); err != nil {
			log.Fatal("Failed to create dedup store", zap.Error(err))
		}
	}
	sagaHandlers := make([]event.SagaHandler, 0, len(handlers))
	for _, h := range handlers {
		sagaHandlers = append(sagaHandlers, h)
	}
	workers, err := event.NewSagaWorkers(transport, checkpoints, sagaHandlers, groupCfg, log.Named("worker"))
	if err != nil {
		log.Fatal("Failed to create workers", zap.Error(err))
	}
	runner := event.NewRunner(log.Named("runner"), cfg.Bus.StopTimeout, workers...)

	var compaction *scheduler.CompactionTrigger
	if compactor, ok := transport.(shared.Compactor); ok && cfg.Bus.CompactInterval > 0 {
		compaction = scheduler.NewCompactionTrigger(scheduler.CompactionConfig{
			Interval: cfg.Bus.CompactInterval,
		}, compactor, log.Named("compaction"))
		if err := compaction.Start(ctx); err != nil {
			log.Fatal("Failed to start compaction", zap.Error(err))
		}
	}

	// Ops API
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	checks := map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	var publishLimiter *middleware.RateLimiter
	if cfg.HTTP.PublishRate > 0 {
		publishLimiter = middleware.NewRateLimiter(cfg.HTTP.PublishRate, cfg.HTTP.PublishBurst, 10*time.Minute)
		defer publishLimiter.Stop()
	}

	engine := router.NewOpsEngine(router.OpsConfig{
		Name:         cfg.App.Name,
		Version:      version,
		JWTService:   auth.NewJWTService(cfg.JWT),
		Publisher:    publisher,
		Ledger:       ledger,
		Triggers:     orchestration.Triggers(handlers),
		HealthChecks: checks,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		Meter:          meterProvider.Meter("meetprep/http"),
		BodyLimit:      cfg.HTTP.MaxBodySize,
		PublishLimiter: publishLimiter,
		Logger:         log,
	})
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server and workers
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	runnerErr := make(chan error, 1)
	go func() {
		log.Info("Workers starting", zap.Int("workers", len(workers)), zap.Int("handlers", len(handlers)))
		runnerErr <- runner.Run(ctx)
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
		stop()
	case err := <-runnerErr:
		log.Error("Workers stopped unexpectedly", zap.Error(err))
		stop()
		runnerErr <- err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := <-runnerErr; err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Workers exited with error", zap.Error(err))
	}
	if compaction != nil {
		if err := compaction.Stop(shutdownCtx); err != nil {
			log.Error("Compaction did not stop in time", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}
