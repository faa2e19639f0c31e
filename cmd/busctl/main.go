// Command busctl is the operator tool of the enrichment bus
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/cache"
	"github.com/meetprep/backend/internal/infrastructure/config"
	"github.com/meetprep/backend/internal/infrastructure/event"
	"github.com/meetprep/backend/internal/infrastructure/logger"
	"github.com/meetprep/backend/internal/infrastructure/persistence"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// loadConfig is replaced in tests
var loadConfig = config.Load

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "busctl",
	Short:         "Operate the enrichment event bus",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runtime holds the resources a command opened. Close releases them.
type runtime struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *persistence.Database
	redis *redis.Client
}

func newRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &runtime{cfg: cfg, log: log}, nil
}

func (r *runtime) database() (*persistence.Database, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := persistence.NewDatabaseWithLogger(&r.cfg.Database,
		logger.NewGormLogger(r.log, logger.MapGormLogLevel(logLevel)))
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

// bus opens the configured transport with durable checkpoints. The memory transport only
// lives inside the server process, so busctl refuses it.
func (r *runtime) bus(ctx context.Context) (shared.Transport, shared.CheckpointStore, error) {
	if r.cfg.Bus.Transport != config.TransportRedis {
		return nil, nil, fmt.Errorf("bus.transport is %q: busctl needs the redis transport", r.cfg.Bus.Transport)
	}
	if r.redis == nil {
		client, err := cache.NewRedisClient(ctx, r.cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		r.redis = client
	}
	transport, err := event.NewTransport(r.cfg.Bus, r.redis, r.log)
	if err != nil {
		return nil, nil, err
	}
	db, err := r.database()
	if err != nil {
		return nil, nil, err
	}
	return transport, persistence.NewGormCheckpointStore(db.DB), nil
}

func (r *runtime) Close() {
	if r.redis != nil {
		_ = r.redis.Close()
	}
	if r.db != nil {
		_ = r.db.Close()
	}
	_ = r.log.Sync()
}
