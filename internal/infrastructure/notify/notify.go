// Package notify delivers saga failure notifications to operators
package notify

import (
	"context"
	"fmt"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Sink is a notifier holding resources that must be released on shutdown
type Sink interface {
	shared.Notifier
	Close() error
}

// New creates the sink selected by cfg.Sink
func New(ctx context.Context, cfg config.NotifyConfig, logger *zap.Logger) (Sink, error) {
	switch cfg.Sink {
	case "", config.NotifyLog:
		return NewLogNotifier(logger), nil
	case config.NotifyAMQP:
		return DialAMQP(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown notify sink %q", cfg.Sink)
	}
}

// LogNotifier writes notifications to the application log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify logs n at warn level
func (n *LogNotifier) Notify(_ context.Context, note shared.Notification) error {
	n.logger.Warn("enrichment saga failed",
		zap.String("topic", note.Topic.String()),
		zap.String("tenant_id", note.TenantID),
		zap.String("object_id", note.ObjectID),
		zap.String("correlation_id", note.CorrelationID),
		zap.String("caused_by", note.CausedBy.String()),
		zap.String("message", note.Message),
		zap.Time("occurred_at", note.OccurredAt),
	)
	return nil
}

// Close is a no-op
func (n *LogNotifier) Close() error { return nil }

var _ Sink = (*LogNotifier)(nil)
