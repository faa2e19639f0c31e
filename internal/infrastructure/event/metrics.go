package event

import (
	"context"
	"time"

	"github.com/meetprep/backend/internal/domain/topic"
)

// Metrics receives bus activity. The telemetry package provides the OpenTelemetry
// implementation; the default discards everything.
type Metrics interface {
	RecordPublished(ctx context.Context, t topic.Topic)
	RecordDelivered(ctx context.Context, group string, t topic.Topic)
	RecordHandled(ctx context.Context, handler string, t topic.Topic, elapsed time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordPublished(context.Context, topic.Topic) {}

func (noopMetrics) RecordDelivered(context.Context, string, topic.Topic) {}

func (noopMetrics) RecordHandled(context.Context, string, topic.Topic, time.Duration, error) {}
