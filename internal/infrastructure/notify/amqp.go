package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Channel is the part of *amqp.Channel the notifier uses
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// message is the JSON body of a notification
type message struct {
	Topic         string    `json:"topic"`
	TenantID      string    `json:"tenant_id,omitempty"`
	ObjectID      string    `json:"object_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CausedBy      string    `json:"caused_by,omitempty"`
	Message       string    `json:"message,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AMQPNotifier publishes notifications as persistent JSON messages on a topic exchange
type AMQPNotifier struct {
	ch         Channel
	conn       *amqp.Connection
	exchange   string
	routingKey string
	logger     *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewAMQPNotifier creates a notifier on an open channel
func NewAMQPNotifier(ch Channel, exchange, routingKey string, logger *zap.Logger) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, exchange: exchange, routingKey: routingKey, logger: logger.Named("notify")}
}

// DialAMQP connects to the broker, opens a channel and declares the exchange
func DialAMQP(ctx context.Context, cfg config.NotifyConfig, logger *zap.Logger) (*AMQPNotifier, error) {
	if cfg.AMQPURL == "" {
		return nil, errors.New("notify.amqp_url is required for the amqp sink")
	}
	conn, err := amqp.DialConfig(cfg.AMQPURL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Properties: amqp.Table{
			"connection_name": "meetprep-notify",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	n := NewAMQPNotifier(ch, cfg.Exchange, cfg.RoutingKey, logger)
	n.conn = conn
	logger.Info("AMQP notifier connected",
		zap.String("exchange", cfg.Exchange),
		zap.String("routing_key", cfg.RoutingKey),
	)
	return n, nil
}

// Notify publishes n. The routing key is suffixed with the failure topic so consumers may
// bind to a single saga.
func (n *AMQPNotifier) Notify(ctx context.Context, note shared.Notification) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return errors.New("notifier closed")
	}

	body, err := json.Marshal(message{
		Topic:         note.Topic.String(),
		TenantID:      note.TenantID,
		ObjectID:      note.ObjectID,
		CorrelationID: note.CorrelationID,
		CausedBy:      note.CausedBy.String(),
		Message:       note.Message,
		OccurredAt:    note.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	err = n.ch.PublishWithContext(ctx, n.exchange, n.routingKey+"."+note.Topic.String(), false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: note.CorrelationID,
		Timestamp:     note.OccurredAt.UTC(),
		Type:          note.Topic.String(),
		Headers: amqp.Table{
			"tenant_id": note.TenantID,
		},
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close closes the channel and the connection
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	err := n.ch.Close()
	if n.conn != nil {
		err = errors.Join(err, n.conn.Close())
	}
	return err
}

var _ Sink = (*AMQPNotifier)(nil)
