package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/models"
)

// Publisher enqueues outbound send jobs for the workers. Messages are
// persistent JSON so a broker restart does not drop accepted sends.
type Publisher struct {
	conn   *amqp.Connection
	cfg    config.AMQPConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewPublisher declares the exchange and returns a publisher bound to it.
func NewPublisher(conn *amqp.Connection, cfg config.AMQPConfig, logger zerolog.Logger) (*Publisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("broker: connection is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("broker: open channel: %w", err)
	}
	defer ch.Close()
	if err := declareTopology(ch, cfg, ""); err != nil {
		return nil, err
	}

	return &Publisher{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With().Str("component", "broker_publisher").Logger(),
		now:    time.Now,
	}, nil
}

// Publish routes one job to the variant queue of its tenant.
func (p *Publisher) Publish(ctx context.Context, variant string, job models.OutgoingJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("broker: open channel: %w", err)
	}
	defer ch.Close()

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("broker: marshal job: %w", err)
	}

	traceID := job.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	key := RoutingKey(variant, job.Phone)
	err = ch.PublishWithContext(ctx, p.cfg.Exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     job.Request.MessageID,
		CorrelationId: traceID,
		Timestamp:     p.now(),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("broker: publish %s: %w", key, err)
	}
	p.logger.Debug().Str("key", key).Str("trace_id", traceID).Msg("job published")
	return nil
}

// Close is a no-op; the shared connection is owned by the caller.
func (p *Publisher) Close() error {
	return nil
}
