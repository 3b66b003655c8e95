package broker

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/config"
)

// Handler processes one delivery. The handler owns the ack decision through
// the returned error: nil acks, an error nacks without requeue so the broker
// dead-letters the message.
type Handler func(ctx context.Context, delivery amqp.Delivery) error

// Consumer drains the durable queue of one transport variant and dispatches
// deliveries to the handler on a bounded worker pool.
type Consumer struct {
	conn    *amqp.Connection
	cfg     config.AMQPConfig
	variant string
	handler Handler
	logger  zerolog.Logger

	ch   *amqp.Channel
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewConsumer declares the variant topology and returns an idle consumer.
func NewConsumer(conn *amqp.Connection, cfg config.AMQPConfig, variant string, handler Handler, logger zerolog.Logger) (*Consumer, error) {
	if conn == nil {
		return nil, fmt.Errorf("broker: connection is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("broker: handler is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("broker: open channel: %w", err)
	}
	if err := declareTopology(ch, cfg, variant); err != nil {
		ch.Close()
		return nil, err
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("broker: set prefetch: %w", err)
	}

	return &Consumer{
		conn:    conn,
		cfg:     cfg,
		variant: variant,
		handler: handler,
		logger:  logger.With().Str("component", "broker_consumer").Str("variant", variant).Logger(),
		ch:      ch,
		done:    make(chan struct{}),
	}, nil
}

// Start consumes the queue until the context is cancelled or Close is
// called. Each delivery is handled on its own goroutine; the channel
// prefetch bounds the number in flight.
func (c *Consumer) Start(ctx context.Context) error {
	var startErr error
	c.once.Do(func() {
		queue := QueueName(c.cfg.QueuePrefix, c.variant)
		deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			startErr = fmt.Errorf("broker: consume %s: %w", queue, err)
			return
		}
		c.logger.Info().Str("queue", queue).Msg("consumer started")

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.done:
					return
				case delivery, ok := <-deliveries:
					if !ok {
						return
					}
					c.wg.Add(1)
					go func(d amqp.Delivery) {
						defer c.wg.Done()
						c.dispatch(ctx, d)
					}(delivery)
				}
			}
		}()
	})
	return startErr
}

func (c *Consumer) dispatch(ctx context.Context, delivery amqp.Delivery) {
	if err := c.handler(ctx, delivery); err != nil {
		c.logger.Error().Err(err).Str("key", delivery.RoutingKey).Msg("delivery failed, dead-lettering")
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			c.logger.Warn().Err(nackErr).Msg("nack failed")
		}
		return
	}
	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Warn().Err(ackErr).Msg("ack failed")
	}
}

// Close stops consumption and releases the channel.
func (c *Consumer) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	err := c.ch.Close()
	c.wg.Wait()
	return err
}
