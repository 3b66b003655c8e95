// Package broker carries outbound send jobs over AMQP. Producers publish
// Cloud-API-shaped requests onto a topic exchange keyed by transport variant
// and tenant phone; the send worker consumes a durable queue per variant.
package broker

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/config"
)

// RoutingKey builds the routing key for one job: provider.<variant>.<phone>.
func RoutingKey(variant, phone string) string {
	return fmt.Sprintf("provider.%s.%s", variant, phone)
}

// QueueName builds the durable queue name consumed for one variant.
func QueueName(prefix, variant string) string {
	return prefix + "." + variant
}

// DialWithRetry connects to the broker with capped exponential backoff,
// honoring context cancellation for graceful shutdown.
func DialWithRetry(ctx context.Context, cfg config.AMQPConfig, logger zerolog.Logger) (*amqp.Connection, error) {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxDialAttempts; attempt++ {
		conn, err := amqp.Dial(cfg.URL)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("broker connected")
			}
			return conn, nil
		}
		lastErr = err

		sleep := cfg.BaseDialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
		if cfg.MaxDialBackoff > 0 && sleep > cfg.MaxDialBackoff {
			sleep = cfg.MaxDialBackoff
		}
		logger.Warn().Err(err).Int("attempt", attempt).Dur("sleep", sleep).Msg("broker dial failed")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("broker: dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("broker: connect after %d attempts: %w", cfg.MaxDialAttempts, lastErr)
}

// declareTopology declares the topic exchange and, when a variant is given,
// its durable queue with binding. Declarations are idempotent on the broker.
func declareTopology(ch *amqp.Channel, cfg config.AMQPConfig, variant string) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("broker: declare exchange %s: %w", cfg.Exchange, err)
	}
	if variant == "" {
		return nil
	}

	queue := QueueName(cfg.QueuePrefix, variant)
	dlq := queue + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("broker: declare dlq %s: %w", dlq, err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("broker: declare queue %s: %w", queue, err)
	}
	pattern := fmt.Sprintf("provider.%s.*", variant)
	if err := ch.QueueBind(queue, pattern, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("broker: bind queue %s to %s: %w", queue, pattern, err)
	}
	return nil
}
