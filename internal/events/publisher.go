package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/models"
)

var errProducerNotInitialised = errors.New("events: producer not initialised")

// SyncProducer is the producer subset the publishers rely on.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// StatusPublisher emits send lifecycle events. A nil publisher is valid and
// drops every event, which is how a Kafka-less deployment runs.
type StatusPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewStatusPublisher constructs a StatusPublisher, or nil when no producer
// is available.
func NewStatusPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *StatusPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &StatusPublisher{producer: prod, topic: topic, logger: logger}
}

// PublishStatus writes one status event synchronously.
func (p *StatusPublisher) PublishStatus(_ context.Context, event models.StatusEvent) error {
	if p == nil {
		return nil
	}
	if p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal status event: %w", err)
	}
	headers := map[string][]byte{"content-type": []byte("application/json")}
	if err := p.producer.PublishSync(p.topic, []byte(event.MessageID), headers, payload); err != nil {
		return fmt.Errorf("events: publish status event: %w", err)
	}
	return nil
}

// DLQPublisher records sends that exhausted their retry budget.
type DLQPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewDLQPublisher constructs a DLQPublisher, or nil when no producer is
// available.
func NewDLQPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *DLQPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &DLQPublisher{producer: prod, topic: topic, logger: logger}
}

// PublishDLQ writes one DLQ record synchronously.
func (p *DLQPublisher) PublishDLQ(_ context.Context, record models.DLQRecord) error {
	if p == nil {
		return nil
	}
	if p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("events: marshal dlq record: %w", err)
	}
	headers := map[string][]byte{"content-type": []byte("application/json")}
	if err := p.producer.PublishSync(p.topic, []byte(record.MessageID), headers, payload); err != nil {
		return fmt.Errorf("events: publish dlq record: %w", err)
	}
	return nil
}
