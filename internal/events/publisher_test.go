package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/models"
)

type fakeProducer struct {
	topics   []string
	keys     []string
	payloads [][]byte
}

func (f *fakeProducer) PublishSync(topic string, key []byte, _ map[string][]byte, payload []byte) error {
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, string(key))
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestStatusPublisherPublishesKeyedByMessageID(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewStatusPublisher(prod, "gateway.status", zerolog.Nop())

	event := models.StatusEvent{MessageID: "msg-1", Phone: "5531912345678", EventType: models.StatusEventSent}
	if err := pub.PublishStatus(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prod.topics[0] != "gateway.status" || prod.keys[0] != "msg-1" {
		t.Fatalf("unexpected publish target: topic=%s key=%s", prod.topics[0], prod.keys[0])
	}

	var decoded models.StatusEvent
	if err := json.Unmarshal(prod.payloads[0], &decoded); err != nil {
		t.Fatalf("payload is not valid json: %v", err)
	}
	if decoded.EventType != models.StatusEventSent {
		t.Fatalf("unexpected event type: %s", decoded.EventType)
	}
}

func TestNilStatusPublisherDropsEvents(t *testing.T) {
	var pub *StatusPublisher
	if err := pub.PublishStatus(context.Background(), models.StatusEvent{MessageID: "msg-1"}); err != nil {
		t.Fatalf("expected nil publisher to drop silently, got %v", err)
	}
}

func TestNewStatusPublisherWithoutProducerIsNil(t *testing.T) {
	if pub := NewStatusPublisher(nil, "gateway.status", zerolog.Nop()); pub != nil {
		t.Fatalf("expected nil publisher without a producer")
	}
}

func TestDLQPublisherPublishesRecord(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewDLQPublisher(prod, "gateway.dlq", zerolog.Nop())

	record := models.DLQRecord{MessageID: "msg-1", Phone: "5531912345678", FailureType: models.FailureTypeTransient}
	if err := pub.PublishDLQ(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prod.topics[0] != "gateway.dlq" || prod.keys[0] != "msg-1" {
		t.Fatalf("unexpected publish target: topic=%s key=%s", prod.topics[0], prod.keys[0])
	}
}
