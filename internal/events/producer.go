// Package events publishes session and send lifecycle records to Kafka.
// Publishing is optional; a gateway configured without brokers runs with nop
// publishers and loses nothing but the event stream.
package events

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

const metadataRefreshInterval = 30 * time.Second

// Producer wraps a Sarama sync producer and tracks readiness through
// periodic metadata refreshes.
type Producer struct {
	logger zerolog.Logger

	client       sarama.Client
	syncProducer sarama.SyncProducer

	ready  atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewProducer connects to the cluster and starts the metadata watcher.
func NewProducer(brokers []string, logger zerolog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: at least one broker is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 6
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Metadata.Full = true
	cfg.Metadata.RefreshFrequency = metadataRefreshInterval

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create client: %w", err)
	}
	syncProd, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("events: create sync producer: %w", err)
	}

	p := &Producer{
		logger:       logger.With().Str("component", "events_producer").Logger(),
		client:       client,
		syncProducer: syncProd,
		stopCh:       make(chan struct{}),
	}

	if err := p.client.RefreshMetadata(); err != nil {
		p.logger.Error().Err(err).Msg("initial metadata refresh failed")
	} else {
		p.ready.Store(true)
	}

	p.wg.Add(1)
	go p.watchMetadata()

	return p, nil
}

// PublishSync publishes one record and waits for broker acknowledgement.
func (p *Producer) PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	if topic == "" {
		return errors.New("events: topic is required")
	}

	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Value:   sarama.ByteEncoder(payload),
		Headers: toRecordHeaders(headers),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}

	if _, _, err := p.syncProducer.SendMessage(msg); err != nil {
		p.ready.Store(false)
		return fmt.Errorf("events: send sync: %w", err)
	}
	p.ready.Store(true)
	return nil
}

// IsReady indicates whether the cluster metadata was refreshed recently.
func (p *Producer) IsReady() bool {
	return p.ready.Load()
}

// Close stops the watcher and releases the producer and client.
func (p *Producer) Close() error {
	close(p.stopCh)
	p.wg.Wait()

	var errs []error
	if err := p.syncProducer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (p *Producer) watchMetadata() {
	defer p.wg.Done()

	ticker := time.NewTicker(metadataRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.client.RefreshMetadata(); err != nil {
				p.logger.Error().Err(err).Msg("metadata refresh failed")
				p.ready.Store(false)
			} else {
				p.ready.Store(true)
			}
		}
	}
}

func toRecordHeaders(headers map[string][]byte) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: v})
	}
	return out
}
