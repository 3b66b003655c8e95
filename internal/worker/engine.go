// Package worker drains outbound send jobs from the broker, resolves the
// tenant session and runs the send pipeline with retry, backoff and DLQ
// handling.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/whatsapp-gateway/internal/models"
)

// Config contains the runtime settings for retry and concurrency handling.
type Config struct {
	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	WorkerConcurrency int
}

// Sender runs one send against the tenant session. The session layer
// returns classified failures as structured responses; only unclassified
// errors surface through the error return.
type Sender interface {
	Send(ctx context.Context, phone string, req models.SendRequest) (models.SendResponse, error)
}

// StatusPublisher emits lifecycle events for a job.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.StatusEvent) error
}

// DLQPublisher records jobs that exhausted their retry budget.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record models.DLQRecord) error
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Sender          Sender
	StatusPublisher StatusPublisher
	DLQPublisher    DLQPublisher
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Engine orchestrates job processing. One engine serves one variant queue;
// the semaphore bounds concurrent sends across tenants.
type Engine struct {
	cfg             Config
	sender          Sender
	statusPublisher StatusPublisher
	dlqPublisher    DLQPublisher
	logger          zerolog.Logger

	semaphore *semaphore.Weighted
	now       func() time.Time

	randMu sync.Mutex
	rnd    *rand.Rand
}

// NewEngine validates the configuration and collaborators and returns a
// ready engine.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("worker: max attempts must be >= 1")
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, errors.New("worker: worker concurrency must be >= 1")
	}
	if deps.Sender == nil {
		return nil, errors.New("worker: sender dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "worker_engine").Logger()

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Engine{
		cfg:             cfg,
		sender:          deps.Sender,
		statusPublisher: deps.StatusPublisher,
		dlqPublisher:    deps.DLQPublisher,
		logger:          logger,
		semaphore:       semaphore.NewWeighted(int64(cfg.WorkerConcurrency)),
		now:             nowFunc,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// HandleDelivery processes one broker delivery. A malformed payload returns
// an error so the consumer dead-letters it; everything else is resolved
// here, including DLQ publication for exhausted retries.
func (e *Engine) HandleDelivery(ctx context.Context, delivery amqp.Delivery) error {
	var job models.OutgoingJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		e.logger.Error().Err(err).Str("key", delivery.RoutingKey).Msg("malformed job payload")
		return fmt.Errorf("worker: unmarshal job: %w", err)
	}
	if job.Phone == "" {
		return errors.New("worker: job without tenant phone")
	}

	if err := e.semaphore.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("worker: acquire slot: %w", err)
	}
	defer e.semaphore.Release(1)

	e.process(ctx, &job)
	return nil
}

// process runs the retry loop for one job. Classified failures are terminal
// by construction: the session already produced a webhook-shaped response
// for them. Only unclassified transport errors are retried.
func (e *Engine) process(ctx context.Context, job *models.OutgoingJob) {
	logger := e.logger.With().Str("phone", job.Phone).Str("message_id", job.Request.MessageID).Str("trace_id", job.TraceID).Logger()

	firstFailure := time.Time{}
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		e.publishStatus(ctx, job, models.StatusEvent{
			EventType: models.StatusEventAttempt,
			Attempt:   attempt,
		})

		resp, err := e.sender.Send(ctx, job.Phone, job.Request)
		if err == nil {
			event := models.StatusEvent{EventType: models.StatusEventSent, Attempt: attempt}
			if resp.Error != nil {
				event.EventType = models.StatusEventFailed
				event.Error = failureTitle(resp)
				logger.Warn().Str("error", event.Error).Msg("send classified as failed")
			} else {
				logger.Info().Int("attempt", attempt).Msg("send completed")
			}
			e.publishStatus(ctx, job, event)
			return
		}

		lastErr = err
		if firstFailure.IsZero() {
			firstFailure = e.now()
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("send attempt failed")
		e.publishStatus(ctx, job, models.StatusEvent{
			EventType: models.StatusEventFailed,
			Attempt:   attempt,
			Error:     err.Error(),
		})

		if attempt < e.cfg.MaxAttempts {
			if !e.wait(ctx, e.computeBackoff(attempt)) {
				lastErr = ctx.Err()
				break
			}
		}
	}

	e.publishDLQ(ctx, job, models.DLQRecord{
		MessageID:     job.Request.MessageID,
		Phone:         job.Phone,
		OriginalJob:   *job,
		Attempts:      e.cfg.MaxAttempts,
		FailureType:   models.FailureTypeTransient,
		LastError:     errString(lastErr),
		FirstFailedAt: firstFailure,
		LastAttemptAt: e.now(),
		TraceID:       job.TraceID,
	})
	e.publishStatus(ctx, job, models.StatusEvent{
		EventType: models.StatusEventDLQ,
		Attempt:   e.cfg.MaxAttempts,
		Error:     errString(lastErr),
	})
}

// computeBackoff returns the capped exponential delay for an attempt with
// full jitter applied.
func (e *Engine) computeBackoff(attempt int) time.Duration {
	backoff := float64(e.cfg.BaseBackoff) * math.Pow(2, float64(attempt-1))
	if max := float64(e.cfg.MaxBackoff); e.cfg.MaxBackoff > 0 && backoff > max {
		backoff = max
	}
	return e.fullJitter(time.Duration(backoff))
}

func (e *Engine) fullJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return time.Duration(e.rnd.Int63n(int64(max) + 1))
}

func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) publishStatus(ctx context.Context, job *models.OutgoingJob, event models.StatusEvent) {
	if e.statusPublisher == nil {
		return
	}
	event.MessageID = job.Request.MessageID
	event.Phone = job.Phone
	event.TraceID = job.TraceID
	event.Timestamp = e.now()
	if err := e.statusPublisher.PublishStatus(ctx, event); err != nil {
		e.logger.Warn().Err(err).Str("event", event.EventType).Msg("status publish failed")
	}
}

func (e *Engine) publishDLQ(ctx context.Context, job *models.OutgoingJob, record models.DLQRecord) {
	if e.dlqPublisher == nil {
		return
	}
	if err := e.dlqPublisher.PublishDLQ(ctx, record); err != nil {
		e.logger.Error().Err(err).Msg("dlq publish failed")
	}
}

func failureTitle(resp models.SendResponse) string {
	for _, entry := range resp.Error.Entry {
		for _, change := range entry.Changes {
			for _, status := range change.Value.Statuses {
				for _, detail := range status.Errors {
					return fmt.Sprintf("%d: %s", detail.Code, detail.Title)
				}
			}
		}
	}
	return "classified send failure"
}

func errString(err error) string {
	if err == nil {
		return "retry budget exhausted"
	}
	return err.Error()
}
