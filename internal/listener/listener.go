// Package listener forwards normalized inbound batches to the tenant's
// webhook endpoint.
package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/metrics"
	"github.com/example/whatsapp-gateway/internal/models"
)

// Webhook delivers each payload of a batch as one POST to the tenant's
// webhook URL. Tenants without a webhook URL drop their batches with a log
// line only.
type Webhook struct {
	tenants config.Provider
	http    *http.Client
	logger  zerolog.Logger
}

// NewWebhook builds the webhook listener.
func NewWebhook(tenants config.Provider, httpClient *http.Client, logger zerolog.Logger) (*Webhook, error) {
	if tenants == nil {
		return nil, fmt.Errorf("listener: tenant provider is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Webhook{
		tenants: tenants,
		http:    httpClient,
		logger:  logger.With().Str("component", "webhook_listener").Logger(),
	}, nil
}

// Process delivers one batch. Payloads within a batch are posted in order;
// a failed delivery aborts the rest of the batch so the caller can decide
// whether the error matters.
func (w *Webhook) Process(ctx context.Context, phone string, kind models.EventKind, payloads []models.WebhookPayload) error {
	metrics.InboundEvents.WithLabelValues(string(kind)).Add(float64(len(payloads)))

	tenant, err := w.tenants.GetTenant(ctx, phone)
	if err != nil {
		return fmt.Errorf("listener: fetch tenant %s: %w", phone, err)
	}
	if tenant.WebhookURL == "" {
		w.logger.Debug().Str("phone", phone).Str("kind", string(kind)).Int("count", len(payloads)).Msg("no webhook configured, batch dropped")
		return nil
	}

	for i := range payloads {
		if err := w.post(ctx, tenant, &payloads[i]); err != nil {
			metrics.WebhookDeliveries.WithLabelValues("error").Inc()
			return fmt.Errorf("listener: deliver %s batch for %s: %w", kind, phone, err)
		}
		metrics.WebhookDeliveries.WithLabelValues("ok").Inc()
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, tenant config.Tenant, payload *models.WebhookPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tenant.WebhookURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tenant.WebhookToken != "" {
		req.Header.Set("Authorization", "Bearer "+tenant.WebhookToken)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
