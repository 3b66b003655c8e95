package listener

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/models"
)

const testPhone = "5531912345678"

func textBatch(body string) []models.WebhookPayload {
	value := models.ChangeValue{
		MessagingProduct: "whatsapp",
		Messages: []models.Message{{
			ID:   "wamid.1",
			From: "4917012345678",
			Type: "text",
			Text: &models.Text{Body: body},
		}},
	}
	return []models.WebhookPayload{models.NewWebhookPayload(testPhone, value)}
}

func TestProcessPostsEachPayloadWithBearerToken(t *testing.T) {
	var mu sync.Mutex
	var auths []string
	var bodies []models.WebhookPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload models.WebhookPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		bodies = append(bodies, payload)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tenants := config.NewStaticProvider(config.TenantDefaults{})
	tenants.Override(testPhone, func(tenant *config.Tenant) {
		tenant.WebhookURL = srv.URL
		tenant.WebhookToken = "secret-token"
	})

	listener, err := NewWebhook(tenants, srv.Client(), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to build listener: %v", err)
	}

	batch := append(textBatch("first"), textBatch("second")...)
	if err := listener.Process(context.Background(), testPhone, models.EventMessage, batch); err != nil {
		t.Fatalf("expected delivery to succeed, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("expected two posts, got %d", len(bodies))
	}
	for _, auth := range auths {
		if auth != "Bearer secret-token" {
			t.Fatalf("expected bearer token header, got %q", auth)
		}
	}
}

func TestProcessWithoutWebhookURLDropsBatch(t *testing.T) {
	tenants := config.NewStaticProvider(config.TenantDefaults{})

	listener, err := NewWebhook(tenants, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to build listener: %v", err)
	}
	if err := listener.Process(context.Background(), testPhone, models.EventMessage, textBatch("hi")); err != nil {
		t.Fatalf("expected silent drop without webhook url, got %v", err)
	}
}

func TestProcessNonSuccessStatusFailsDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tenants := config.NewStaticProvider(config.TenantDefaults{})
	tenants.Override(testPhone, func(tenant *config.Tenant) {
		tenant.WebhookURL = srv.URL
	})

	listener, err := NewWebhook(tenants, srv.Client(), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to build listener: %v", err)
	}
	if err := listener.Process(context.Background(), testPhone, models.EventMessage, textBatch("hi")); err == nil {
		t.Fatalf("expected delivery error on non-2xx status")
	}
}
