package forward

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/models"
	"github.com/example/whatsapp-gateway/internal/transformer"
	"github.com/example/whatsapp-gateway/internal/transport"
)

const testPhone = "5531912345678"

func newClient(t *testing.T, srv *httptest.Server) transport.Client {
	t.Helper()
	factory := NewFactory(srv.Client(), zerolog.Nop())
	client, err := factory(context.Background(), config.Tenant{
		Phone:        testPhone,
		ForwardURL:   srv.URL,
		ForwardToken: "fwd-token",
	}, transport.Callbacks{})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return client
}

func TestSendPostsCloudBodyAndAdoptsUpstreamID(t *testing.T) {
	var captured map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &captured); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.UPSTREAM"}]}`))
	}))
	defer srv.Close()

	client := newClient(t, srv)
	result, err := client.Send(context.Background(), "4917012345678", &models.NativeSend{Text: "hello"}, models.SendOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Key.ID != "wamid.UPSTREAM" || !result.Key.FromMe {
		t.Fatalf("unexpected result key: %+v", result.Key)
	}
	if auth != "Bearer fwd-token" {
		t.Fatalf("expected forward token header, got %q", auth)
	}
	if captured["type"] != "text" || captured["to"] != "4917012345678" {
		t.Fatalf("unexpected body: %v", captured)
	}
	text, ok := captured["text"].(map[string]any)
	if !ok || text["body"] != "hello" {
		t.Fatalf("unexpected text payload: %v", captured["text"])
	}
}

func TestSendUnauthorizedClassifiesAsAuthInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newClient(t, srv)
	_, err := client.Send(context.Background(), "4917012345678", &models.NativeSend{Text: "hello"}, models.SendOptions{})

	var sendErr *transformer.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected classified send error, got %v", err)
	}
	if sendErr.Code != transformer.CodeAuthInvalid {
		t.Fatalf("expected auth invalid code, got %d", sendErr.Code)
	}
}

func TestDeleteIsNotSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newClient(t, srv)
	if err := client.Delete(context.Background(), models.NativeKey{ID: "wamid.1"}); !errors.Is(err, transport.ErrNotSupported) {
		t.Fatalf("expected not supported, got %v", err)
	}
}

func TestFactoryRequiresForwardURL(t *testing.T) {
	factory := NewFactory(nil, zerolog.Nop())
	if _, err := factory(context.Background(), config.Tenant{Phone: testPhone}, transport.Callbacks{}); err == nil {
		t.Fatalf("expected error for missing forward url")
	}
}
