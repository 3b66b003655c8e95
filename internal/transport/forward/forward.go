// Package forward implements the transport variant that relays sends to an
// upstream Cloud-API-shaped endpoint instead of holding a protocol socket.
// Inbound traffic for forward tenants arrives through the gateway's webhook
// route rather than through this client.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/models"
	"github.com/example/whatsapp-gateway/internal/transformer"
	"github.com/example/whatsapp-gateway/internal/transport"
)

// Client forwards outbound operations over HTTP.
type Client struct {
	tenant config.Tenant
	http   *http.Client
	logger zerolog.Logger
}

// NewFactory returns a transport.Factory building forward clients that share
// the supplied HTTP client.
func NewFactory(httpClient *http.Client, logger zerolog.Logger) transport.Factory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return func(_ context.Context, tenant config.Tenant, _ transport.Callbacks) (transport.Client, error) {
		if strings.TrimSpace(tenant.ForwardURL) == "" {
			return nil, fmt.Errorf("forward: tenant %s has no forward url", tenant.Phone)
		}
		return &Client{
			tenant: tenant,
			http:   httpClient,
			logger: logger.With().Str("component", "forward-transport").Str("phone", tenant.Phone).Logger(),
		}, nil
	}
}

// Connect verifies the upstream is reachable. The forwarder holds no
// long-lived connection, so this is a configuration check only.
func (c *Client) Connect(_ context.Context) error {
	return nil
}

// Send relays the content to the upstream messages endpoint and adapts the
// Cloud-shaped response into a native send result.
func (c *Client) Send(ctx context.Context, to string, content *models.NativeSend, _ models.SendOptions) (*models.NativeSendResult, error) {
	if content == nil {
		return nil, fmt.Errorf("forward: content is required")
	}
	body := cloudBody(to, content)

	respBody, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Messages []models.MessageID `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("forward: decode response: %w", err)
	}
	id := uuid.NewString()
	if len(parsed.Messages) > 0 && parsed.Messages[0].ID != "" {
		id = parsed.Messages[0].ID
	}
	return &models.NativeSendResult{Key: models.NativeKey{
		ID:        id,
		RemoteJID: transformer.ToJID(to),
		FromMe:    true,
	}}, nil
}

// Read relays a read receipt for the referenced message id.
func (c *Client) Read(ctx context.Context, key models.NativeKey) error {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        key.ID,
	}
	_, err := c.post(ctx, body)
	return err
}

// Delete is not expressible on the upstream contract.
func (c *Client) Delete(_ context.Context, _ models.NativeKey) error {
	return transport.ErrNotSupported
}

// RejectCall is not expressible on the upstream contract.
func (c *Client) RejectCall(_ context.Context, _, _ string) error {
	return transport.ErrNotSupported
}

// Exists assumes upstream destinations are valid; the upstream rejects the
// send itself when they are not.
func (c *Client) Exists(_ context.Context, phone string) (models.Exists, error) {
	wa := transformer.WaIDFromJID(phone)
	return models.Exists{Phone: phone, JID: transformer.ToJID(wa), Valid: wa != ""}, nil
}

// ProfilePictureURL is not available through the forwarder.
func (c *Client) ProfilePictureURL(_ context.Context, _ string) (string, error) {
	return "", transport.ErrNotSupported
}

// GroupMetadata is not available through the forwarder.
func (c *Client) GroupMetadata(_ context.Context, _ string) (*transport.GroupMetadata, error) {
	return nil, transport.ErrNotSupported
}

// Logout discards nothing; the forwarder is stateless.
func (c *Client) Logout(_ context.Context) error {
	return nil
}

// Close discards nothing; the forwarder is stateless.
func (c *Client) Close() error {
	return nil
}

func (c *Client) post(ctx context.Context, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("forward: marshal request: %w", err)
	}

	url := strings.TrimRight(c.tenant.ForwardURL, "/") + "/" + c.tenant.Phone + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("forward: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tenant.ForwardToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.tenant.ForwardToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward: post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("forward: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, transformer.NewSendError(transformer.CodeAuthInvalid, "The upstream rejected the gateway credentials")
		}
		return nil, transformer.NewSendError(transformer.CodeGeneric, fmt.Sprintf("Upstream returned status %d", resp.StatusCode))
	}
	return respBody, nil
}

// cloudBody renders native content back into the Cloud-API send shape the
// upstream expects.
func cloudBody(to string, content *models.NativeSend) map[string]any {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
	}
	switch {
	case content.Media != nil:
		m := map[string]any{"link": content.Media.URL}
		if content.Media.Caption != "" {
			m["caption"] = content.Media.Caption
		}
		if content.Media.FileName != "" {
			m["filename"] = content.Media.FileName
		}
		body["type"] = content.Media.Kind
		body[content.Media.Kind] = m
	case content.Vcards != nil:
		body["type"] = models.TypeContacts
		body["contacts"] = content.Vcards.Cards
	case content.Location != nil:
		body["type"] = "location"
		body["location"] = content.Location
	case content.List != nil:
		body["type"] = models.TypeInteractive
		body["interactive"] = content.List
	case content.Template != nil:
		body["type"] = models.TypeText
		body["text"] = map[string]any{"body": content.Template.Text}
	default:
		body["type"] = models.TypeText
		body["text"] = map[string]any{"body": content.Text}
	}
	return body
}
