// Package session owns the per-tenant connection state machine. One Session
// object exists per phone number at any time; it is created lazily by the
// Registry, replaced on reconnect, and destroyed on disconnect or logout.
package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/models"
	"github.com/example/whatsapp-gateway/internal/store"
	"github.com/example/whatsapp-gateway/internal/transformer"
	"github.com/example/whatsapp-gateway/internal/transport"
)

// State is the connection state of one tenant session. Every transport
// operation checks the current state before touching the client, so stale
// handles fail loudly instead of silently no-op-ing.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOnline
	StateStandby
)

// String renders the state for logs and the session store.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	case StateStandby:
		return "standby"
	default:
		return "disconnected"
	}
}

// Listener receives normalized inbound batches from the session manager.
type Listener interface {
	Process(ctx context.Context, phone string, kind models.EventKind, payloads []models.WebhookPayload) error
}

// Session drives the state machine for one tenant. State transitions are
// serialized by the mutex; event callbacks run on the transport's goroutines
// and only read the state atomically.
type Session struct {
	phone    string
	tenant   config.Tenant
	cfg      config.SessionConfig
	factory  transport.Factory
	stores   *store.Stores
	listener Listener
	http     *http.Client
	logger   zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	state   int32
	client  transport.Client
	attempt int

	throttle *throttleTable
	calls    *callTable

	// onDown is installed by the registry; it schedules a reconnect with a
	// fresh tenant snapshot.
	onDown func(reason string, attempt int)
	// onGone is installed by the registry; it evicts this session after a
	// logout or credential invalidation.
	onGone func()
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(ctx context.Context, next State) {
	atomic.StoreInt32(&s.state, int32(next))
	if err := s.stores.Session.SetStatus(ctx, s.phone, next.String()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist session status")
	}
}

// Tenant returns the configuration snapshot this session was built from.
func (s *Session) Tenant() config.Tenant {
	return s.tenant
}

// Connect opens the transport. Calling it while the session is already
// connecting, online or in standby is a logged no-op; the existing handle is
// left untouched.
func (s *Session) Connect(ctx context.Context, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateConnecting, StateOnline, StateStandby:
		s.logger.Info().Str("state", s.State().String()).Int("attempt", attempt).Msg("connect skipped, session already active")
		return nil
	}

	s.attempt = attempt
	s.setState(ctx, StateConnecting)

	client, err := s.factory(ctx, s.tenant, s.callbacks())
	if err != nil {
		s.setState(ctx, StateDisconnected)
		return fmt.Errorf("session: build transport for %s: %w", s.phone, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		_ = client.Close()
		s.setState(ctx, StateDisconnected)
		return fmt.Errorf("session: connect %s attempt %d: %w", s.phone, attempt, err)
	}

	s.client = client
	s.logger.Info().Int("attempt", attempt).Msg("transport opened")

	// The forward variant has no asynchronous login handshake; the native
	// variant reports readiness through the connected callback, possibly
	// after QR pairing.
	if s.tenant.ConnectionType == config.ConnectionForward {
		s.setState(ctx, StateOnline)
	}
	return nil
}

// Disconnect releases the transport handle and rearms the session so every
// later operation fails fast with a reloaded-session error. Safe to call
// repeatedly and from error handlers.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked(ctx)
}

func (s *Session) disconnectLocked(ctx context.Context) {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("transport close failed")
		}
		s.client = nil
	}
	if s.State() != StateDisconnected {
		s.setState(ctx, StateDisconnected)
		s.logger.Info().Msg("session disconnected")
	}
}

// Logout invalidates the pairing on the network, then disconnects.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.client != nil {
		if err = s.client.Logout(ctx); err != nil && !errors.Is(err, transport.ErrNotSupported) {
			s.logger.Warn().Err(err).Msg("protocol logout failed")
		} else {
			err = nil
		}
	}
	s.disconnectLocked(ctx)
	if s.onGone != nil {
		s.onGone()
	}
	return err
}

// Standby pauses webhook-facing activity while keeping the socket alive.
func (s *Session) Standby(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateOnline {
		s.setState(ctx, StateStandby)
	}
}

// clientFor is the single dispatch gate for transport operations. The state
// decides whether the caller gets a live handle or a fail-fast error.
func (s *Session) clientFor() (transport.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.State() {
	case StateOnline, StateStandby:
		if s.client == nil {
			return nil, transport.ErrReloadedSession
		}
		return s.client, nil
	case StateConnecting:
		return nil, transport.ErrNotConnected
	default:
		return nil, transport.ErrReloadedSession
	}
}

func (s *Session) callbacks() transport.Callbacks {
	return transport.Callbacks{
		OnEvents:       s.handleEvents,
		OnQRCode:       s.handleQRCode,
		OnCall:         s.handleCall,
		OnConnected:    s.handleConnected,
		OnDisconnected: s.handleDisconnected,
		OnLoggedOut:    s.handleLoggedOut,
		OnNotify:       s.handleNotify,
	}
}

func (s *Session) handleConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateConnecting {
		s.setState(context.Background(), StateOnline)
		s.logger.Info().Msg("session online")
	}
}

func (s *Session) handleDisconnected(reason string) {
	s.mu.Lock()
	if s.State() == StateDisconnected {
		s.mu.Unlock()
		return
	}
	attempt := s.attempt
	s.disconnectLocked(context.Background())
	s.mu.Unlock()

	s.logger.Warn().Str("reason", reason).Int("attempt", attempt).Msg("transport dropped")
	if s.onDown != nil {
		s.onDown(reason, attempt+1)
	}
}

func (s *Session) handleLoggedOut() {
	s.Disconnect(context.Background())
	s.notify(context.Background(), "error", "The session was logged out on the network, pair the device again")
	if s.onGone != nil {
		s.onGone()
	}
}

// handleEvents normalizes a transport batch and forwards it to the listener.
// Tenant flags gate history imports and group/status traffic before any
// transformation happens.
func (s *Session) handleEvents(ctx context.Context, kind models.EventKind, msgs []models.NativeMessage) {
	if kind == models.EventHistory && s.tenant.IgnoreHistoryMessages {
		s.logger.Debug().Int("count", len(msgs)).Msg("history batch ignored")
		return
	}

	payloads := make([]models.WebhookPayload, 0, len(msgs))
	for _, msg := range msgs {
		chat := msg.Key.RemoteJID
		if s.tenant.IgnoreGroupMessages && transformer.IsGroupJID(chat) {
			continue
		}
		if s.tenant.IgnoreStatusMessages && transformer.IsStatusJID(chat) {
			continue
		}

		payload, senderPhone, _, err := transformer.FromNative(s.phone, msg, transformer.Options{
			SendReactionAsReply: s.tenant.SendReactionAsReply,
		})
		var decryptErr *transformer.DecryptError
		if errors.As(err, &decryptErr) {
			s.logger.Warn().Str("message_id", msg.Key.ID).Msg("undecryptable message forwarded as notice")
		} else if err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.Key.ID).Msg("failed to transform inbound event")
			continue
		}
		if payload == nil {
			continue
		}

		s.recordInbound(ctx, msg, payload)
		s.autoRead(ctx, kind, msg)
		s.enrichContacts(ctx, payload, senderPhone, chat)
		payloads = append(payloads, *payload)
	}

	if len(payloads) == 0 {
		return
	}
	if err := s.listener.Process(ctx, s.phone, kind, payloads); err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("listener rejected inbound batch")
	}
}

// recordInbound persists keys, contents and statuses so later status updates
// and quote lookups can resolve them.
func (s *Session) recordInbound(ctx context.Context, msg models.NativeMessage, payload *models.WebhookPayload) {
	if msg.Key.ID == "" {
		return
	}
	if msg.Content != nil {
		if err := s.stores.Data.SetKey(ctx, s.phone, msg.Key.ID, msg.Key); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store message key")
		}
		if err := s.stores.Data.SetMessage(ctx, s.phone, msg.Key.ID, msg); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store message content")
		}
	}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				if err := s.stores.Data.SetMessageStatus(ctx, s.phone, st.ID, st.Status); err != nil {
					s.logger.Warn().Err(err).Msg("failed to store message status")
				}
			}
		}
	}
}

// autoRead acknowledges qualifying inbound user content when the tenant has
// read-on-receipt enabled.
func (s *Session) autoRead(ctx context.Context, kind models.EventKind, msg models.NativeMessage) {
	if !s.tenant.ReadOnReceipt || kind != models.EventMessage {
		return
	}
	if msg.Key.FromMe || msg.Content == nil {
		return
	}
	client, err := s.clientFor()
	if err != nil {
		return
	}
	if err := client.Read(ctx, msg.Key); err != nil {
		s.logger.Debug().Err(err).Str("message_id", msg.Key.ID).Msg("auto read failed")
	}
}

// enrichContacts fills the sender profile picture when configured. Failures
// never block delivery.
func (s *Session) enrichContacts(ctx context.Context, payload *models.WebhookPayload, senderPhone, chat string) {
	if !s.tenant.SendProfilePicture {
		return
	}
	client, err := s.clientFor()
	if err != nil {
		return
	}
	target := senderPhone
	if transformer.IsGroupJID(chat) {
		target = chat
	}
	url, err := client.ProfilePictureURL(ctx, target)
	if err != nil || url == "" {
		return
	}
	for e := range payload.Entry {
		for c := range payload.Entry[e].Changes {
			for i := range payload.Entry[e].Changes[c].Value.Contacts {
				payload.Entry[e].Changes[c].Value.Contacts[i].Profile.Picture = url
			}
		}
	}
}

// handleQRCode renders the pairing code as a synthetic inbound image message
// so operators can scan it from whatever consumes the webhook.
func (s *Session) handleQRCode(ctx context.Context, attempt int, code string, png []byte) {
	caption := fmt.Sprintf("Pairing code %d of %d. Scan it with the phone.", attempt, s.cfg.MaxConnectAttempts)
	message := models.Message{
		From:      transformer.WaIDFromJID(s.phone),
		ID:        uuid.NewString(),
		Timestamp: fmt.Sprintf("%d", s.now().Unix()),
		Type:      models.TypeImage,
		Image: &models.Media{
			Link:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
			MimeType: "image/png",
			Caption:  caption,
		},
	}
	payload := models.NewWebhookPayload(s.phone, models.ChangeValue{
		Messages: []models.Message{message},
		Contacts: []models.Contact{{WaID: transformer.WaIDFromJID(s.phone)}},
	})
	s.logger.Info().Int("attempt", attempt).Int("code_len", len(code)).Msg("pairing code issued")
	s.deliverSessionEvent(ctx, models.EventQRCode, &payload)
}

// handleNotify forwards out-of-band notices as synthetic text messages.
func (s *Session) handleNotify(ctx context.Context, level, text string) {
	s.notify(ctx, level, text)
}

func (s *Session) notify(ctx context.Context, level, text string) {
	message := models.Message{
		From:      transformer.WaIDFromJID(s.phone),
		ID:        uuid.NewString(),
		Timestamp: fmt.Sprintf("%d", s.now().Unix()),
		Type:      models.TypeText,
		Text:      &models.Text{Body: text},
	}
	payload := models.NewWebhookPayload(s.phone, models.ChangeValue{
		Messages: []models.Message{message},
		Contacts: []models.Contact{{WaID: transformer.WaIDFromJID(s.phone)}},
	})
	s.logger.Info().Str("level", level).Str("text", text).Msg("session notice")
	s.deliverSessionEvent(ctx, models.EventNotify, &payload)
}

// deliverSessionEvent routes pairing and notice payloads to the dedicated
// session webhook when one is configured, falling back to the listener. A
// webhook delivery failure is downgraded to an in-session notice unless the
// tenant demands strict error propagation.
func (s *Session) deliverSessionEvent(ctx context.Context, kind models.EventKind, payload *models.WebhookPayload) {
	if s.tenant.SessionWebhookURL == "" {
		if err := s.listener.Process(ctx, s.phone, kind, []models.WebhookPayload{*payload}); err != nil {
			s.logger.Error().Err(err).Str("kind", string(kind)).Msg("listener rejected session event")
		}
		return
	}

	if err := s.postSessionWebhook(ctx, payload); err != nil {
		if s.tenant.ThrowWebhookError {
			s.logger.Error().Err(err).Msg("session webhook delivery failed")
			return
		}
		s.logger.Warn().Err(err).Msg("session webhook delivery failed, downgraded to notice")
		notice := *payload
		if err := s.listener.Process(ctx, s.phone, models.EventNotify, []models.WebhookPayload{notice}); err != nil {
			s.logger.Error().Err(err).Msg("listener rejected downgraded notice")
		}
	}
}

func (s *Session) postSessionWebhook(ctx context.Context, payload *models.WebhookPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("session: marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tenant.SessionWebhookURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("session: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.tenant.WebhookToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.tenant.WebhookToken)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("session: post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("session: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// handleCall deduplicates ringing events per caller and runs the configured
// rejection and notification flows.
func (s *Session) handleCall(ctx context.Context, callID, from string) {
	caller := transformer.PhoneFromJID(from)
	if !s.calls.ShouldHandle(caller) {
		s.logger.Debug().Str("caller", caller).Msg("repeated ringing suppressed")
		return
	}
	s.logger.Info().Str("caller", caller).Str("call_id", callID).Msg("incoming call")

	if s.tenant.RejectCalls {
		if client, err := s.clientFor(); err == nil {
			if err := client.RejectCall(ctx, callID, from); err != nil && !errors.Is(err, transport.ErrNotSupported) {
				s.logger.Warn().Err(err).Msg("call rejection failed")
			}
		}
		if s.tenant.RejectCallText != "" {
			req := models.SendRequest{
				Type: models.TypeText,
				To:   caller,
				Text: &models.Text{Body: s.tenant.RejectCallText},
			}
			if _, err := s.Send(ctx, req); err != nil {
				s.logger.Warn().Err(err).Msg("failed to send call rejection text")
			}
		}
	}

	if s.tenant.CallWebhookText != "" {
		message := models.Message{
			From:      transformer.WaIDFromJID(caller),
			ID:        uuid.NewString(),
			Timestamp: fmt.Sprintf("%d", s.now().Unix()),
			Type:      models.TypeText,
			Text:      &models.Text{Body: s.tenant.CallWebhookText},
		}
		payload := models.NewWebhookPayload(s.phone, models.ChangeValue{
			Messages: []models.Message{message},
			Contacts: []models.Contact{{WaID: transformer.WaIDFromJID(caller)}},
		})
		if err := s.listener.Process(ctx, s.phone, models.EventMessage, []models.WebhookPayload{payload}); err != nil {
			s.logger.Error().Err(err).Msg("listener rejected call notification")
		}
	}
}
