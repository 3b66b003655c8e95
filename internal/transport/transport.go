// Package transport defines the capability interface a tenant session uses
// to reach the messaging network. Two variants exist: the native protocol
// client and an HTTP forwarder to an upstream Cloud-API-shaped endpoint.
package transport

import (
	"context"
	"errors"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/models"
)

// Sentinel errors raised by stale or absent transports. Inert operations
// installed after a disconnect fail fast with ErrReloadedSession instead of
// silently no-op-ing.
var (
	ErrReloadedSession = errors.New("transport: session was reloaded, reconnect and retry")
	ErrNotConnected    = errors.New("transport: not connected")
	ErrNotSupported    = errors.New("transport: operation not supported by this variant")
)

// GroupMetadata is the subset of group information used for webhook
// enrichment.
type GroupMetadata struct {
	ID           string   `json:"id"`
	Subject      string   `json:"subject"`
	Participants []string `json:"participants,omitempty"`
}

// Callbacks receives protocol events from a live transport. Events for one
// tenant are delivered in the order the transport produced them.
type Callbacks struct {
	// OnEvents delivers normalized native message batches tagged by kind.
	OnEvents func(ctx context.Context, kind models.EventKind, msgs []models.NativeMessage)
	// OnQRCode delivers a pairing code with its rendered PNG and attempt counter.
	OnQRCode func(ctx context.Context, attempt int, code string, png []byte)
	// OnCall reports an incoming ringing call.
	OnCall func(ctx context.Context, callID, from string)
	// OnConnected reports that the transport finished authenticating. For
	// variants that connect asynchronously this may fire well after Connect
	// returned, e.g. once QR pairing completes.
	OnConnected func()
	// OnDisconnected reports a dropped connection; the session manager may
	// reconnect with an incremented attempt counter.
	OnDisconnected func(reason string)
	// OnLoggedOut reports a credential invalidation by the network.
	OnLoggedOut func()
	// OnNotify delivers out-of-band notices for the session webhook.
	OnNotify func(ctx context.Context, level, text string)
}

// Client is the per-tenant transport capability. Close must cancel any
// pending operation.
type Client interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, to string, content *models.NativeSend, opts models.SendOptions) (*models.NativeSendResult, error)
	Read(ctx context.Context, key models.NativeKey) error
	Delete(ctx context.Context, key models.NativeKey) error
	RejectCall(ctx context.Context, callID, from string) error
	Exists(ctx context.Context, phone string) (models.Exists, error)
	ProfilePictureURL(ctx context.Context, jid string) (string, error)
	GroupMetadata(ctx context.Context, jid string) (*GroupMetadata, error)
	Logout(ctx context.Context) error
	Close() error
}

// Factory builds a client for one tenant snapshot with its callbacks
// installed. The session manager picks the factory by connection type once
// at session creation.
type Factory func(ctx context.Context, tenant config.Tenant, callbacks Callbacks) (Client, error)
