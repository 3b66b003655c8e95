// Package store persists the per-tenant gateway state that survives a
// session: protocol message keys, delivery statuses, id aliases and media
// payloads, plus the connection status of each tenant session.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/models"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("store: not found")

// MediaPayload is the stored Cloud-API-shaped media descriptor for the
// forward transport variant.
type MediaPayload struct {
	MessagingProduct string `json:"messaging_product"`
	ID               string `json:"id"`
	MimeType         string `json:"mime_type,omitempty"`
	SHA256           string `json:"sha256,omitempty"`
	Caption          string `json:"caption"`
	Filename         string `json:"filename,omitempty"`
}

// SessionStore tracks the connection status of each tenant session.
type SessionStore interface {
	GetStatus(ctx context.Context, phone string) (string, error)
	SetStatus(ctx context.Context, phone, status string) error
}

// DataStore persists message-level state for one or more tenants. All keys
// are scoped by tenant phone; one tenant's entries are never visible to
// another.
type DataStore interface {
	SetKey(ctx context.Context, phone, id string, key models.NativeKey) error
	GetKey(ctx context.Context, phone, id string) (*models.NativeKey, error)

	SetMessage(ctx context.Context, phone, id string, msg models.NativeMessage) error
	GetMessage(ctx context.Context, phone, id string) (*models.NativeMessage, error)

	SetMessageStatus(ctx context.Context, phone, id, status string) error
	GetMessageStatus(ctx context.Context, phone, id string) (string, error)

	SetIDAlias(ctx context.Context, phone, alias, id string) error
	GetIDByAlias(ctx context.Context, phone, alias string) (string, error)

	SetMediaPayload(ctx context.Context, phone, id string, payload MediaPayload) error
	GetMediaPayload(ctx context.Context, phone, id string) (*MediaPayload, error)
}

// Stores bundles the capability handles produced for a tenant.
type Stores struct {
	Session SessionStore
	Data    DataStore
}

// New selects the persistence backend from configuration.
func New(cfg config.StoreConfig, logger zerolog.Logger) (*Stores, error) {
	switch cfg.Driver {
	case "", "memory":
		return &Stores{Session: NewMemorySessionStore(), Data: NewMemoryDataStore()}, nil
	case "sqlite", "sqlite3":
		return NewSQLStores(cfg.DSN, logger)
	}
	return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
}
