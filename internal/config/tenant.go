package config

import (
	"context"
	"sync"
)

// Connection types selecting the transport variant for a tenant.
const (
	ConnectionNative  = "native"
	ConnectionForward = "forward"
)

// Tenant is an immutable per-fetch configuration snapshot for one phone
// number. A fresh snapshot is fetched on every (re)connect, so mutating a
// returned value never affects a live session.
type Tenant struct {
	Phone                 string
	ConnectionType        string
	AutoConnect           bool
	WebhookURL            string
	WebhookToken          string
	SessionWebhookURL     string
	ForwardURL            string
	ForwardToken          string
	RejectCalls           bool
	RejectCallText        string
	CallWebhookText       string
	ReadOnReceipt         bool
	IgnoreHistoryMessages bool
	IgnoreGroupMessages   bool
	IgnoreStatusMessages  bool
	SendProfilePicture    bool
	SendReactionAsReply   bool
	ThrowWebhookError     bool
	Composing             bool
}

// Provider yields tenant configuration snapshots.
type Provider interface {
	GetTenant(ctx context.Context, phone string) (Tenant, error)
}

// StaticProvider serves process-level defaults with optional per-phone
// overrides. Overrides are applied to a copy of the defaults, never shared.
type StaticProvider struct {
	defaults TenantDefaults

	mu        sync.RWMutex
	overrides map[string]func(*Tenant)
}

// NewStaticProvider builds a provider around the supplied defaults.
func NewStaticProvider(defaults TenantDefaults) *StaticProvider {
	return &StaticProvider{
		defaults:  defaults,
		overrides: make(map[string]func(*Tenant)),
	}
}

// Override registers a mutation applied on top of the defaults for one
// phone. Passing nil removes a previously registered override.
func (p *StaticProvider) Override(phone string, fn func(*Tenant)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn == nil {
		delete(p.overrides, phone)
		return
	}
	p.overrides[phone] = fn
}

// GetTenant returns a fresh snapshot for the phone.
func (p *StaticProvider) GetTenant(_ context.Context, phone string) (Tenant, error) {
	t := Tenant{
		Phone:                 phone,
		ConnectionType:        p.defaults.ConnectionType,
		AutoConnect:           p.defaults.AutoConnect,
		WebhookURL:            p.defaults.WebhookURL,
		WebhookToken:          p.defaults.WebhookToken,
		SessionWebhookURL:     p.defaults.SessionWebhookURL,
		ForwardURL:            p.defaults.ForwardURL,
		ForwardToken:          p.defaults.ForwardToken,
		RejectCalls:           p.defaults.RejectCalls,
		RejectCallText:        p.defaults.RejectCallText,
		CallWebhookText:       p.defaults.CallWebhookText,
		ReadOnReceipt:         p.defaults.ReadOnReceipt,
		IgnoreHistoryMessages: p.defaults.IgnoreHistoryMessages,
		IgnoreGroupMessages:   p.defaults.IgnoreGroupMessages,
		IgnoreStatusMessages:  p.defaults.IgnoreStatusMessages,
		SendProfilePicture:    p.defaults.SendProfilePicture,
		SendReactionAsReply:   p.defaults.SendReactionAsReply,
		ThrowWebhookError:     p.defaults.ThrowWebhookError,
		Composing:             p.defaults.Composing,
	}

	p.mu.RLock()
	fn := p.overrides[phone]
	p.mu.RUnlock()
	if fn != nil {
		fn(&t)
	}
	return t, nil
}
