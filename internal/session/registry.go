package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/store"
	"github.com/example/whatsapp-gateway/internal/transport"
)

// ErrUnknownConnectionType is returned when a tenant snapshot names a
// connection type no factory was registered for.
var ErrUnknownConnectionType = errors.New("session: unknown connection type")

// Dependencies collects the collaborators the registry needs. Stores and
// tables are passed by reference so nothing in this package reaches for
// process globals.
type Dependencies struct {
	Tenants   config.Provider
	Stores    *store.Stores
	Factories map[string]transport.Factory
	Listener  Listener
	HTTP      *http.Client
	Logger    zerolog.Logger
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Registry is the tenant-keyed session store. At most one Session exists per
// phone number; concurrent GetOrCreate calls for the same phone observe a
// single in-flight creation.
type Registry struct {
	cfg      config.SessionConfig
	tenants  config.Provider
	stores   *store.Stores
	factory  map[string]transport.Factory
	listener Listener
	http     *http.Client
	logger   zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group
}

// NewRegistry validates the dependencies and returns an empty registry.
func NewRegistry(cfg config.SessionConfig, deps Dependencies) (*Registry, error) {
	if deps.Tenants == nil {
		return nil, errors.New("session: tenant provider dependency is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("session: stores dependency is required")
	}
	if len(deps.Factories) == 0 {
		return nil, errors.New("session: at least one transport factory is required")
	}
	if deps.Listener == nil {
		return nil, errors.New("session: listener dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "session_registry").Logger()

	httpClient := deps.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}
	sleepFunc := deps.Sleep
	if sleepFunc == nil {
		sleepFunc = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}

	return &Registry{
		cfg:      cfg,
		tenants:  deps.Tenants,
		stores:   deps.Stores,
		factory:  deps.Factories,
		listener: deps.Listener,
		http:     httpClient,
		logger:   logger,
		now:      nowFunc,
		sleep:    sleepFunc,
		sessions: make(map[string]*Session),
	}, nil
}

// Get returns the live session for a phone, if any.
func (r *Registry) Get(phone string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[phone]
	return s, ok
}

// GetOrCreate returns the session for a phone, creating it on first use. The
// tenant configuration is fetched fresh for every creation; auto-connect
// tenants are connected before the handle is returned.
func (r *Registry) GetOrCreate(ctx context.Context, phone string) (*Session, error) {
	if s, ok := r.Get(phone); ok {
		return s, nil
	}

	v, err, _ := r.group.Do(phone, func() (interface{}, error) {
		if s, ok := r.Get(phone); ok {
			return s, nil
		}
		s, err := r.create(ctx, phone, 1)
		if err != nil {
			return nil, err
		}
		if s.tenant.AutoConnect {
			if err := s.Connect(ctx, 1); err != nil {
				r.logger.Warn().Err(err).Str("phone", phone).Msg("auto connect failed")
			}
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// create builds a fresh session from a new tenant snapshot and registers it.
func (r *Registry) create(ctx context.Context, phone string, attempt int) (*Session, error) {
	tenant, err := r.tenants.GetTenant(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("session: fetch tenant %s: %w", phone, err)
	}
	factory, ok := r.factory[tenant.ConnectionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnectionType, tenant.ConnectionType)
	}

	s := &Session{
		phone:    phone,
		tenant:   tenant,
		cfg:      r.cfg,
		factory:  factory,
		stores:   r.stores,
		listener: r.listener,
		http:     r.http,
		logger:   r.logger.With().Str("phone", phone).Logger(),
		now:      r.now,
		sleep:    r.sleep,
		attempt:  attempt,
		throttle: newThrottleTable(),
		calls:    newCallTable(r.cfg.CallCooldown, r.now),
	}
	s.onDown = func(reason string, nextAttempt int) {
		r.reconnect(phone, reason, nextAttempt)
	}
	s.onGone = func() {
		r.evict(phone)
	}

	r.mu.Lock()
	r.sessions[phone] = s
	r.mu.Unlock()
	return s, nil
}

// reconnect replaces the session with a fresh one built from a new tenant
// snapshot and retries the connection. Attempt ceilings are enforced here;
// exceeding them leaves the tenant disconnected until the next explicit
// request.
func (r *Registry) reconnect(phone, reason string, attempt int) {
	if attempt > r.cfg.MaxConnectAttempts {
		r.logger.Error().Str("phone", phone).Int("attempt", attempt).Msg("reconnect budget exhausted")
		r.evict(phone)
		return
	}

	go func() {
		ctx := context.Background()
		delay := time.Duration(attempt) * time.Second
		if err := r.sleep(ctx, delay); err != nil {
			return
		}

		r.evict(phone)
		s, err := r.create(ctx, phone, attempt)
		if err != nil {
			r.logger.Error().Err(err).Str("phone", phone).Msg("reconnect create failed")
			return
		}
		if err := s.Connect(ctx, attempt); err != nil {
			r.logger.Warn().Err(err).Str("phone", phone).Str("reason", reason).Int("attempt", attempt).Msg("reconnect failed")
			r.reconnect(phone, "reconnect failed", attempt+1)
		}
	}()
}

// Disconnect tears down the session for a phone and evicts it.
func (r *Registry) Disconnect(ctx context.Context, phone string) {
	if s, ok := r.Get(phone); ok {
		s.Disconnect(ctx)
		r.evict(phone)
	}
}

// Logout logs the tenant out of the network and evicts the session.
func (r *Registry) Logout(ctx context.Context, phone string) error {
	s, ok := r.Get(phone)
	if !ok {
		return nil
	}
	return s.Logout(ctx)
}

// Shutdown disconnects every live session.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Disconnect(ctx)
	}
}

func (r *Registry) evict(phone string) {
	r.mu.Lock()
	delete(r.sessions, phone)
	r.mu.Unlock()
}
