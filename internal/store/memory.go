package store

import (
	"context"
	"sync"

	"github.com/example/whatsapp-gateway/internal/models"
)

// MemorySessionStore keeps connection statuses in process memory. It is the
// default backend and the one used by tests.
type MemorySessionStore struct {
	mu       sync.RWMutex
	statuses map[string]string
}

// NewMemorySessionStore constructs an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{statuses: make(map[string]string)}
}

// GetStatus returns the stored status, or "disconnected" when unknown.
func (s *MemorySessionStore) GetStatus(_ context.Context, phone string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.statuses[phone]; ok {
		return st, nil
	}
	return "disconnected", nil
}

// SetStatus records the status for a phone.
func (s *MemorySessionStore) SetStatus(_ context.Context, phone, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[phone] = status
	return nil
}

// MemoryDataStore keeps message state in process memory, sharded by tenant.
type MemoryDataStore struct {
	mu       sync.RWMutex
	keys     map[string]models.NativeKey
	messages map[string]models.NativeMessage
	statuses map[string]string
	aliases  map[string]string
	media    map[string]MediaPayload
}

// NewMemoryDataStore constructs an empty in-memory data store.
func NewMemoryDataStore() *MemoryDataStore {
	return &MemoryDataStore{
		keys:     make(map[string]models.NativeKey),
		messages: make(map[string]models.NativeMessage),
		statuses: make(map[string]string),
		aliases:  make(map[string]string),
		media:    make(map[string]MediaPayload),
	}
}

func scoped(phone, id string) string {
	return phone + "/" + id
}

// SetKey stores the protocol key for a message id.
func (s *MemoryDataStore) SetKey(_ context.Context, phone, id string, key models.NativeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[scoped(phone, id)] = key
	return nil
}

// GetKey returns the protocol key for a message id.
func (s *MemoryDataStore) GetKey(_ context.Context, phone, id string) (*models.NativeKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[scoped(phone, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &key, nil
}

// SetMessage stores a full native message for later quote resolution.
func (s *MemoryDataStore) SetMessage(_ context.Context, phone, id string, msg models.NativeMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[scoped(phone, id)] = msg
	return nil
}

// GetMessage returns a stored native message.
func (s *MemoryDataStore) GetMessage(_ context.Context, phone, id string) (*models.NativeMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[scoped(phone, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &msg, nil
}

// SetMessageStatus records the delivery status of a message.
func (s *MemoryDataStore) SetMessageStatus(_ context.Context, phone, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[scoped(phone, id)] = status
	return nil
}

// GetMessageStatus returns the delivery status of a message.
func (s *MemoryDataStore) GetMessageStatus(_ context.Context, phone, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[scoped(phone, id)]
	if !ok {
		return "", ErrNotFound
	}
	return st, nil
}

// SetIDAlias maps an external id onto the protocol id it stands for.
func (s *MemoryDataStore) SetIDAlias(_ context.Context, phone, alias, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[scoped(phone, alias)] = id
	return nil
}

// GetIDByAlias resolves an external id alias.
func (s *MemoryDataStore) GetIDByAlias(_ context.Context, phone, alias string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.aliases[scoped(phone, alias)]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

// SetMediaPayload stores the media descriptor for a message id.
func (s *MemoryDataStore) SetMediaPayload(_ context.Context, phone, id string, payload MediaPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media[scoped(phone, id)] = payload
	return nil
}

// GetMediaPayload returns the stored media descriptor.
func (s *MemoryDataStore) GetMediaPayload(_ context.Context, phone, id string) (*MediaPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.media[scoped(phone, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &payload, nil
}
