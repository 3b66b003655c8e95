package session

import (
	"context"

	"github.com/example/whatsapp-gateway/internal/models"
)

// RegistrySender adapts the registry into the per-job send contract used by
// the workers: resolve or create the tenant session, then run its pipeline.
type RegistrySender struct {
	registry *Registry
}

// NewRegistrySender wraps a registry.
func NewRegistrySender(registry *Registry) *RegistrySender {
	return &RegistrySender{registry: registry}
}

// Send resolves the tenant session and executes one send.
func (s *RegistrySender) Send(ctx context.Context, phone string, req models.SendRequest) (models.SendResponse, error) {
	sess, err := s.registry.GetOrCreate(ctx, phone)
	if err != nil {
		return models.SendResponse{}, err
	}
	return sess.Send(ctx, req)
}
