package messaging

import (
	"context"
	"log/slog"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/whatsapp"
)

// WhatsAppService implements Service using the Whatsmeow-based manager.
type WhatsAppService struct {
	manager *whatsapp.Manager
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given manager.
func NewWhatsAppService(manager *whatsapp.Manager) *WhatsAppService {
	slog.Debug("WhatsAppService created")
	return &WhatsAppService{manager: manager}
}

// Open creates or resumes the WhatsApp identity for a tenant.
func (s *WhatsAppService) Open(ctx context.Context, tenantID int64, identityKey string) error {
	return s.manager.Open(ctx, tenantID, identityKey)
}

// Close tears down the WhatsApp identity for a tenant.
func (s *WhatsAppService) Close(ctx context.Context, tenantID int64) error {
	return s.manager.Close(ctx, tenantID)
}

// Send delivers a message through the tenant's WhatsApp client.
func (s *WhatsAppService) Send(ctx context.Context, tenantID int64, to string, content models.Content) error {
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService Send validation error", "error", err, "to", to)
		return err
	}
	return s.manager.Send(ctx, tenantID, canonical, content)
}

// Messages returns the inbound message event stream.
func (s *WhatsAppService) Messages() <-chan models.Message {
	return s.manager.Messages()
}

// Lifecycle returns the session lifecycle event stream.
func (s *WhatsAppService) Lifecycle() <-chan models.LifecycleEvent {
	return s.manager.Lifecycle()
}

// Stop disconnects all clients without logging them out.
func (s *WhatsAppService) Stop() error {
	s.manager.Stop()
	return nil
}
