package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/tiendabot/tiendabot/internal/models"
)

// Constants for channel configuration shared by transport implementations.
const (
	// DefaultChannelBufferSize defines the buffer size for event channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the timeout for non-blocking channel sends
	DefaultChannelTimeout = 1 * time.Second
)

// TwilioOpts holds configuration options for the Twilio transport.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
}

// TwilioOption defines a configuration option for the Twilio transport.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// TwilioService implements Service on the Twilio WhatsApp Business API.
// A tenant's identity key is its Twilio WhatsApp number in
// "whatsapp:+1234567890" form; there is no pairing flow, so Open reports
// the session operational immediately. Inbound messages arrive through
// the webhook handler.
type TwilioService struct {
	client *twilio.RestClient

	mu      sync.RWMutex
	numbers map[int64]string // tenant id -> "whatsapp:+..." from number
	tenants map[string]int64 // reverse mapping for inbound webhooks
	stopped bool

	messages  chan models.Message
	lifecycle chan models.LifecycleEvent
}

// NewTwilioService creates a Twilio-backed transport. Credentials fall
// back to TWILIO_ACCOUNT_SID / TWILIO_AUTH_TOKEN environment variables.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	slog.Debug("Twilio transport config loaded", "AccountSID_set", cfg.AccountSID != "", "AuthToken_set", cfg.AuthToken != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioService{
		client:    client,
		numbers:   make(map[int64]string),
		tenants:   make(map[string]int64),
		messages:  make(chan models.Message, DefaultChannelBufferSize),
		lifecycle: make(chan models.LifecycleEvent, DefaultChannelBufferSize),
	}, nil
}

// Open registers the tenant's Twilio WhatsApp number. There is no login
// code flow; the session is operational as soon as the number is known.
func (s *TwilioService) Open(ctx context.Context, tenantID int64, identityKey string) error {
	if identityKey == "" {
		return fmt.Errorf("twilio transport requires the tenant identity key to carry the WhatsApp from number")
	}
	from := identityKey
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}

	s.mu.Lock()
	s.numbers[tenantID] = from
	s.tenants[from] = tenantID
	s.mu.Unlock()

	s.emitLifecycle(models.LifecycleEvent{
		TenantID: tenantID,
		Type:     models.LifecycleOperational,
		Address:  strings.TrimPrefix(from, "whatsapp:"),
		Identity: identityKey,
		Time:     time.Now(),
	})
	slog.Info("Twilio transport opened", "tenant_id", tenantID)
	return nil
}

// Close unregisters the tenant's number.
func (s *TwilioService) Close(ctx context.Context, tenantID int64) error {
	s.mu.Lock()
	from, ok := s.numbers[tenantID]
	delete(s.numbers, tenantID)
	if ok {
		delete(s.tenants, from)
	}
	s.mu.Unlock()

	if ok {
		s.emitLifecycle(models.LifecycleEvent{
			TenantID: tenantID,
			Type:     models.LifecycleDisconnected,
			Reason:   "closed",
			Time:     time.Now(),
		})
	}
	return nil
}

// Send delivers a message via the Twilio REST API. Text is sent first,
// then the media link as a second message.
func (s *TwilioService) Send(ctx context.Context, tenantID int64, to string, content models.Content) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return fmt.Errorf("twilio transport stopped")
	}
	from, ok := s.numbers[tenantID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no open Twilio transport for tenant %d", tenantID)
	}

	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService Send validation error", "error", err, "to", to)
		return err
	}

	var bodies []string
	if content.Text != "" {
		bodies = append(bodies, content.Text)
	}
	if content.MediaURL != "" {
		bodies = append(bodies, content.MediaURL)
	}
	if len(bodies) == 0 {
		return models.ErrEmptyContent
	}

	for _, body := range bodies {
		params := &twilioApi.CreateMessageParams{}
		params.SetTo("whatsapp:+" + canonical)
		params.SetFrom(from)
		params.SetBody(body)
		if _, err := s.client.Api.CreateMessage(params); err != nil {
			slog.Error("TwilioService CreateMessage failed", "error", err, "tenant_id", tenantID, "to", canonical)
			return fmt.Errorf("failed to send message to %s: %w", canonical, err)
		}
	}
	slog.Debug("Twilio message sent", "tenant_id", tenantID, "to", canonical)
	return nil
}

// Messages returns the inbound message event stream.
func (s *TwilioService) Messages() <-chan models.Message {
	return s.messages
}

// Lifecycle returns the session lifecycle event stream.
func (s *TwilioService) Lifecycle() <-chan models.LifecycleEvent {
	return s.lifecycle
}

// Stop stops the transport and closes the event channels.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.messages)
		close(s.lifecycle)
	}()
	return nil
}

// WebhookHandler accepts Twilio inbound-message callbacks and feeds them
// into the message stream. The To form value identifies the tenant.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	to := r.FormValue("To")
	from := r.FormValue("From")
	body := r.FormValue("Body")

	s.mu.RLock()
	tenantID, ok := s.tenants[to]
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if !ok {
		slog.Warn("Twilio webhook for unknown number", "to", to)
		w.WriteHeader(http.StatusOK)
		return
	}

	canonicalFrom, err := CanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("Twilio webhook with invalid sender", "error", err, "from", from)
		w.WriteHeader(http.StatusOK)
		return
	}

	msg := models.Message{
		TenantID: tenantID,
		From:     canonicalFrom,
		Text:     body,
		// Twilio WhatsApp webhooks only deliver direct conversations.
		IsGroup: false,
		Time:    time.Now(),
	}

	select {
	case s.messages <- msg:
		slog.Debug("Twilio inbound message forwarded", "tenant_id", tenantID, "from", canonicalFrom)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("Twilio message channel blocked, dropping message", "tenant_id", tenantID, "from", canonicalFrom)
	}
	w.WriteHeader(http.StatusOK)
}

// emitLifecycle forwards a lifecycle event without blocking indefinitely.
func (s *TwilioService) emitLifecycle(evt models.LifecycleEvent) {
	select {
	case s.lifecycle <- evt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("Twilio lifecycle channel blocked, dropping event", "tenant_id", evt.TenantID, "type", evt.Type)
	}
}
