// Package messaging defines the narrow transport contract the rest of
// tiendabot depends on, and its WhatsApp and Twilio implementations.
package messaging

import (
	"context"
	"fmt"
	"regexp"

	"github.com/tiendabot/tiendabot/internal/models"
)

// Service is the pluggable transport abstraction. It is the only
// surface through which the session registry and the conversation
// components touch the underlying chat network.
type Service interface {
	// Open creates or resumes the transport identity for a tenant.
	// Progress is reported asynchronously on the Lifecycle stream.
	Open(ctx context.Context, tenantID int64, identityKey string) error

	// Close tears down the transport identity for a tenant. An
	// already-closed identity is not an error.
	Close(ctx context.Context, tenantID int64) error

	// Send delivers text and/or a media link to a recipient.
	Send(ctx context.Context, tenantID int64, to string, content models.Content) error

	// Messages returns the inbound message event stream.
	Messages() <-chan models.Message

	// Lifecycle returns the session lifecycle event stream.
	Lifecycle() <-chan models.LifecycleEvent

	// Stop stops background processing and releases resources.
	Stop() error
}

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// CanonicalizeRecipient validates and canonicalizes a recipient phone
// number by stripping non-digits. Returns an error for inputs with
// fewer than 6 digits.
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}
