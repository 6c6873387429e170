// Package greeting sends the throttled welcome message for messages no
// other behavior claimed.
package greeting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

// DefaultWindow is the rolling window within which a contact is greeted
// at most once.
const DefaultWindow = 24 * time.Hour

// menuGuidePrefix namespaces the menu-guidance rate limit separately
// from the greeting itself in the greeting log.
const menuGuidePrefix = "menu-guide:"

// menuGuideText nudges customers toward the shopping flow.
const menuGuideText = "Send NEWORDER to start an order or SHOWCATEGORIES to browse our products."

// MenuGuideKey returns the greeting-log contact key that throttles menu
// guidance for a customer. Callers resetting the greeting throttle for a
// customer must clear this key too.
func MenuGuideKey(customer string) string {
	return menuGuidePrefix + customer
}

// Sender is the outbound-send capability supplied by the session registry.
type Sender interface {
	Send(ctx context.Context, tenantID int64, to string, content models.Content) error
}

// Opts holds greeter configuration options.
type Opts struct {
	Window time.Duration
	Now    func() time.Time
}

// Option defines a configuration option for the greeter.
type Option func(*Opts)

// WithWindow overrides the throttle window.
func WithWindow(w time.Duration) Option {
	return func(o *Opts) { o.Window = w }
}

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Greeter sends a tenant's greeting text at most once per contact per
// rolling window, and only while the contact has no open order.
type Greeter struct {
	store  store.Store
	sender Sender
	window time.Duration
	now    func() time.Time
}

// NewGreeter creates a greeting behavior handler.
func NewGreeter(st store.Store, sender Sender, opts ...Option) *Greeter {
	cfg := Opts{Window: DefaultWindow, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Greeter{store: st, sender: sender, window: cfg.Window, now: cfg.Now}
}

// Handle greets the customer if allowed. When the tenant's menu bot is
// enabled, a separately-throttled menu guidance line is sent too.
// Returns true when anything was sent.
func (g *Greeter) Handle(ctx context.Context, tenant *models.Tenant, customer, text string) (bool, error) {
	open, err := g.store.GetOpenOrder(tenant.ID, customer)
	if err != nil {
		return false, fmt.Errorf("failed to look up open order: %w", err)
	}
	if open != nil {
		return false, nil
	}

	sent := false
	if tenant.GreetingText != "" {
		ok, err := g.allowed(tenant.ID, customer)
		if err != nil {
			return sent, err
		}
		if ok {
			if err := g.sender.Send(ctx, tenant.ID, customer, models.Content{Text: tenant.GreetingText}); err != nil {
				slog.Error("Failed to send greeting", "error", err, "tenant_id", tenant.ID, "customer", customer)
			}
			if err := g.store.SetLastGreeting(tenant.ID, customer, g.now()); err != nil {
				return true, fmt.Errorf("failed to record greeting: %w", err)
			}
			sent = true
		}
	}

	if tenant.MenuBotEnabled {
		guideKey := MenuGuideKey(customer)
		ok, err := g.allowed(tenant.ID, guideKey)
		if err != nil {
			return sent, err
		}
		if ok {
			if err := g.sender.Send(ctx, tenant.ID, customer, models.Content{Text: menuGuideText}); err != nil {
				slog.Error("Failed to send menu guidance", "error", err, "tenant_id", tenant.ID, "customer", customer)
			}
			if err := g.store.SetLastGreeting(tenant.ID, guideKey, g.now()); err != nil {
				return true, fmt.Errorf("failed to record menu guidance: %w", err)
			}
			sent = true
		}
	}
	return sent, nil
}

// allowed reports whether the rate-limit window has elapsed for a
// (tenant, contact) pair.
func (g *Greeter) allowed(tenantID int64, contact string) (bool, error) {
	last, err := g.store.LastGreeting(tenantID, contact)
	if err != nil {
		return false, fmt.Errorf("failed to read greeting log: %w", err)
	}
	if last != nil && g.now().Sub(*last) < g.window {
		return false, nil
	}
	return true, nil
}
