// Package keyword implements the exact-match auto-reply engine.
//
// Matching policy is uniform exact equality, case-insensitive and
// whitespace-trimmed. No state is mutated by this component.
package keyword

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

// Sender is the outbound-send capability supplied by the session registry.
type Sender interface {
	Send(ctx context.Context, tenantID int64, to string, content models.Content) error
}

// Engine matches inbound text against the tenant's trigger phrases.
type Engine struct {
	store  store.Store
	sender Sender
}

// NewEngine creates a keyword auto-reply engine.
func NewEngine(st store.Store, sender Sender) *Engine {
	return &Engine{store: st, sender: sender}
}

// Match looks up the reply triggered by the given text. Returns (nil,
// nil) when no trigger matches.
func (e *Engine) Match(tenantID int64, text string) (*models.KeywordReply, error) {
	replies, err := e.store.ListKeywordReplies(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keyword replies: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, nil
	}
	for i := range replies {
		if strings.ToLower(strings.TrimSpace(replies[i].Keyword)) == needle {
			return &replies[i], nil
		}
	}
	return nil, nil
}

// Handle matches and answers one inbound message. Reply text is sent
// first, then each media attachment as a separate message in stored
// order. Returns true when a trigger matched.
func (e *Engine) Handle(ctx context.Context, tenant *models.Tenant, customer, text string) (bool, error) {
	reply, err := e.Match(tenant.ID, text)
	if err != nil {
		return false, err
	}
	if reply == nil {
		return false, nil
	}
	slog.Debug("Keyword trigger matched", "tenant_id", tenant.ID, "customer", customer, "reply_id", reply.ReplyID)

	if reply.Text != "" {
		if err := e.sender.Send(ctx, tenant.ID, customer, models.Content{Text: reply.Text}); err != nil {
			slog.Error("Failed to send keyword reply text", "error", err, "tenant_id", tenant.ID, "customer", customer)
		}
	}
	for _, media := range reply.Media {
		if err := e.sender.Send(ctx, tenant.ID, customer, models.Content{MediaURL: media}); err != nil {
			slog.Error("Failed to send keyword reply media", "error", err, "tenant_id", tenant.ID, "customer", customer)
		}
	}
	return true, nil
}
