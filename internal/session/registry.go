// Package session owns the set of active tenant conversation identities
// and their connection lifecycle.
//
// The registry is the root component: it persists every transport
// lifecycle transition before making it visible to dispatch logic, and
// supplies the single outbound send primitive reused by every other
// component.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tiendabot/tiendabot/internal/messaging"
	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

// Registry manages tenant transport identities over a messaging.Service.
type Registry struct {
	store store.Store
	svc   messaging.Service

	mu        sync.Mutex
	observers []chan models.LifecycleEvent
}

// NewRegistry creates a registry over the given store and transport.
func NewRegistry(st store.Store, svc messaging.Service) *Registry {
	slog.Debug("Creating session Registry")
	return &Registry{store: st, svc: svc}
}

// Open creates or resumes the transport identity for a tenant. The
// tenant is marked PendingLogin; further progress arrives as lifecycle
// events consumed by Run.
func (r *Registry) Open(ctx context.Context, tenantID int64) error {
	tenant, err := r.store.GetTenant(tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}
	if tenant == nil {
		return models.ErrTenantNotFound
	}

	if err := r.store.UpdateTenantState(tenantID, models.SessionPendingLogin, ""); err != nil {
		return err
	}
	if err := r.svc.Open(ctx, tenantID, tenant.IdentityKey); err != nil {
		slog.Error("Registry Open transport error", "error", err, "tenant_id", tenantID)
		// Roll the persisted state back so a crash-looping transport does
		// not leave tenants stuck in PendingLogin forever.
		if derr := r.store.UpdateTenantState(tenantID, models.SessionDisconnected, ""); derr != nil {
			slog.Error("Registry Open state rollback failed", "error", derr, "tenant_id", tenantID)
		}
		return fmt.Errorf("failed to open transport for tenant %d: %w", tenantID, err)
	}
	slog.Info("Registry opened tenant session", "tenant_id", tenantID)
	return nil
}

// Close tears down the transport identity for a tenant. "Already
// closed" conditions from the transport are treated as non-fatal.
func (r *Registry) Close(ctx context.Context, tenantID int64) error {
	if err := r.svc.Close(ctx, tenantID); err != nil {
		slog.Warn("Registry Close transport error (ignored)", "error", err, "tenant_id", tenantID)
	}
	if err := r.store.UpdateTenantState(tenantID, models.SessionDisconnected, ""); err != nil {
		return err
	}
	slog.Info("Registry closed tenant session", "tenant_id", tenantID)
	return nil
}

// Send is the single outbound primitive reused by every other component.
func (r *Registry) Send(ctx context.Context, tenantID int64, to string, content models.Content) error {
	return r.svc.Send(ctx, tenantID, to, content)
}

// Subscribe registers an observer for lifecycle events (e.g., an
// administrative UI pushing login codes to a browser).
func (r *Registry) Subscribe() <-chan models.LifecycleEvent {
	ch := make(chan models.LifecycleEvent, 16)
	r.mu.Lock()
	r.observers = append(r.observers, ch)
	r.mu.Unlock()
	return ch
}

// RecoverOperational re-opens one transport identity for every tenant
// whose persisted state was Operational, so bot availability survives
// restarts without requiring a fresh login code.
func (r *Registry) RecoverOperational(ctx context.Context) error {
	tenants, err := r.store.ListTenantsByState(models.SessionOperational)
	if err != nil {
		return fmt.Errorf("failed to list operational tenants: %w", err)
	}

	slog.Info("Registry recovering operational sessions", "count", len(tenants))
	for _, t := range tenants {
		if err := r.svc.Open(ctx, t.ID, t.IdentityKey); err != nil {
			slog.Error("Registry recovery open failed", "error", err, "tenant_id", t.ID)
			if derr := r.store.UpdateTenantState(t.ID, models.SessionDisconnected, ""); derr != nil {
				slog.Error("Registry recovery state update failed", "error", derr, "tenant_id", t.ID)
			}
			continue
		}
		slog.Debug("Registry recovered session", "tenant_id", t.ID)
	}
	return nil
}

// Run consumes transport lifecycle events until the stream closes or
// the context is cancelled. Every transition is mirrored to the store
// before observers see it, so a crash mid-transition cannot leave the
// in-memory and persisted views permanently divergent.
func (r *Registry) Run(ctx context.Context) {
	slog.Debug("Registry lifecycle loop starting")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Registry lifecycle loop stopping", "reason", ctx.Err())
			return
		case evt, ok := <-r.svc.Lifecycle():
			if !ok {
				slog.Debug("Registry lifecycle stream closed")
				return
			}
			r.applyEvent(evt)
		}
	}
}

// applyEvent persists one lifecycle transition and fans it out.
func (r *Registry) applyEvent(evt models.LifecycleEvent) {
	var state models.SessionState
	switch evt.Type {
	case models.LifecycleLoginCode:
		state = models.SessionPendingLogin
	case models.LifecycleAuthenticated:
		state = models.SessionAuthenticated
	case models.LifecycleOperational:
		state = models.SessionOperational
	case models.LifecycleDisconnected:
		state = models.SessionDisconnected
	default:
		slog.Warn("Registry ignoring unknown lifecycle event", "type", evt.Type, "tenant_id", evt.TenantID)
		return
	}

	if err := r.store.UpdateTenantState(evt.TenantID, state, evt.Address); err != nil {
		slog.Error("Registry failed to persist lifecycle transition", "error", err, "tenant_id", evt.TenantID, "state", state)
	}
	if evt.Identity != "" {
		if err := r.store.UpdateTenantIdentity(evt.TenantID, evt.Identity); err != nil {
			slog.Error("Registry failed to persist identity key", "error", err, "tenant_id", evt.TenantID)
		}
	}
	slog.Info("Registry applied lifecycle transition", "tenant_id", evt.TenantID, "state", state, "reason", evt.Reason)

	r.mu.Lock()
	observers := make([]chan models.LifecycleEvent, len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, ch := range observers {
		select {
		case ch <- evt:
		default:
			// Slow observers miss events rather than stalling dispatch.
		}
	}
}
