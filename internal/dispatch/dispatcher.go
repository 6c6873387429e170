// Package dispatch routes inbound messages to the keyword engine, the
// order state machine, or the greeting behavior, in that priority
// order, short-circuiting on the first handler that claims the message.
package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

// Handler is one dispatch behavior. It reports whether it claimed the
// message.
type Handler interface {
	Handle(ctx context.Context, tenant *models.Tenant, customer, text string) (bool, error)
}

// Dispatcher is the inbound-message entry point.
type Dispatcher struct {
	store    store.Store
	keywords Handler
	menu     Handler
	greeting Handler
	locks    keyedLocks

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the three behavior handlers.
func NewDispatcher(st store.Store, keywords, menu, greeting Handler) *Dispatcher {
	slog.Debug("Creating Dispatcher")
	return &Dispatcher{
		store:    st,
		keywords: keywords,
		menu:     menu,
		greeting: greeting,
		locks:    keyedLocks{locks: make(map[string]*lockEntry)},
	}
}

// Run consumes the inbound message stream until it closes or the
// context is cancelled. Messages from different (tenant, customer)
// pairs are handled concurrently.
func (d *Dispatcher) Run(ctx context.Context, messages <-chan models.Message) {
	slog.Debug("Dispatcher loop starting")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Dispatcher loop stopping", "reason", ctx.Err())
			d.wg.Wait()
			return
		case msg, ok := <-messages:
			if !ok {
				slog.Debug("Dispatcher message stream closed")
				d.wg.Wait()
				return
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.HandleInbound(ctx, msg)
			}()
		}
	}
}

// HandleInbound routes one inbound message. Handling is serialized per
// (tenant, customer) pair: the order state machine reads-then-writes
// order status without a store-level transaction, and two concurrent
// messages from the same customer could otherwise corrupt the sequence.
func (d *Dispatcher) HandleInbound(ctx context.Context, msg models.Message) {
	// Group/broadcast traffic is never answered.
	if msg.IsGroup {
		slog.Debug("Dropping group message", "tenant_id", msg.TenantID, "from", msg.From)
		return
	}

	key := strconv.FormatInt(msg.TenantID, 10) + "|" + msg.From
	unlock := d.locks.lock(key)
	defer unlock()

	// Flags may change between messages, so the tenant is re-read fresh.
	tenant, err := d.store.GetTenant(msg.TenantID)
	if err != nil {
		slog.Error("Dispatcher failed to load tenant", "error", err, "tenant_id", msg.TenantID)
		return
	}
	if tenant == nil {
		slog.Warn("Dispatcher dropping message for unknown tenant", "tenant_id", msg.TenantID)
		return
	}

	if tenant.KeywordBotEnabled {
		handled, err := d.keywords.Handle(ctx, tenant, msg.From, msg.Text)
		if err != nil {
			slog.Error("Keyword handler error", "error", err, "tenant_id", tenant.ID, "from", msg.From)
		}
		if handled {
			return
		}
	}

	if tenant.MenuBotEnabled {
		handled, err := d.menu.Handle(ctx, tenant, msg.From, msg.Text)
		if err != nil {
			slog.Error("Menu handler error", "error", err, "tenant_id", tenant.ID, "from", msg.From)
		}
		if handled {
			return
		}
	}

	if tenant.GreetingEnabled {
		if _, err := d.greeting.Handle(ctx, tenant, msg.From, msg.Text); err != nil {
			slog.Error("Greeting handler error", "error", err, "tenant_id", tenant.ID, "from", msg.From)
		}
	}
}

// lockEntry is one refcounted per-key mutex.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedLocks serializes handling per key without serializing unrelated
// keys. Entries are dropped once their last holder releases them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// lock acquires the mutex for a key and returns its release func.
func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
