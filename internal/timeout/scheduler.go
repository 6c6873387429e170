// Package timeout reclaims stalled orders. Each open order carries at
// most one armed timer; firing re-checks the order before acting, so a
// timer racing a confirmation is a silent no-op.
package timeout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

// DefaultDelay is the abandonment window for an inactive order.
const DefaultDelay = 5 * time.Minute

// cancellationNotice is sent to the customer when their order is reclaimed.
const cancellationNotice = "Your order was cancelled because the conversation was inactive. Send NEWORDER to start again."

// Sender is the outbound-send capability used for cancellation notices.
type Sender interface {
	Send(ctx context.Context, tenantID int64, to string, content models.Content) error
}

// Opts holds scheduler configuration options.
type Opts struct {
	Delay time.Duration
}

// Option defines a configuration option for the scheduler.
type Option func(*Opts)

// WithDelay overrides the abandonment window (used by tests).
func WithDelay(d time.Duration) Option {
	return func(o *Opts) { o.Delay = d }
}

// Scheduler owns the set of currently-armed abandonment timers, keyed
// by order id.
type Scheduler struct {
	store  store.Store
	sender Sender
	delay  time.Duration

	mu      sync.Mutex
	timers  map[int64]*time.Timer
	stopped bool
}

// NewScheduler creates an abandonment timeout scheduler.
func NewScheduler(st store.Store, sender Sender, opts ...Option) *Scheduler {
	cfg := Opts{Delay: DefaultDelay}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating timeout Scheduler", "delay", cfg.Delay)
	return &Scheduler{
		store:  st,
		sender: sender,
		delay:  cfg.Delay,
		timers: make(map[int64]*time.Timer),
	}
}

// Arm starts the abandonment timer for an order. A still-pending timer
// for the same order is cancelled first, so arming is idempotent even
// when a caller skips the explicit Clear.
func (s *Scheduler) Arm(orderID, tenantID int64, customer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[orderID]; ok {
		t.Stop()
	}
	s.timers[orderID] = time.AfterFunc(s.delay, func() {
		s.fire(orderID, tenantID, customer)
	})
	slog.Debug("Abandonment timer armed", "order_id", orderID, "tenant_id", tenantID, "delay", s.delay)
}

// Clear cancels a pending timer without side effects.
func (s *Scheduler) Clear(orderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[orderID]; ok {
		t.Stop()
		delete(s.timers, orderID)
		slog.Debug("Abandonment timer cleared", "order_id", orderID)
	}
}

// Stop cancels all pending timers. Armed timers are discarded rather
// than fired; each timer action is a single atomic store operation, so
// discarding cannot leave the store half-updated.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	slog.Debug("Timeout Scheduler stopped")
}

// Armed reports whether a timer is currently outstanding for an order.
func (s *Scheduler) Armed(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[orderID]
	return ok
}

// fire reclaims one order. The order's status is re-read first: a
// confirmed or already-deleted order is never touched.
func (s *Scheduler) fire(orderID, tenantID int64, customer string) {
	s.mu.Lock()
	delete(s.timers, orderID)
	s.mu.Unlock()

	o, err := s.store.GetOrder(orderID)
	if err != nil {
		slog.Error("Abandonment timer failed to re-read order", "error", err, "order_id", orderID)
		return
	}
	if o == nil || o.Status.IsTerminal() {
		slog.Debug("Abandonment timer fired after order completed, ignoring", "order_id", orderID)
		return
	}

	if err := s.store.DeleteOrder(orderID); err != nil {
		slog.Error("Failed to delete abandoned order", "error", err, "order_id", orderID)
		return
	}
	slog.Info("Abandoned order reclaimed", "order_id", orderID, "tenant_id", tenantID, "customer", customer)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.sender.Send(ctx, tenantID, customer, models.Content{Text: cancellationNotice}); err != nil {
		slog.Error("Failed to send cancellation notice", "error", err, "order_id", orderID, "customer", customer)
	}
}
