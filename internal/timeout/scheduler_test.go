package timeout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

// fakeSender counts cancellation notices per recipient.
type fakeSender struct {
	mu   sync.Mutex
	sent map[string]int
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string]int)}
}

func (f *fakeSender) Send(ctx context.Context, tenantID int64, to string, content models.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[to]++
	return nil
}

func (f *fakeSender) count(to string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[to]
}

func seedOrder(t *testing.T, st *store.InMemoryStore, status models.OrderStatus) *models.Order {
	t.Helper()
	o := &models.Order{TenantID: 1, Customer: "15551234567", Status: status}
	if err := st.CreateOrder(o); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	return o
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAbandonedOrderDeletedAndNotified(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := newFakeSender()
	s := NewScheduler(st, sender, WithDelay(20*time.Millisecond))
	defer s.Stop()

	o := seedOrder(t, st, models.OrderAwaitingName)
	if err := st.UpsertOrderItem(o.ID, 7, 2); err != nil {
		t.Fatalf("UpsertOrderItem failed: %v", err)
	}

	s.Arm(o.ID, o.TenantID, o.Customer)
	waitFor(t, time.Second, func() bool { return sender.count(o.Customer) == 1 })

	if got, _ := st.GetOrder(o.ID); got != nil {
		t.Error("expected order deleted after timeout")
	}
	if items, _ := st.ListOrderItems(o.ID); len(items) != 0 {
		t.Errorf("expected items deleted with the order, got %d", len(items))
	}
}

func TestConfirmedOrderNeverDeleted(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := newFakeSender()
	s := NewScheduler(st, sender, WithDelay(20*time.Millisecond))
	defer s.Stop()

	o := seedOrder(t, st, models.OrderAwaitingLocation)
	s.Arm(o.ID, o.TenantID, o.Customer)

	// Confirm before the timer fires; firing must then be a no-op even
	// though the timer was never cleared.
	o.Status = models.OrderConfirmed
	if err := st.UpdateOrder(o); err != nil {
		t.Fatalf("UpdateOrder failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return !s.Armed(o.ID) })
	time.Sleep(20 * time.Millisecond)

	if got, _ := st.GetOrder(o.ID); got == nil {
		t.Fatal("confirmed order must not be deleted")
	}
	if sender.count(o.Customer) != 0 {
		t.Error("no cancellation notice expected for confirmed order")
	}
}

func TestDoubleArmFiresOnce(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := newFakeSender()
	s := NewScheduler(st, sender, WithDelay(20*time.Millisecond))
	defer s.Stop()

	o := seedOrder(t, st, models.OrderInCart)
	s.Arm(o.ID, o.TenantID, o.Customer)
	s.Arm(o.ID, o.TenantID, o.Customer)

	waitFor(t, time.Second, func() bool { return sender.count(o.Customer) >= 1 })
	time.Sleep(50 * time.Millisecond)

	if n := sender.count(o.Customer); n != 1 {
		t.Errorf("expected exactly one firing after double arm, got %d", n)
	}
}

func TestClearPreventsFiring(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := newFakeSender()
	s := NewScheduler(st, sender, WithDelay(20*time.Millisecond))
	defer s.Stop()

	o := seedOrder(t, st, models.OrderInCart)
	s.Arm(o.ID, o.TenantID, o.Customer)
	s.Clear(o.ID)

	time.Sleep(60 * time.Millisecond)
	if got, _ := st.GetOrder(o.ID); got == nil {
		t.Error("cleared timer must not delete the order")
	}
	if sender.count(o.Customer) != 0 {
		t.Error("cleared timer must not notify")
	}
}

func TestIndependentTimersPerOrder(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := newFakeSender()
	s := NewScheduler(st, sender, WithDelay(20*time.Millisecond))
	defer s.Stop()

	a := seedOrder(t, st, models.OrderInCart)
	b := &models.Order{TenantID: 1, Customer: "15550000001", Status: models.OrderInCart}
	if err := st.CreateOrder(b); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	s.Arm(a.ID, a.TenantID, a.Customer)
	s.Arm(b.ID, b.TenantID, b.Customer)
	s.Clear(a.ID)

	waitFor(t, time.Second, func() bool { return sender.count(b.Customer) == 1 })
	if got, _ := st.GetOrder(a.ID); got == nil {
		t.Error("clearing one order's timer must not affect another")
	}
	if got, _ := st.GetOrder(b.ID); got != nil {
		t.Error("expected second order reclaimed")
	}
}

func TestStopDiscardsTimers(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := newFakeSender()
	s := NewScheduler(st, sender, WithDelay(20*time.Millisecond))

	o := seedOrder(t, st, models.OrderInCart)
	s.Arm(o.ID, o.TenantID, o.Customer)
	s.Stop()

	time.Sleep(60 * time.Millisecond)
	if got, _ := st.GetOrder(o.ID); got == nil {
		t.Error("stopped scheduler must not delete orders")
	}

	// Arming after Stop is ignored.
	s.Arm(o.ID, o.TenantID, o.Customer)
	if s.Armed(o.ID) {
		t.Error("expected Arm after Stop to be a no-op")
	}
}
