package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

// fakeService is a messaging.Service test double recording calls.
type fakeService struct {
	mu        sync.Mutex
	opened    []int64
	closed    []int64
	sent      []string
	openErr   error
	messages  chan models.Message
	lifecycle chan models.LifecycleEvent
}

func newFakeService() *fakeService {
	return &fakeService{
		messages:  make(chan models.Message, 10),
		lifecycle: make(chan models.LifecycleEvent, 10),
	}
}

func (f *fakeService) Open(ctx context.Context, tenantID int64, identityKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = append(f.opened, tenantID)
	return nil
}

func (f *fakeService) Close(ctx context.Context, tenantID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, tenantID)
	return nil
}

func (f *fakeService) Send(ctx context.Context, tenantID int64, to string, content models.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return nil
}

func (f *fakeService) Messages() <-chan models.Message         { return f.messages }
func (f *fakeService) Lifecycle() <-chan models.LifecycleEvent { return f.lifecycle }
func (f *fakeService) Stop() error { return nil }

func (f *fakeService) openedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

func seedTenant(t *testing.T, st *store.InMemoryStore, state models.SessionState) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{IdentityKey: "identity-1", State: state}
	if err := st.SaveTenant(tenant); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}
	return tenant
}

func TestRegistryOpenMarksPendingLogin(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := newFakeService()
	reg := NewRegistry(st, svc)
	tenant := seedTenant(t, st, models.SessionDisconnected)

	if err := reg.Open(context.Background(), tenant.ID); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	got, err := st.GetTenant(tenant.ID)
	if err != nil || got == nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	if got.State != models.SessionPendingLogin {
		t.Errorf("expected state %s, got %s", models.SessionPendingLogin, got.State)
	}
	if svc.openedCount() != 1 {
		t.Errorf("expected 1 transport open, got %d", svc.openedCount())
	}
}

func TestRegistryOpenUnknownTenant(t *testing.T) {
	st := store.NewInMemoryStore()
	reg := NewRegistry(st, newFakeService())

	err := reg.Open(context.Background(), 999)
	if !errors.Is(err, models.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestRegistryOpenTransportFailureRollsBack(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := newFakeService()
	svc.openErr = errors.New("boom")
	reg := NewRegistry(st, svc)
	tenant := seedTenant(t, st, models.SessionDisconnected)

	if err := reg.Open(context.Background(), tenant.ID); err == nil {
		t.Fatal("expected error from failing transport")
	}

	got, _ := st.GetTenant(tenant.ID)
	if got.State != models.SessionDisconnected {
		t.Errorf("expected state rolled back to %s, got %s", models.SessionDisconnected, got.State)
	}
}

func TestRegistryCloseMarksDisconnected(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := newFakeService()
	reg := NewRegistry(st, svc)
	tenant := seedTenant(t, st, models.SessionOperational)

	if err := reg.Close(context.Background(), tenant.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, _ := st.GetTenant(tenant.ID)
	if got.State != models.SessionDisconnected {
		t.Errorf("expected state %s, got %s", models.SessionDisconnected, got.State)
	}
}

func TestRegistryRunPersistsLifecycleTransitions(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := newFakeService()
	reg := NewRegistry(st, svc)
	tenant := seedTenant(t, st, models.SessionPendingLogin)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		reg.Run(ctx)
		close(done)
	}()

	svc.lifecycle <- models.LifecycleEvent{
		TenantID: tenant.ID,
		Type:     models.LifecycleOperational,
		Address:  "15551234567",
		Identity: "15551234567:1@s.whatsapp.net",
		Time:     time.Now(),
	}
	close(svc.lifecycle)
	<-done

	got, _ := st.GetTenant(tenant.ID)
	if got.State != models.SessionOperational {
		t.Errorf("expected state %s, got %s", models.SessionOperational, got.State)
	}
	if got.ContactAddress != "15551234567" {
		t.Errorf("expected contact address persisted, got %q", got.ContactAddress)
	}
	if got.IdentityKey != "15551234567:1@s.whatsapp.net" {
		t.Errorf("expected identity key persisted, got %q", got.IdentityKey)
	}
}

func TestRegistryRunFansOutToObservers(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := newFakeService()
	reg := NewRegistry(st, svc)
	tenant := seedTenant(t, st, models.SessionDisconnected)

	obs := reg.Subscribe()
	done := make(chan struct{})
	go func() {
		reg.Run(context.Background())
		close(done)
	}()

	svc.lifecycle <- models.LifecycleEvent{
		TenantID: tenant.ID,
		Type:     models.LifecycleLoginCode,
		Code:     "2@abc",
		Time:     time.Now(),
	}
	close(svc.lifecycle)
	<-done

	select {
	case evt := <-obs:
		if evt.Type != models.LifecycleLoginCode || evt.Code != "2@abc" {
			t.Errorf("unexpected observer event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("observer did not receive lifecycle event")
	}

	got, _ := st.GetTenant(tenant.ID)
	if got.State != models.SessionPendingLogin {
		t.Errorf("expected state %s, got %s", models.SessionPendingLogin, got.State)
	}
}

func TestRegistryRecoverOperational(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := newFakeService()
	reg := NewRegistry(st, svc)

	seedTenant(t, st, models.SessionOperational)
	seedTenant(t, st, models.SessionDisconnected)
	seedTenant(t, st, models.SessionOperational)

	if err := reg.RecoverOperational(context.Background()); err != nil {
		t.Fatalf("RecoverOperational failed: %v", err)
	}
	if svc.openedCount() != 2 {
		t.Errorf("expected 2 sessions re-opened, got %d", svc.openedCount())
	}
}

func TestRegistryRecoverOperationalMarksFailuresDisconnected(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := newFakeService()
	svc.openErr = errors.New("transport down")
	reg := NewRegistry(st, svc)
	tenant := seedTenant(t, st, models.SessionOperational)

	if err := reg.RecoverOperational(context.Background()); err != nil {
		t.Fatalf("RecoverOperational failed: %v", err)
	}

	got, _ := st.GetTenant(tenant.ID)
	if got.State != models.SessionDisconnected {
		t.Errorf("expected failed recovery to mark tenant %s, got %s", models.SessionDisconnected, got.State)
	}
}
