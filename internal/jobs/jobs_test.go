package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

type fakeCloser struct {
	mu     sync.Mutex
	closed []int64
}

func (f *fakeCloser) Close(ctx context.Context, tenantID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, tenantID)
	return nil
}

func (f *fakeCloser) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closed)
}

func TestSweepExpiredLoginsClosesStaleSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	closer := &fakeCloser{}

	stale := &models.Tenant{IdentityKey: "stale", State: models.SessionPendingLogin}
	if err := st.SaveTenant(stale); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}
	operational := &models.Tenant{IdentityKey: "live", State: models.SessionOperational}
	if err := st.SaveTenant(operational); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}

	// A negative expiry places the cutoff in the future, so the
	// just-updated pending tenant counts as stale.
	SweepExpiredLogins(st, closer, -time.Minute)

	if closer.count() != 1 || closer.closed[0] != stale.ID {
		t.Fatalf("expected only the pending tenant closed, got %v", closer.closed)
	}
}

func TestSweepExpiredLoginsKeepsFreshSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	closer := &fakeCloser{}

	fresh := &models.Tenant{IdentityKey: "fresh", State: models.SessionPendingLogin}
	if err := st.SaveTenant(fresh); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}

	SweepExpiredLogins(st, closer, time.Hour)

	if closer.count() != 0 {
		t.Errorf("expected fresh pending login kept, got %v", closer.closed)
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("expected invalid cron expression to be rejected")
	}
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("expected 5-field expression accepted, got %v", err)
	}
}
