// Package jobs provides cron-based background maintenance for tiendabot.
//
// Jobs are scheduled with standard 5-field cron expressions.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

// DefaultLoginExpiry is how long a tenant may sit in PendingLogin before
// its unscanned login code is considered expired.
const DefaultLoginExpiry = 30 * time.Minute

// loginExpirySchedule runs the pending-login sweep every 10 minutes.
const loginExpirySchedule = "*/10 * * * *"

// SessionCloser tears down one tenant session.
type SessionCloser interface {
	Close(ctx context.Context, tenantID int64) error
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// ScheduleLoginExpiry registers the periodic sweep that tears down
// tenant sessions stuck in PendingLogin past the expiry window.
func (s *Scheduler) ScheduleLoginExpiry(st store.Store, closer SessionCloser, expiry time.Duration) error {
	if expiry <= 0 {
		expiry = DefaultLoginExpiry
	}
	return s.AddJob(loginExpirySchedule, func() {
		SweepExpiredLogins(st, closer, expiry)
	})
}

// SweepExpiredLogins closes every tenant session whose login code was
// issued longer than expiry ago and never scanned.
func SweepExpiredLogins(st store.Store, closer SessionCloser, expiry time.Duration) {
	tenants, err := st.ListTenantsByState(models.SessionPendingLogin)
	if err != nil {
		slog.Error("Login expiry sweep failed to list tenants", "error", err)
		return
	}

	cutoff := time.Now().Add(-expiry)
	for _, t := range tenants {
		if t.UpdatedAt.After(cutoff) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := closer.Close(ctx, t.ID)
		cancel()
		if err != nil {
			slog.Error("Login expiry sweep failed to close session", "error", err, "tenant_id", t.ID)
			continue
		}
		slog.Info("Expired pending login closed", "tenant_id", t.ID)
	}
}
