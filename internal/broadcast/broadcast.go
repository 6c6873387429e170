// Package broadcast implements the fire-and-forget mass-send engine.
//
// It reuses the session registry's send capability with per-recipient
// pacing and bounded retries. It is not part of the conversation state
// machine.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/util"
)

// Retry policy: each send is attempted up to DefaultMaxAttempts times
// with linearly increasing backoff (base, 2*base, ...).
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
)

// Default pacing delay range between recipients.
const (
	DefaultMinDelay = 2 * time.Second
	DefaultMaxDelay = 6 * time.Second
)

// Sender is the outbound-send capability supplied by the session registry.
type Sender interface {
	Send(ctx context.Context, tenantID int64, to string, content models.Content) error
}

// Request describes one broadcast batch.
type Request struct {
	TenantID    int64    `json:"tenant_id"`
	Recipients  []string `json:"recipients"`
	Message     string   `json:"message"`
	Attachments []string `json:"attachments,omitempty"`

	// Pacing delay range between recipients; zero values use the defaults.
	MinDelay time.Duration `json:"min_delay,omitempty"`
	MaxDelay time.Duration `json:"max_delay,omitempty"`

	// MediaFirst sends attachments before the text when set.
	MediaFirst bool `json:"media_first,omitempty"`
}

// Report aggregates the outcome of one batch.
type Report struct {
	BatchID string   `json:"batch_id"`
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Opts holds engine configuration options.
type Opts struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithMaxAttempts overrides the per-send attempt limit.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) { o.MaxAttempts = n }
}

// WithBackoff overrides the base retry backoff (used by tests).
func WithBackoff(d time.Duration) Option {
	return func(o *Opts) { o.Backoff = d }
}

// Engine performs paced, retried mass sends.
type Engine struct {
	sender      Sender
	maxAttempts int
	backoff     time.Duration
}

// NewEngine creates a broadcast engine.
func NewEngine(sender Sender, opts ...Option) *Engine {
	cfg := Opts{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{sender: sender, maxAttempts: cfg.MaxAttempts, backoff: cfg.Backoff}
}

// Broadcast delivers the message to every recipient in order, waiting a
// randomized delay between recipients to avoid transport rate limits. A
// recipient's permanent failure is recorded and does not abort the rest
// of the batch.
func (e *Engine) Broadcast(ctx context.Context, req Request) Report {
	report := Report{BatchID: uuid.New().String()}
	minDelay, maxDelay := req.MinDelay, req.MaxDelay
	if minDelay <= 0 {
		minDelay = DefaultMinDelay
	}
	if maxDelay < minDelay {
		maxDelay = DefaultMaxDelay
	}

	slog.Info("Broadcast starting", "batch_id", report.BatchID, "tenant_id", req.TenantID, "recipients", len(req.Recipients))
	for i, recipient := range req.Recipients {
		if i > 0 {
			delay := util.DurationBetween(minDelay, maxDelay)
			select {
			case <-ctx.Done():
				report.Failed += len(req.Recipients) - i
				report.Errors = append(report.Errors, fmt.Sprintf("batch aborted: %v", ctx.Err()))
				slog.Warn("Broadcast aborted", "batch_id", report.BatchID, "sent", report.Sent, "remaining", len(req.Recipients)-i)
				return report
			case <-time.After(delay):
			}
		}

		if err := e.deliver(ctx, req, recipient); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", recipient, err))
			slog.Error("Broadcast recipient failed", "error", err, "batch_id", report.BatchID, "recipient", recipient)
			continue
		}
		report.Sent++
	}
	slog.Info("Broadcast finished", "batch_id", report.BatchID, "sent", report.Sent, "failed", report.Failed)
	return report
}

// deliver sends all parts of the broadcast to one recipient.
func (e *Engine) deliver(ctx context.Context, req Request, recipient string) error {
	var contents []models.Content
	if req.MediaFirst {
		for _, a := range req.Attachments {
			contents = append(contents, models.Content{MediaURL: a})
		}
		if req.Message != "" {
			contents = append(contents, models.Content{Text: req.Message})
		}
	} else {
		if req.Message != "" {
			contents = append(contents, models.Content{Text: req.Message})
		}
		for _, a := range req.Attachments {
			contents = append(contents, models.Content{MediaURL: a})
		}
	}
	if len(contents) == 0 {
		return models.ErrEmptyContent
	}

	for _, c := range contents {
		if err := e.sendWithRetry(ctx, req.TenantID, recipient, c); err != nil {
			return err
		}
	}
	return nil
}

// sendWithRetry attempts one send with linearly increasing backoff.
func (e *Engine) sendWithRetry(ctx context.Context, tenantID int64, to string, content models.Content) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * e.backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if lastErr = e.sender.Send(ctx, tenantID, to, content); lastErr == nil {
			return nil
		}
		slog.Debug("Broadcast send attempt failed", "error", lastErr, "attempt", attempt, "to", to)
	}
	return fmt.Errorf("failed after %d attempts: %w", e.maxAttempts, lastErr)
}
