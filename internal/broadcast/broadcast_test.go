package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tiendabot/tiendabot/internal/models"
)

type sentMessage struct {
	to    string
	text  string
	media string
}

// fakeSender records sends and fails selected recipients.
type fakeSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	failures map[string]int // remaining failures per recipient
}

func newFakeSender() *fakeSender {
	return &fakeSender{failures: make(map[string]int)}
}

func (f *fakeSender) Send(ctx context.Context, tenantID int64, to string, content models.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[to] > 0 {
		f.failures[to]--
		return errors.New("transport unavailable")
	}
	f.sent = append(f.sent, sentMessage{to: to, text: content.Text, media: content.MediaURL})
	return nil
}

func (f *fakeSender) sentTo(to string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.to == to {
			out = append(out, m)
		}
	}
	return out
}

func fastRequest(recipients ...string) Request {
	return Request{
		TenantID:   1,
		Recipients: recipients,
		Message:    "big sale today",
		MinDelay:   time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	}
}

func TestBroadcastAllRecipients(t *testing.T) {
	sender := newFakeSender()
	e := NewEngine(sender, WithBackoff(time.Millisecond))

	report := e.Broadcast(context.Background(), fastRequest("15550000001", "15550000002", "15550000003"))
	if report.Sent != 3 || report.Failed != 0 {
		t.Fatalf("expected 3 sent, got %+v", report)
	}
	if report.BatchID == "" {
		t.Error("expected a batch id")
	}
	for _, r := range []string{"15550000001", "15550000002", "15550000003"} {
		if got := sender.sentTo(r); len(got) != 1 || got[0].text != "big sale today" {
			t.Errorf("recipient %s: unexpected sends %+v", r, got)
		}
	}
}

func TestBroadcastRetriesTransientFailure(t *testing.T) {
	sender := newFakeSender()
	sender.failures["15550000001"] = 2 // fails twice, succeeds on third attempt
	e := NewEngine(sender, WithBackoff(time.Millisecond))

	report := e.Broadcast(context.Background(), fastRequest("15550000001"))
	if report.Sent != 1 || report.Failed != 0 {
		t.Fatalf("expected retried success, got %+v", report)
	}
}

func TestBroadcastPermanentFailureDoesNotAbortBatch(t *testing.T) {
	sender := newFakeSender()
	sender.failures["15550000002"] = 10
	e := NewEngine(sender, WithBackoff(time.Millisecond))

	report := e.Broadcast(context.Background(), fastRequest("15550000001", "15550000002", "15550000003"))
	if report.Sent != 2 || report.Failed != 1 {
		t.Fatalf("expected 2 sent / 1 failed, got %+v", report)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "15550000002") {
		t.Errorf("expected per-recipient error, got %v", report.Errors)
	}
	if got := sender.sentTo("15550000003"); len(got) != 1 {
		t.Error("expected batch to continue past the failed recipient")
	}
}

func TestBroadcastAttachmentOrdering(t *testing.T) {
	sender := newFakeSender()
	e := NewEngine(sender, WithBackoff(time.Millisecond))

	req := fastRequest("15550000001")
	req.Attachments = []string{"a.png", "b.png"}
	e.Broadcast(context.Background(), req)

	got := sender.sentTo("15550000001")
	if len(got) != 3 {
		t.Fatalf("expected text + 2 attachments, got %d", len(got))
	}
	if got[0].text != "big sale today" || got[1].media != "a.png" || got[2].media != "b.png" {
		t.Errorf("expected text first then attachments in order, got %+v", got)
	}

	sender2 := newFakeSender()
	e2 := NewEngine(sender2, WithBackoff(time.Millisecond))
	req.MediaFirst = true
	e2.Broadcast(context.Background(), req)
	got = sender2.sentTo("15550000001")
	if got[0].media != "a.png" || got[2].text != "big sale today" {
		t.Errorf("expected attachments first with MediaFirst, got %+v", got)
	}
}

func TestBroadcastEmptyContent(t *testing.T) {
	sender := newFakeSender()
	e := NewEngine(sender, WithBackoff(time.Millisecond))

	req := fastRequest("15550000001")
	req.Message = ""
	report := e.Broadcast(context.Background(), req)
	if report.Failed != 1 {
		t.Fatalf("expected empty content to fail, got %+v", report)
	}
}

func TestBroadcastCancelledContext(t *testing.T) {
	sender := newFakeSender()
	e := NewEngine(sender, WithBackoff(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := e.Broadcast(ctx, fastRequest("15550000001", "15550000002"))
	// The first recipient is attempted before any pacing delay; the rest
	// of the batch is abandoned.
	if report.Sent+report.Failed != 2 {
		t.Fatalf("expected all recipients accounted for, got %+v", report)
	}
	if report.Failed < 1 {
		t.Errorf("expected remaining recipients marked failed, got %+v", report)
	}
}
