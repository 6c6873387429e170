package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/tiendabot/tiendabot/internal/models"
)

func newTestTwilioService(t *testing.T) *TwilioService {
	t.Helper()
	svc, err := NewTwilioService(WithAccountSID("ACxxxx"), WithAuthToken("secret"))
	if err != nil {
		t.Fatalf("NewTwilioService failed: %v", err)
	}
	return svc
}

func TestNewTwilioServiceRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	if _, err := NewTwilioService(); err == nil {
		t.Error("expected error without credentials")
	}
}

func TestTwilioOpenEmitsOperational(t *testing.T) {
	svc := newTestTwilioService(t)

	if err := svc.Open(context.Background(), 1, "+15550001111"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	select {
	case evt := <-svc.Lifecycle():
		if evt.Type != models.LifecycleOperational || evt.TenantID != 1 {
			t.Errorf("unexpected lifecycle event: %+v", evt)
		}
		if evt.Address != "+15550001111" {
			t.Errorf("unexpected address: %q", evt.Address)
		}
	case <-time.After(time.Second):
		t.Fatal("expected operational event")
	}
}

func TestTwilioOpenRequiresIdentity(t *testing.T) {
	svc := newTestTwilioService(t)
	if err := svc.Open(context.Background(), 1, ""); err == nil {
		t.Error("expected error for empty identity key")
	}
}

func TestTwilioWebhookRoutesByToNumber(t *testing.T) {
	svc := newTestTwilioService(t)
	if err := svc.Open(context.Background(), 7, "+15550001111"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	<-svc.Lifecycle()

	form := url.Values{}
	form.Set("To", "whatsapp:+15550001111")
	form.Set("From", "whatsapp:+15551234567")
	form.Set("Body", "NEWORDER")
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	svc.WebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	select {
	case msg := <-svc.Messages():
		if msg.TenantID != 7 || msg.From != "15551234567" || msg.Text != "NEWORDER" {
			t.Errorf("unexpected message: %+v", msg)
		}
		if msg.IsGroup {
			t.Error("twilio webhook messages are never group messages")
		}
	case <-time.After(time.Second):
		t.Fatal("expected inbound message")
	}
}

func TestTwilioWebhookUnknownNumberIgnored(t *testing.T) {
	svc := newTestTwilioService(t)

	form := url.Values{}
	form.Set("To", "whatsapp:+19990000000")
	form.Set("From", "whatsapp:+15551234567")
	form.Set("Body", "hello")
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	svc.WebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown number, got %d", rec.Code)
	}
	select {
	case msg := <-svc.Messages():
		t.Errorf("expected no message forwarded, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTwilioCloseEmitsDisconnected(t *testing.T) {
	svc := newTestTwilioService(t)
	if err := svc.Open(context.Background(), 1, "+15550001111"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	<-svc.Lifecycle()

	if err := svc.Close(context.Background(), 1); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case evt := <-svc.Lifecycle():
		if evt.Type != models.LifecycleDisconnected {
			t.Errorf("expected disconnected event, got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected disconnected event")
	}

	// Sending for a closed tenant fails.
	err := svc.Send(context.Background(), 1, "15551234567", models.Content{Text: "hi"})
	if err == nil {
		t.Error("expected send to fail after close")
	}
}
