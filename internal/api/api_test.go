package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tiendabot/tiendabot/internal/broadcast"
	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/session"
	"github.com/tiendabot/tiendabot/internal/store"
)

// fakeService is a minimal messaging.Service for wiring the registry.
type fakeService struct {
	messages  chan models.Message
	lifecycle chan models.LifecycleEvent
}

func newFakeService() *fakeService {
	return &fakeService{
		messages:  make(chan models.Message, 1),
		lifecycle: make(chan models.LifecycleEvent, 1),
	}
}

func (f *fakeService) Open(ctx context.Context, tenantID int64, identityKey string) error { return nil }
func (f *fakeService) Close(ctx context.Context, tenantID int64) error { return nil }
func (f *fakeService) Send(ctx context.Context, tenantID int64, to string, c models.Content) error {
	return nil
}
func (f *fakeService) Messages() <-chan models.Message         { return f.messages }
func (f *fakeService) Lifecycle() <-chan models.LifecycleEvent { return f.lifecycle }
func (f *fakeService) Stop() error { return nil }

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	registry := session.NewRegistry(st, newFakeService())
	bc := broadcast.NewEngine(registry, broadcast.WithBackoff(time.Millisecond))
	return NewServer(registry, st, bc), st
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status != string(models.APIStatusOK) {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	tenant := &models.Tenant{IdentityKey: "shop-1", State: models.SessionOperational}
	if err := st.SaveTenant(tenant); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(models.SessionOperational)) {
		t.Errorf("expected session state in body, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/999", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestConnectEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	tenant := &models.Tenant{IdentityKey: "shop-1", State: models.SessionDisconnected}
	if err := st.SaveTenant(tenant); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/1/connect", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got, _ := st.GetTenant(tenant.ID)
	if got.State != models.SessionPendingLogin {
		t.Errorf("expected pending_login after connect, got %s", got.State)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/999/connect", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	tenant := &models.Tenant{IdentityKey: "shop-1", State: models.SessionOperational}
	if err := st.SaveTenant(tenant); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/1/logout", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got, _ := st.GetTenant(tenant.ID)
	if got.State != models.SessionDisconnected {
		t.Errorf("expected disconnected after logout, got %s", got.State)
	}
}

func TestBroadcastEndpointValidation(t *testing.T) {
	s, st := newTestServer(t)
	tenant := &models.Tenant{IdentityKey: "shop-1", State: models.SessionDisconnected}
	if err := st.SaveTenant(tenant); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}

	cases := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing recipients", `{"tenant_id":1,"message":"hi"}`, http.StatusBadRequest},
		{"missing content", `{"tenant_id":1,"recipients":["15551234567"]}`, http.StatusBadRequest},
		{"bad recipient", `{"tenant_id":1,"recipients":["abc"],"message":"hi"}`, http.StatusBadRequest},
		{"unknown tenant", `{"tenant_id":99,"recipients":["15551234567"],"message":"hi"}`, http.StatusNotFound},
		{"not operational", `{"tenant_id":1,"recipients":["15551234567"],"message":"hi"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(tc.body))
			s.Handler().ServeHTTP(rec, req)
			if rec.Code != tc.code {
				t.Errorf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestBroadcastEndpointAccepted(t *testing.T) {
	s, st := newTestServer(t)
	tenant := &models.Tenant{IdentityKey: "shop-1", State: models.SessionOperational}
	if err := st.SaveTenant(tenant); err != nil {
		t.Fatalf("SaveTenant failed: %v", err)
	}

	body := `{"tenant_id":1,"recipients":["15551234567"],"message":"big sale","min_delay":1,"max_delay":2}`
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeResponse(t, rec); resp.Status != string(models.APIStatusAccepted) {
		t.Errorf("unexpected response: %+v", resp)
	}
}
