// Package api provides HTTP handlers for tiendabot endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tiendabot/tiendabot/internal/broadcast"
	"github.com/tiendabot/tiendabot/internal/messaging"
	"github.com/tiendabot/tiendabot/internal/models"
)

// tenantID extracts and validates the {id} path segment.
func tenantID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, err := tenantID(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid session id"))
		return
	}
	slog.Debug("Server.connectHandler: processing connect request", "tenant_id", id)

	if err := s.registry.Open(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrTenantNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.connectHandler: failed to open session", "error", err, "tenant_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to open session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session opening; watch its state for the login code", nil))
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, err := tenantID(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid session id"))
		return
	}
	slog.Debug("Server.logoutHandler: processing logout request", "tenant_id", id)

	if err := s.registry.Close(r.Context(), id); err != nil {
		slog.Error("Server.logoutHandler: failed to close session", "error", err, "tenant_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to close session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session closed", nil))
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid session id"))
		return
	}

	tenant, err := s.store.GetTenant(id)
	if err != nil {
		slog.Error("Server.statusHandler: failed to load tenant", "error", err, "tenant_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if tenant == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(tenant))
}

func (s *Server) broadcastHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req broadcast.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.broadcastHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.TenantID == 0 || len(req.Recipients) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("tenant_id and recipients are required"))
		return
	}
	if req.Message == "" && len(req.Attachments) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("message or attachments are required"))
		return
	}
	for _, recipient := range req.Recipients {
		if _, err := messaging.CanonicalizeRecipient(recipient); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
	}

	tenant, err := s.store.GetTenant(req.TenantID)
	if err != nil {
		slog.Error("Server.broadcastHandler: failed to load tenant", "error", err, "tenant_id", req.TenantID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if tenant == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	if tenant.State != models.SessionOperational {
		writeJSONResponse(w, http.StatusConflict, models.Error("Session is not operational"))
		return
	}

	// The batch runs in the background; pacing makes large batches slow.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		report := s.broadcast.Broadcast(ctx, req)
		slog.Info("Server.broadcastHandler: batch finished", "batch_id", report.BatchID, "sent", report.Sent, "failed", report.Failed)
	}()
	writeJSONResponse(w, http.StatusAccepted, models.Accepted("Broadcast started"))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
