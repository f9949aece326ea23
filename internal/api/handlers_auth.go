// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package api

import (
	"errors"
	"net/http"

	"github.com/tmachen/gridwatch/internal/audit"
	"github.com/tmachen/gridwatch/internal/auth"
	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/metrics"
	"github.com/tmachen/gridwatch/internal/models"
)

// handleLogin authenticates credentials and issues a bearer token.
// POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	resp, err := s.auth.Login(&req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountLocked):
			metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
			respondError(w, http.StatusTooManyRequests, models.CodeUnauthorized, err.Error(), nil)
		case errors.Is(err, auth.ErrAccountDisabled):
			metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
			respondError(w, http.StatusForbidden, models.CodeForbidden, err.Error(), nil)
		case errors.Is(err, auth.ErrInvalidCredentials):
			metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
			respondError(w, http.StatusUnauthorized, models.CodeUnauthorized, err.Error(), nil)
		default:
			metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
			handleStoreError(w, err)
		}
		return
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.recordAuditAs(resp.User.Username, r, "login", "user", resp.User.ID, "")
	respondSuccess(w, http.StatusOK, resp, -1)
}

// handleMe returns the account behind the bearer token.
// GET /api/v1/auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, models.CodeUnauthorized, "not authenticated", nil)
		return
	}

	user, err := s.store.GetUser(claims.UserID)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, user, -1)
}

// actor returns the authenticated username, or "system" for internal calls.
func actor(r *http.Request) string {
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		return claims.Username
	}
	return "system"
}

// recordAudit appends an audit event for a completed mutation. Trail errors
// are logged, never surfaced to the caller.
func (s *Server) recordAudit(r *http.Request, action, resource, resourceID, details string) {
	s.recordAuditAs(actor(r), r, action, resource, resourceID, details)
}

func (s *Server) recordAuditAs(who string, r *http.Request, action, resource, resourceID, details string) {
	if s.trail == nil {
		return
	}
	err := s.trail.Record(&audit.Event{
		Actor:      who,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  r.RemoteAddr,
	})
	if err != nil {
		logging.Error().Err(err).Str("action", action).Str("resource", resource).
			Msg("Failed to record audit event")
	}
}
