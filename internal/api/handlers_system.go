// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package api

import (
	"net/http"
	"time"

	"github.com/tmachen/gridwatch/internal/websocket"
)

// defaultAuditLimit caps unbounded audit reads.
const defaultAuditLimit = 500

// healthResponse is the body of GET /api/v1/health.
type healthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Subscribers int    `json:"subscribers"`
}

// handleHealth reports liveness. Unauthenticated: load balancers and the
// client's connectivity probe both hit it.
// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Subscribers: s.hub.GetClientCount(),
	}, -1)
}

// handleWebSocket upgrades the connection and registers it with the hub.
// GET /api/v1/ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(s.hub, w, r)
}

// handleListAudit returns recent audit events, newest last.
// GET /api/v1/audit?limit=N
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", defaultAuditLimit)
	events, err := s.trail.List(limit)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, events, len(events))
}
