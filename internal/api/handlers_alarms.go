// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultAlarmLogLimit caps unbounded history reads.
const defaultAlarmLogLimit = 500

// handleListAlarms returns the uncleared alarms.
// GET /api/v1/alarms
func (s *Server) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	alarms, err := s.store.ListAlarms()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, alarms, len(alarms))
}

// alarmCountResponse mirrors the websocket alarm_count_changed payload so
// the pull and push paths agree.
type alarmCountResponse struct {
	Count int `json:"count"`
}

// handleCountAlarms returns the uncleared alarm count, the cheap poll the
// client falls back to when the stream is down.
// GET /api/v1/alarms/count
func (s *Server) handleCountAlarms(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountAlarms()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, alarmCountResponse{Count: count}, -1)
}

// handleAckAlarm acknowledges an active alarm and pushes the new count.
// POST /api/v1/alarms/{id}/ack
func (s *Server) handleAckAlarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	alarm, err := s.store.AcknowledgeAlarm(id, actor(r))
	if err != nil {
		handleStoreError(w, err)
		return
	}

	s.recordAudit(r, "ack", "alarm", id, alarm.Message)
	if count, err := s.store.CountAlarms(); err == nil {
		s.hub.BroadcastAlarmCountChanged(count)
	}
	respondSuccess(w, http.StatusOK, alarm, -1)
}

// handleListAlarmLog returns recent alarm history, newest last.
// GET /api/v1/alarms/log?limit=N
func (s *Server) handleListAlarmLog(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", defaultAlarmLogLimit)
	entries, err := s.store.ListAlarmLog(limit)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, entries, len(entries))
}
