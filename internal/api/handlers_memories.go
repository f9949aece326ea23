// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tmachen/gridwatch/internal/models"
)

// invalidateEngine nudges the engine to reload after a memory mutation.
func (s *Server) invalidateEngine() {
	if s.engine != nil {
		s.engine.Invalidate()
	}
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := s.store.ListMemories()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, memories, len(memories))
}

// handleListMemoryTypes returns the supported computation types so clients
// can build the type picker without hardcoding the list.
func (s *Server) handleListMemoryTypes(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, models.MemoryTypes, len(models.MemoryTypes))
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	memory, err := s.store.GetMemory(chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, memory, -1)
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var memory models.Memory
	if !decodeJSON(w, r, &memory) || !validateRequest(w, &memory) {
		return
	}
	if !validateMemoryConfig(w, &memory) {
		return
	}
	memory.ID = ""
	if err := s.store.CreateMemory(&memory); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "create", "memory", memory.ID, "created "+string(memory.Type)+" memory "+memory.Name)
	s.invalidateEngine()
	respondSuccess(w, http.StatusCreated, &memory, -1)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	var memory models.Memory
	if !decodeJSON(w, r, &memory) || !validateRequest(w, &memory) {
		return
	}
	if !validateMemoryConfig(w, &memory) {
		return
	}
	memory.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateMemory(&memory); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "update", "memory", memory.ID, "updated memory "+memory.Name)
	s.invalidateEngine()
	respondSuccess(w, http.StatusOK, &memory, -1)
}

// memoryEnabledRequest is the body of PUT /memories/{id}/enabled.
type memoryEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetMemoryEnabled(w http.ResponseWriter, r *http.Request) {
	var req memoryEnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.SetMemoryEnabled(id, req.Enabled); err != nil {
		handleStoreError(w, err)
		return
	}
	action := "disabled"
	if req.Enabled {
		action = "enabled"
	}
	s.recordAudit(r, "update", "memory", id, action+" memory")
	s.invalidateEngine()
	respondSuccess(w, http.StatusOK, nil, -1)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteMemory(id); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "delete", "memory", id, "")
	s.invalidateEngine()
	respondSuccess(w, http.StatusOK, nil, -1)
}

// validateMemoryConfig runs struct validation on the typed config matching
// memory.Type. The envelope validator cannot reach it because the config
// fields are optional pointers.
func validateMemoryConfig(w http.ResponseWriter, memory *models.Memory) bool {
	if !memory.Type.Valid() {
		respondError(w, http.StatusBadRequest, models.CodeValidationError,
			"unknown memory type "+string(memory.Type),
			map[string]any{"fields": []models.FieldError{{
				Field:     "type",
				ErrorCode: "UNKNOWN_TYPE",
				Message:   "unknown memory type " + string(memory.Type),
			}}})
		return false
	}
	cfg := memory.ConfigForType()
	if cfg == nil {
		// The store returns a structured conflict for this, but catching it
		// here gives the dialog a proper VALIDATION_ERROR
		respondError(w, http.StatusBadRequest, models.CodeValidationError,
			"memory config does not match type "+string(memory.Type),
			map[string]any{"fields": []models.FieldError{{
				Field:     "type",
				ErrorCode: "MISSING_CONFIG",
				Message:   "no configuration provided for type " + string(memory.Type),
			}}})
		return false
	}
	return validateRequest(w, cfg)
}
