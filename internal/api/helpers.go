// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/models"
	"github.com/tmachen/gridwatch/internal/store"
	"github.com/tmachen/gridwatch/internal/validation"
)

// maxBodyBytes bounds request bodies; configuration payloads are small.
const maxBodyBytes = 1 << 20

// respondJSON writes the standard response envelope.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondSuccess wraps data in a success envelope. count < 0 omits the
// count field.
func respondSuccess(w http.ResponseWriter, status int, data any, count int) {
	md := models.Metadata{Timestamp: time.Now().UTC()}
	if count >= 0 {
		md.Count = count
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: md,
	})
}

// respondError writes an error envelope, logging server-side causes.
func respondError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	if status >= http.StatusInternalServerError {
		logging.Error().Str("code", code).Str("message", message).Msg("API error")
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    &models.APIError{Code: code, Message: message, Details: details},
	})
}

// decodeJSON reads a bounded JSON body into v. A false return means the
// error response was already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, models.CodeBadRequest,
			fmt.Sprintf("invalid JSON body: %v", err), nil)
		return false
	}
	return true
}

// validateRequest validates v, writing a VALIDATION_ERROR with per-field
// details on failure. A false return means the response was written.
func validateRequest(w http.ResponseWriter, v any) bool {
	if verr := validation.ValidateStruct(v); verr != nil {
		respondError(w, http.StatusBadRequest, models.CodeValidationError,
			verr.Error(), map[string]any{"fields": verr.Fields()})
		return false
	}
	return true
}

// handleStoreError maps repository errors onto the API error codes: missing
// records become 404, uniqueness and reference violations become 409 with
// the offending field in details, everything else is a 500.
func handleStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, models.CodeNotFound, "resource not found", nil)
		return
	}
	if ce, ok := store.IsConflict(err); ok {
		respondError(w, http.StatusConflict, models.CodeConflict, ce.Message, map[string]any{
			"fields": []models.FieldError{{
				Field:     ce.Field,
				ErrorCode: ce.ErrorCode,
				Message:   ce.Message,
			}},
		})
		return
	}
	logging.Error().Err(err).Msg("Store operation failed")
	respondError(w, http.StatusInternalServerError, models.CodeInternalError, "internal error", nil)
}

// getIntParam parses an integer query parameter with a default.
func getIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
