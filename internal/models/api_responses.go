// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package models

import "time"

// APIResponse is the common envelope for every JSON response.
type APIResponse struct {
	Status   string    `json:"status"` // "success" or "error"
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata carries response bookkeeping.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count,omitempty"`
}

// APIError is the structured error body. Details carries field-level
// information for VALIDATION_ERROR and CONFLICT responses so form dialogs
// can map errors onto inputs.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes returned by the API.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeBadRequest      = "BAD_REQUEST"
)

// FieldError is one field/errorCode pair inside a CONFLICT or
// VALIDATION_ERROR details payload (e.g. port-already-in-use).
type FieldError struct {
	Field     string `json:"field"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// LoginRequest is the credentials payload for POST /api/v1/auth/login.
type LoginRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=64"`
	Password   string `json:"password" validate:"required,min=6,max=128"`
	RememberMe bool   `json:"remember_me"`
}

// LoginResponse carries the bearer token and the authenticated user.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
