// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package authz

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tmachen/gridwatch/internal/auth"
	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/models"
)

// Require returns middleware that rejects requests whose authenticated role
// lacks permission to perform action on object. Must run after the auth
// middleware.
func (e *Enforcer) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.ClaimsFromContext(r.Context())
			if claims == nil {
				writeForbidden(w, "no authenticated role")
				return
			}

			allowed, err := e.Enforce(claims.RoleID, object, action)
			if err != nil {
				logging.Error().Err(err).
					Str("role", claims.RoleID).
					Str("object", object).
					Str("action", action).
					Msg("Authorization check failed")
				writeForbidden(w, "authorization check failed")
				return
			}
			if !allowed {
				logging.Warn().
					Str("username", claims.Username).
					Str("role", claims.RoleID).
					Str("object", object).
					Str("action", action).
					Msg("Access denied")
				writeForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeForbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	//nolint:errcheck // nothing to do if the client went away
	json.NewEncoder(w).Encode(models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: models.CodeForbidden, Message: message},
	})
}
