// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmachen/gridwatch/internal/auth"
	"github.com/tmachen/gridwatch/internal/models"
)

func TestBuiltinPolicies(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)

	tests := []struct {
		role    string
		object  string
		action  string
		allowed bool
	}{
		{"role-admin", "users", "write", true},
		{"role-admin", "audit", "read", true},
		{"role-operator", "memories", "write", true},
		{"role-operator", "users", "write", false},
		{"role-operator", "alarms", "ack", true},
		{"role-viewer", "memories", "read", true},
		{"role-viewer", "memories", "write", false},
		{"role-viewer", "alarms", "ack", false},
		{"role-unknown", "memories", "read", false},
	}

	for _, tt := range tests {
		allowed, err := e.Enforce(tt.role, tt.object, tt.action)
		require.NoError(t, err)
		assert.Equal(t, tt.allowed, allowed, "%s %s:%s", tt.role, tt.object, tt.action)
	}
}

func TestHasPermission(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)

	ok, err := e.HasPermission("role-admin", models.PermUsersWrite)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.HasPermission("role-admin", models.Permission("malformed"))
	assert.Error(t, err)
}

func TestSyncRole_CustomAndRemove(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)

	custom := &models.Role{
		ID:          "role-custom",
		Name:        "alarm-desk",
		Permissions: []models.Permission{models.PermAlarmsRead, models.PermAlarmsAck},
	}
	require.NoError(t, e.SyncRole(custom))

	allowed, err := e.Enforce("role-custom", "alarms", "ack")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = e.Enforce("role-custom", "memories", "read")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Re-sync with fewer permissions replaces, not accumulates
	custom.Permissions = []models.Permission{models.PermAlarmsRead}
	require.NoError(t, e.SyncRole(custom))
	allowed, err = e.Enforce("role-custom", "alarms", "ack")
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, e.RemoveRole("role-custom"))
	allowed, err = e.Enforce("role-custom", "alarms", "read")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRequireMiddleware(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)

	handler := e.Require("users", "write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("allowed role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users", nil)
		ctx := auth.ContextWithClaims(req.Context(), &auth.Claims{Username: "root", RoleID: "role-admin"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("denied role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users", nil)
		ctx := auth.ContextWithClaims(req.Context(), &auth.Claims{Username: "view", RoleID: "role-viewer"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), models.CodeForbidden)
	})

	t.Run("no claims", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
