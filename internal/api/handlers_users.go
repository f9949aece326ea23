// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tmachen/gridwatch/internal/auth"
	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/models"
)

// createUserRequest is the body of POST /users. The password is hashed
// before it reaches the store.
type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	RoleID   string `json:"role_id" validate:"required"`
	Disabled bool   `json:"disabled"`
}

// updateUserRequest is the body of PUT /users/{id}. An empty password keeps
// the current one.
type updateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password,omitempty" validate:"omitempty,min=6,max=128"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	RoleID   string `json:"role_id" validate:"required"`
	Disabled bool   `json:"disabled"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, users, len(users))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, user, -1)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) || !validateRequest(w, &req) {
		return
	}
	if !s.roleExists(w, req.RoleID) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logging.Error().Err(err).Msg("Password hashing failed")
		respondError(w, http.StatusInternalServerError, models.CodeInternalError, "internal error", nil)
		return
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: hash,
		Email:        req.Email,
		RoleID:       req.RoleID,
		Disabled:     req.Disabled,
	}
	if err := s.store.CreateUser(user); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "create", "user", user.ID, "created user "+user.Username)
	respondSuccess(w, http.StatusCreated, user, -1)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !decodeJSON(w, r, &req) || !validateRequest(w, &req) {
		return
	}
	if !s.roleExists(w, req.RoleID) {
		return
	}

	user, err := s.store.GetUser(chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}

	user.Username = req.Username
	user.Email = req.Email
	user.RoleID = req.RoleID
	user.Disabled = req.Disabled
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			logging.Error().Err(err).Msg("Password hashing failed")
			respondError(w, http.StatusInternalServerError, models.CodeInternalError, "internal error", nil)
			return
		}
		user.PasswordHash = hash
	}

	if err := s.store.UpdateUser(user); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "update", "user", user.ID, "updated user "+user.Username)
	respondSuccess(w, http.StatusOK, user, -1)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil && claims.UserID == id {
		respondError(w, http.StatusConflict, models.CodeConflict,
			"cannot delete your own account", nil)
		return
	}
	if err := s.store.DeleteUser(id); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "delete", "user", id, "")
	respondSuccess(w, http.StatusOK, nil, -1)
}

// roleExists rejects user writes referencing a missing role with a field
// error on role_id rather than a bare 404.
func (s *Server) roleExists(w http.ResponseWriter, roleID string) bool {
	if _, err := s.store.GetRole(roleID); err != nil {
		respondError(w, http.StatusBadRequest, models.CodeValidationError,
			"role does not exist", map[string]any{"fields": []models.FieldError{{
				Field:     "role_id",
				ErrorCode: "ROLE_NOT_FOUND",
				Message:   "role " + roleID + " does not exist",
			}}})
		return false
	}
	return true
}

// --- Roles ---

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.store.ListRoles()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, roles, len(roles))
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.store.GetRole(chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, role, -1)
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var role models.Role
	if !decodeJSON(w, r, &role) || !validateRequest(w, &role) {
		return
	}
	role.ID = ""
	role.BuiltIn = false
	if err := s.store.CreateRole(&role); err != nil {
		handleStoreError(w, err)
		return
	}
	if err := s.enforcer.SyncRole(&role); err != nil {
		logging.Error().Err(err).Str("role_id", role.ID).Msg("Failed to sync role policy")
	}
	s.recordAudit(r, "create", "role", role.ID, "created role "+role.Name)
	respondSuccess(w, http.StatusCreated, &role, -1)
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var role models.Role
	if !decodeJSON(w, r, &role) || !validateRequest(w, &role) {
		return
	}
	role.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateRole(&role); err != nil {
		handleStoreError(w, err)
		return
	}
	if err := s.enforcer.SyncRole(&role); err != nil {
		logging.Error().Err(err).Str("role_id", role.ID).Msg("Failed to sync role policy")
	}
	s.recordAudit(r, "update", "role", role.ID, "updated role "+role.Name)
	respondSuccess(w, http.StatusOK, &role, -1)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteRole(id); err != nil {
		handleStoreError(w, err)
		return
	}
	if err := s.enforcer.RemoveRole(id); err != nil {
		logging.Error().Err(err).Str("role_id", id).Msg("Failed to remove role policy")
	}
	s.recordAudit(r, "delete", "role", id, "")
	respondSuccess(w, http.StatusOK, nil, -1)
}
