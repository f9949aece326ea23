// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tmachen/gridwatch/internal/models"
)

// --- Groups ---

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListGroups()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, groups, len(groups))
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.store.GetGroup(chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, group, -1)
}

func (s *Server) handleListGroupItems(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	if _, err := s.store.GetGroup(groupID); err != nil {
		handleStoreError(w, err)
		return
	}
	items, err := s.store.ListItemsByGroup(groupID)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, items, len(items))
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var group models.Group
	if !decodeJSON(w, r, &group) || !validateRequest(w, &group) {
		return
	}
	group.ID = ""
	if err := s.store.CreateGroup(&group); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "create", "group", group.ID, "created group "+group.Name)
	respondSuccess(w, http.StatusCreated, &group, -1)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var group models.Group
	if !decodeJSON(w, r, &group) || !validateRequest(w, &group) {
		return
	}
	group.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateGroup(&group); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "update", "group", group.ID, "updated group "+group.Name)
	respondSuccess(w, http.StatusOK, &group, -1)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteGroup(id); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "delete", "group", id, "")
	respondSuccess(w, http.StatusOK, nil, -1)
}

// --- Items ---

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	if groupID := r.URL.Query().Get("group_id"); groupID != "" {
		items, err := s.store.ListItemsByGroup(groupID)
		if err != nil {
			handleStoreError(w, err)
			return
		}
		respondSuccess(w, http.StatusOK, items, len(items))
		return
	}

	items, err := s.store.ListItems()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, items, len(items))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetItem(chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, item, -1)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var item models.Item
	if !decodeJSON(w, r, &item) || !validateRequest(w, &item) {
		return
	}
	item.ID = ""
	if err := s.store.CreateItem(&item); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "create", "item", item.ID, "created item "+item.Name)
	respondSuccess(w, http.StatusCreated, &item, -1)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var item models.Item
	if !decodeJSON(w, r, &item) || !validateRequest(w, &item) {
		return
	}
	item.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateItem(&item); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "update", "item", item.ID, "updated item "+item.Name)
	respondSuccess(w, http.StatusOK, &item, -1)
}

// itemValueRequest is the body of PUT /items/{id}/value, the manual write
// path for commissioning and simulation.
type itemValueRequest struct {
	Value float64 `json:"value"`
}

func (s *Server) handleSetItemValue(w http.ResponseWriter, r *http.Request) {
	var req itemValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.SetItemValue(id, req.Value, time.Now()); err != nil {
		handleStoreError(w, err)
		return
	}
	s.hub.BroadcastItemValuesChanged([]string{id})
	respondSuccess(w, http.StatusOK, nil, -1)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteItem(id); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "delete", "item", id, "")
	respondSuccess(w, http.StatusOK, nil, -1)
}

// --- Global variables ---

func (s *Server) handleListGlobalVariables(w http.ResponseWriter, r *http.Request) {
	vars, err := s.store.ListGlobalVariables()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, vars, len(vars))
}

func (s *Server) handleGetGlobalVariable(w http.ResponseWriter, r *http.Request) {
	gv, err := s.store.GetGlobalVariable(chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, gv, -1)
}

func (s *Server) handleCreateGlobalVariable(w http.ResponseWriter, r *http.Request) {
	var gv models.GlobalVariable
	if !decodeJSON(w, r, &gv) || !validateRequest(w, &gv) {
		return
	}
	gv.ID = ""
	gv.ReadOnly = false // engine-owned variables are created by the engine only
	if err := s.store.CreateGlobalVariable(&gv); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "create", "global_variable", gv.ID, "created variable "+gv.Name)
	s.hub.BroadcastGlobalVariablesChanged([]string{gv.Name})
	respondSuccess(w, http.StatusCreated, &gv, -1)
}

func (s *Server) handleUpdateGlobalVariable(w http.ResponseWriter, r *http.Request) {
	var gv models.GlobalVariable
	if !decodeJSON(w, r, &gv) || !validateRequest(w, &gv) {
		return
	}
	gv.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateGlobalVariable(&gv); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "update", "global_variable", gv.ID, "updated variable "+gv.Name)
	s.hub.BroadcastGlobalVariablesChanged([]string{gv.Name})
	respondSuccess(w, http.StatusOK, &gv, -1)
}

func (s *Server) handleDeleteGlobalVariable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteGlobalVariable(id); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "delete", "global_variable", id, "")
	respondSuccess(w, http.StatusOK, nil, -1)
}
