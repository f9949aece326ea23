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

// --- Controllers ---

func (s *Server) handleListControllers(w http.ResponseWriter, r *http.Request) {
	controllers, err := s.store.ListModbusControllers()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, controllers, len(controllers))
}

func (s *Server) handleGetController(w http.ResponseWriter, r *http.Request) {
	controller, err := s.store.GetModbusController(chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, controller, -1)
}

func (s *Server) handleListControllerMappings(w http.ResponseWriter, r *http.Request) {
	controllerID := chi.URLParam(r, "id")
	if _, err := s.store.GetModbusController(controllerID); err != nil {
		handleStoreError(w, err)
		return
	}
	mappings, err := s.store.ListModbusMappingsByController(controllerID)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, mappings, len(mappings))
}

func (s *Server) handleCreateController(w http.ResponseWriter, r *http.Request) {
	var controller models.ModbusController
	if !decodeJSON(w, r, &controller) || !validateRequest(w, &controller) {
		return
	}
	controller.ID = ""
	if err := s.store.CreateModbusController(&controller); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "create", "modbus_controller", controller.ID, "created controller "+controller.Name)
	respondSuccess(w, http.StatusCreated, &controller, -1)
}

func (s *Server) handleUpdateController(w http.ResponseWriter, r *http.Request) {
	var controller models.ModbusController
	if !decodeJSON(w, r, &controller) || !validateRequest(w, &controller) {
		return
	}
	controller.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateModbusController(&controller); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "update", "modbus_controller", controller.ID, "updated controller "+controller.Name)
	respondSuccess(w, http.StatusOK, &controller, -1)
}

func (s *Server) handleDeleteController(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteModbusController(id); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "delete", "modbus_controller", id, "deleted controller and its mappings")
	respondSuccess(w, http.StatusOK, nil, -1)
}

// --- Mappings ---

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.store.ListModbusMappings()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, mappings, len(mappings))
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	mapping, err := s.store.GetModbusMapping(chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, mapping, -1)
}

func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	var mapping models.ModbusMapping
	if !decodeJSON(w, r, &mapping) || !validateRequest(w, &mapping) {
		return
	}
	mapping.ID = ""
	if err := s.store.CreateModbusMapping(&mapping); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "create", "modbus_mapping", mapping.ID, "")
	respondSuccess(w, http.StatusCreated, &mapping, -1)
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	var mapping models.ModbusMapping
	if !decodeJSON(w, r, &mapping) || !validateRequest(w, &mapping) {
		return
	}
	mapping.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateModbusMapping(&mapping); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "update", "modbus_mapping", mapping.ID, "")
	respondSuccess(w, http.StatusOK, &mapping, -1)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteModbusMapping(id); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "delete", "modbus_mapping", id, "")
	respondSuccess(w, http.StatusOK, nil, -1)
}

// --- Gateways ---

func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
	gateways, err := s.store.ListModbusGateways()
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, gateways, len(gateways))
}

func (s *Server) handleGetGateway(w http.ResponseWriter, r *http.Request) {
	gateway, err := s.store.GetModbusGateway(chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, gateway, -1)
}

func (s *Server) handleCreateGateway(w http.ResponseWriter, r *http.Request) {
	var gateway models.ModbusGateway
	if !decodeJSON(w, r, &gateway) || !validateRequest(w, &gateway) {
		return
	}
	gateway.ID = ""
	if err := s.store.CreateModbusGateway(&gateway); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "create", "modbus_gateway", gateway.ID, "created gateway "+gateway.Name)
	respondSuccess(w, http.StatusCreated, &gateway, -1)
}

func (s *Server) handleUpdateGateway(w http.ResponseWriter, r *http.Request) {
	var gateway models.ModbusGateway
	if !decodeJSON(w, r, &gateway) || !validateRequest(w, &gateway) {
		return
	}
	gateway.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateModbusGateway(&gateway); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "update", "modbus_gateway", gateway.ID, "updated gateway "+gateway.Name)
	respondSuccess(w, http.StatusOK, &gateway, -1)
}

func (s *Server) handleDeleteGateway(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteModbusGateway(id); err != nil {
		handleStoreError(w, err)
		return
	}
	s.recordAudit(r, "delete", "modbus_gateway", id, "")
	respondSuccess(w, http.StatusOK, nil, -1)
}
