// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmachen/gridwatch/internal/models"
)

// CreateModbusController stores a new polled controller.
func (s *Store) CreateModbusController(c *models.ModbusController) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	return s.setJSON(mbControllerKeyPrefix+c.ID, c)
}

// GetModbusController returns the controller with the given ID.
func (s *Store) GetModbusController(id string) (*models.ModbusController, error) {
	var c models.ModbusController
	if err := s.getJSON(mbControllerKeyPrefix+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListModbusControllers returns every controller.
func (s *Store) ListModbusControllers() ([]*models.ModbusController, error) {
	return listPrefix[models.ModbusController](s, mbControllerKeyPrefix)
}

// UpdateModbusController replaces an existing controller.
func (s *Store) UpdateModbusController(c *models.ModbusController) error {
	existing, err := s.GetModbusController(c.ID)
	if err != nil {
		return err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	return s.setJSON(mbControllerKeyPrefix+c.ID, c)
}

// DeleteModbusController removes a controller and every mapping bound to it.
func (s *Store) DeleteModbusController(id string) error {
	if _, err := s.GetModbusController(id); err != nil {
		return err
	}

	mappings, err := s.ListModbusMappingsByController(id)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(mappings)+1)
	keys = append(keys, mbControllerKeyPrefix+id)
	for _, m := range mappings {
		keys = append(keys, mbMappingKeyPrefix+m.ID)
	}
	return s.deleteKey(keys...)
}

// checkMappingPosition enforces unique register positions per controller and
// register kind. excludeID skips the mapping being updated.
func (s *Store) checkMappingPosition(m *models.ModbusMapping, excludeID string) error {
	mappings, err := s.ListModbusMappingsByController(m.ControllerID)
	if err != nil {
		return err
	}
	for _, other := range mappings {
		if other.ID == excludeID {
			continue
		}
		if other.Kind == m.Kind && other.Position == m.Position {
			return &ConflictError{
				Field:     "position",
				ErrorCode: "POSITION_TAKEN",
				Message: fmt.Sprintf("%s position %d is already mapped to item %s",
					m.Kind, m.Position, other.ItemID),
			}
		}
	}
	return nil
}

// CreateModbusMapping stores a new register mapping. The controller and item
// must exist and the register position must be free.
func (s *Store) CreateModbusMapping(m *models.ModbusMapping) error {
	if _, err := s.GetModbusController(m.ControllerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &ConflictError{
				Field:     "controller_id",
				ErrorCode: "CONTROLLER_NOT_FOUND",
				Message:   fmt.Sprintf("controller %q does not exist", m.ControllerID),
			}
		}
		return err
	}
	if _, err := s.GetItem(m.ItemID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &ConflictError{
				Field:     "item_id",
				ErrorCode: "ITEM_NOT_FOUND",
				Message:   fmt.Sprintf("item %q does not exist", m.ItemID),
			}
		}
		return err
	}
	if err := s.checkMappingPosition(m, ""); err != nil {
		return err
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Scale == 0 {
		m.Scale = 1
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	return s.setJSON(mbMappingKeyPrefix+m.ID, m)
}

// GetModbusMapping returns the mapping with the given ID.
func (s *Store) GetModbusMapping(id string) (*models.ModbusMapping, error) {
	var m models.ModbusMapping
	if err := s.getJSON(mbMappingKeyPrefix+id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListModbusMappings returns every mapping.
func (s *Store) ListModbusMappings() ([]*models.ModbusMapping, error) {
	return listPrefix[models.ModbusMapping](s, mbMappingKeyPrefix)
}

// ListModbusMappingsByController returns the mappings bound to one controller.
func (s *Store) ListModbusMappingsByController(controllerID string) ([]*models.ModbusMapping, error) {
	all, err := s.ListModbusMappings()
	if err != nil {
		return nil, err
	}
	matched := all[:0]
	for _, m := range all {
		if m.ControllerID == controllerID {
			matched = append(matched, m)
		}
	}
	return matched, nil
}

// UpdateModbusMapping replaces an existing mapping, re-checking position
// uniqueness.
func (s *Store) UpdateModbusMapping(m *models.ModbusMapping) error {
	existing, err := s.GetModbusMapping(m.ID)
	if err != nil {
		return err
	}
	if err := s.checkMappingPosition(m, m.ID); err != nil {
		return err
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	return s.setJSON(mbMappingKeyPrefix+m.ID, m)
}

// DeleteModbusMapping removes a mapping.
func (s *Store) DeleteModbusMapping(id string) error {
	if _, err := s.GetModbusMapping(id); err != nil {
		return err
	}
	return s.deleteKey(mbMappingKeyPrefix + id)
}

// checkGatewayPort enforces unique listen ports across gateways.
func (s *Store) checkGatewayPort(g *models.ModbusGateway, excludeID string) error {
	gateways, err := s.ListModbusGateways()
	if err != nil {
		return err
	}
	for _, other := range gateways {
		if other.ID == excludeID {
			continue
		}
		if other.ListenPort == g.ListenPort {
			return &ConflictError{
				Field:     "listen_port",
				ErrorCode: "PORT_IN_USE",
				Message:   fmt.Sprintf("port %d is already used by gateway %q", g.ListenPort, other.Name),
			}
		}
	}
	return nil
}

// CreateModbusGateway stores a new gateway. Listen ports are unique.
func (s *Store) CreateModbusGateway(g *models.ModbusGateway) error {
	if err := s.checkGatewayPort(g, ""); err != nil {
		return err
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	return s.setJSON(mbGatewayKeyPrefix+g.ID, g)
}

// GetModbusGateway returns the gateway with the given ID.
func (s *Store) GetModbusGateway(id string) (*models.ModbusGateway, error) {
	var g models.ModbusGateway
	if err := s.getJSON(mbGatewayKeyPrefix+id, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListModbusGateways returns every gateway.
func (s *Store) ListModbusGateways() ([]*models.ModbusGateway, error) {
	return listPrefix[models.ModbusGateway](s, mbGatewayKeyPrefix)
}

// UpdateModbusGateway replaces an existing gateway, re-checking port
// uniqueness.
func (s *Store) UpdateModbusGateway(g *models.ModbusGateway) error {
	existing, err := s.GetModbusGateway(g.ID)
	if err != nil {
		return err
	}
	if err := s.checkGatewayPort(g, g.ID); err != nil {
		return err
	}
	g.CreatedAt = existing.CreatedAt
	g.UpdatedAt = time.Now().UTC()
	return s.setJSON(mbGatewayKeyPrefix+g.ID, g)
}

// DeleteModbusGateway removes a gateway.
func (s *Store) DeleteModbusGateway(id string) error {
	if _, err := s.GetModbusGateway(id); err != nil {
		return err
	}
	return s.deleteKey(mbGatewayKeyPrefix + id)
}
