// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmachen/gridwatch/internal/models"
)

// validateMemoryEnvelope checks type/config consistency that struct tags
// cannot express: the config matching Type must be present.
func validateMemoryEnvelope(m *models.Memory) error {
	if !m.Type.Valid() {
		return &ConflictError{
			Field:     "type",
			ErrorCode: "UNKNOWN_TYPE",
			Message:   fmt.Sprintf("unknown memory type %q", m.Type),
		}
	}
	if m.ConfigForType() == nil {
		return &ConflictError{
			Field:     string(m.Type),
			ErrorCode: "MISSING_CONFIG",
			Message:   fmt.Sprintf("memory of type %q requires a %q config block", m.Type, m.Type),
		}
	}
	return nil
}

// CreateMemory stores a new memory block.
func (s *Store) CreateMemory(m *models.Memory) error {
	if err := validateMemoryEnvelope(m); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	return s.setJSON(memoryKeyPrefix+m.ID, m)
}

// GetMemory returns the memory with the given ID.
func (s *Store) GetMemory(id string) (*models.Memory, error) {
	var m models.Memory
	if err := s.getJSON(memoryKeyPrefix+id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMemories returns every memory block.
func (s *Store) ListMemories() ([]*models.Memory, error) {
	return listPrefix[models.Memory](s, memoryKeyPrefix)
}

// ListEnabledMemories returns only enabled memories, for the engine.
func (s *Store) ListEnabledMemories() ([]*models.Memory, error) {
	all, err := s.ListMemories()
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, m := range all {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	return enabled, nil
}

// UpdateMemory replaces an existing memory block.
func (s *Store) UpdateMemory(m *models.Memory) error {
	if err := validateMemoryEnvelope(m); err != nil {
		return err
	}
	existing, err := s.GetMemory(m.ID)
	if err != nil {
		return err
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	return s.setJSON(memoryKeyPrefix+m.ID, m)
}

// SetMemoryEnabled toggles a memory without replacing its config.
func (s *Store) SetMemoryEnabled(id string, enabled bool) error {
	m, err := s.GetMemory(id)
	if err != nil {
		return err
	}
	m.Enabled = enabled
	m.UpdatedAt = time.Now().UTC()
	return s.setJSON(memoryKeyPrefix+id, m)
}

// DeleteMemory removes a memory block.
func (s *Store) DeleteMemory(id string) error {
	if _, err := s.GetMemory(id); err != nil {
		return err
	}
	return s.deleteKey(memoryKeyPrefix + id)
}
