// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package authz provides role-based authorization using Casbin. Built-in
// role policies are embedded; custom roles are synced from the store.
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/tmachen/gridwatch/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Enforcer wraps the Casbin enforcer with permission-string helpers.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an enforcer from the embedded model and policy.
func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	if err := loadEmbeddedPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}

	return &Enforcer{enforcer: enforcer}, nil
}

// loadEmbeddedPolicy parses and loads the embedded policy CSV.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) >= 4 {
				if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
					return fmt.Errorf("add policy %v: %w", parts[1:], err)
				}
			}
		case "g":
			if len(parts) >= 3 {
				if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
					return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
				}
			}
		}
	}
	return nil
}

// Enforce reports whether roleID may perform action on object.
func (e *Enforcer) Enforce(roleID, object, action string) (bool, error) {
	allowed, err := e.enforcer.Enforce(roleID, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	return allowed, nil
}

// HasPermission checks a permission string of the form "object:action"
// against roleID.
func (e *Enforcer) HasPermission(roleID string, perm models.Permission) (bool, error) {
	object, action, ok := strings.Cut(string(perm), ":")
	if !ok {
		return false, fmt.Errorf("malformed permission %q", perm)
	}
	return e.Enforce(roleID, object, action)
}

// SyncRole replaces roleID's policies with the role's permission list. Used
// for custom roles created through the API; built-in role policies are
// embedded and re-synced harmlessly.
func (e *Enforcer) SyncRole(role *models.Role) error {
	if _, err := e.enforcer.RemoveFilteredPolicy(0, role.ID); err != nil {
		return fmt.Errorf("clear role policies: %w", err)
	}
	for _, perm := range role.Permissions {
		object, action, ok := strings.Cut(string(perm), ":")
		if !ok {
			return fmt.Errorf("malformed permission %q on role %s", perm, role.ID)
		}
		if _, err := e.enforcer.AddPolicy(role.ID, object, action); err != nil {
			return fmt.Errorf("add policy for role %s: %w", role.ID, err)
		}
	}
	return nil
}

// RemoveRole drops every policy belonging to roleID.
func (e *Enforcer) RemoveRole(roleID string) error {
	if _, err := e.enforcer.RemoveFilteredPolicy(0, roleID); err != nil {
		return fmt.Errorf("remove role policies: %w", err)
	}
	return nil
}

// SyncRoles loads every role's permissions, called once at startup.
func (e *Enforcer) SyncRoles(roles []*models.Role) error {
	for _, role := range roles {
		if err := e.SyncRole(role); err != nil {
			return err
		}
	}
	return nil
}
