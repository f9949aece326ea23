// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package models

import "time"

// Permission names a capability a role grants. Permissions map onto casbin
// policy objects; the enforcer translates them to route patterns.
type Permission string

const (
	PermMemoriesRead  Permission = "memories:read"
	PermMemoriesWrite Permission = "memories:write"
	PermModbusRead    Permission = "modbus:read"
	PermModbusWrite   Permission = "modbus:write"
	PermUsersRead     Permission = "users:read"
	PermUsersWrite    Permission = "users:write"
	PermAlarmsRead    Permission = "alarms:read"
	PermAlarmsAck     Permission = "alarms:ack"
	PermAuditRead     Permission = "audit:read"
)

// Role groups permissions under a name. The built-in roles admin, operator
// and viewer are seeded at first start and cannot be deleted.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name" validate:"required,max=64"`
	Description string       `json:"description,omitempty" validate:"max=512"`
	Permissions []Permission `json:"permissions"`
	BuiltIn     bool         `json:"built_in"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// User is an operator account. PasswordHash is bcrypt and never serialized
// to API responses.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username" validate:"required,min=3,max=64"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email,omitempty" validate:"omitempty,email"`
	RoleID       string    `json:"role_id" validate:"required"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastLoginAt  time.Time `json:"last_login_at,omitzero"`
}
