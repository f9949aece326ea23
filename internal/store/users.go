// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/models"
)

// storedUser is the persistence shape of a user. models.User hides the
// bcrypt hash from JSON so handlers can serialize it straight into API
// responses; the stored form carries the hash as an explicit field.
type storedUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

func newStoredUser(u *models.User) *storedUser {
	return &storedUser{User: *u, PasswordHash: u.PasswordHash}
}

func (su *storedUser) user() *models.User {
	u := su.User
	u.PasswordHash = su.PasswordHash
	return &u
}

// CreateUser stores a new user. Usernames are unique; a duplicate returns a
// ConflictError on the username field.
func (s *Store) CreateUser(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	return s.db.Update(func(txn *badger.Txn) error {
		taken, err := txnExists(txn, usernameKeyPrefix+user.Username)
		if err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if taken {
			return &ConflictError{
				Field:     "username",
				ErrorCode: "USERNAME_TAKEN",
				Message:   fmt.Sprintf("username %q is already in use", user.Username),
			}
		}

		if err := txnSetJSON(txn, userKeyPrefix+user.ID, newStoredUser(user)); err != nil {
			return err
		}
		return txn.Set([]byte(usernameKeyPrefix+user.Username), []byte(user.ID))
	})
}

// GetUser returns the user with the given ID.
func (s *Store) GetUser(id string) (*models.User, error) {
	var su storedUser
	if err := s.getJSON(userKeyPrefix+id, &su); err != nil {
		return nil, err
	}
	return su.user(), nil
}

// GetUserByUsername resolves the username index and loads the user.
func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var su storedUser

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(usernameKeyPrefix + username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get username index: %w", err)
		}

		var userID string
		if err := item.Value(func(val []byte) error {
			userID = string(val)
			return nil
		}); err != nil {
			return err
		}

		userItem, err := txn.Get([]byte(userKeyPrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		return userItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &su)
		})
	})
	if err != nil {
		return nil, err
	}
	return su.user(), nil
}

// ListUsers returns every user.
func (s *Store) ListUsers() ([]*models.User, error) {
	stored, err := listPrefix[storedUser](s, userKeyPrefix)
	if err != nil {
		return nil, err
	}
	users := make([]*models.User, len(stored))
	for i, su := range stored {
		users[i] = su.user()
	}
	return users, nil
}

// UpdateUser replaces an existing user, maintaining the username index when
// the username changed.
func (s *Store) UpdateUser(user *models.User) error {
	existing, err := s.GetUser(user.ID)
	if err != nil {
		return err
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now().UTC()

	return s.db.Update(func(txn *badger.Txn) error {
		if user.Username != existing.Username {
			taken, err := txnExists(txn, usernameKeyPrefix+user.Username)
			if err != nil {
				return fmt.Errorf("check username: %w", err)
			}
			if taken {
				return &ConflictError{
					Field:     "username",
					ErrorCode: "USERNAME_TAKEN",
					Message:   fmt.Sprintf("username %q is already in use", user.Username),
				}
			}
			if err := txn.Delete([]byte(usernameKeyPrefix + existing.Username)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete old username index: %w", err)
			}
			if err := txn.Set([]byte(usernameKeyPrefix+user.Username), []byte(user.ID)); err != nil {
				return fmt.Errorf("set username index: %w", err)
			}
		}
		return txnSetJSON(txn, userKeyPrefix+user.ID, newStoredUser(user))
	})
}

// TouchUserLogin records a successful login timestamp.
func (s *Store) TouchUserLogin(id string, at time.Time) error {
	user, err := s.GetUser(id)
	if err != nil {
		return err
	}
	user.LastLoginAt = at.UTC()
	return s.setJSON(userKeyPrefix+id, newStoredUser(user))
}

// DeleteUser removes a user and its username index entry.
func (s *Store) DeleteUser(id string) error {
	user, err := s.GetUser(id)
	if err != nil {
		return err
	}
	return s.deleteKey(userKeyPrefix+id, usernameKeyPrefix+user.Username)
}

// CreateRole stores a new role.
func (s *Store) CreateRole(role *models.Role) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	return s.setJSON(roleKeyPrefix+role.ID, role)
}

// GetRole returns the role with the given ID.
func (s *Store) GetRole(id string) (*models.Role, error) {
	var role models.Role
	if err := s.getJSON(roleKeyPrefix+id, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// ListRoles returns every role.
func (s *Store) ListRoles() ([]*models.Role, error) {
	return listPrefix[models.Role](s, roleKeyPrefix)
}

// UpdateRole replaces an existing role. Built-in roles keep their name.
func (s *Store) UpdateRole(role *models.Role) error {
	existing, err := s.GetRole(role.ID)
	if err != nil {
		return err
	}
	if existing.BuiltIn && role.Name != existing.Name {
		return &ConflictError{
			Field:     "name",
			ErrorCode: "BUILTIN_ROLE",
			Message:   "built-in roles cannot be renamed",
		}
	}
	role.BuiltIn = existing.BuiltIn
	role.CreatedAt = existing.CreatedAt
	role.UpdatedAt = time.Now().UTC()
	return s.setJSON(roleKeyPrefix+role.ID, role)
}

// DeleteRole removes a role. Built-in roles and roles still assigned to a
// user cannot be deleted.
func (s *Store) DeleteRole(id string) error {
	role, err := s.GetRole(id)
	if err != nil {
		return err
	}
	if role.BuiltIn {
		return &ConflictError{
			Field:     "id",
			ErrorCode: "BUILTIN_ROLE",
			Message:   "built-in roles cannot be deleted",
		}
	}

	users, err := s.ListUsers()
	if err != nil {
		return err
	}
	for _, user := range users {
		if user.RoleID == id {
			return &ConflictError{
				Field:     "id",
				ErrorCode: "ROLE_IN_USE",
				Message:   fmt.Sprintf("role is assigned to user %q", user.Username),
			}
		}
	}

	return s.deleteKey(roleKeyPrefix + id)
}

// Built-in role IDs. Stable so casbin policies and seeding are deterministic.
const (
	RoleAdminID    = "role-admin"
	RoleOperatorID = "role-operator"
	RoleViewerID   = "role-viewer"
)

// SeedRoles creates the built-in admin, operator and viewer roles if they do
// not exist yet. Idempotent.
func (s *Store) SeedRoles() error {
	builtins := []*models.Role{
		{
			ID:          RoleAdminID,
			Name:        "admin",
			Description: "Full access to all resources",
			Permissions: []models.Permission{
				models.PermMemoriesRead, models.PermMemoriesWrite,
				models.PermModbusRead, models.PermModbusWrite,
				models.PermUsersRead, models.PermUsersWrite,
				models.PermAlarmsRead, models.PermAlarmsAck,
				models.PermAuditRead,
			},
			BuiltIn: true,
		},
		{
			ID:          RoleOperatorID,
			Name:        "operator",
			Description: "Configure memories and Modbus, acknowledge alarms",
			Permissions: []models.Permission{
				models.PermMemoriesRead, models.PermMemoriesWrite,
				models.PermModbusRead, models.PermModbusWrite,
				models.PermAlarmsRead, models.PermAlarmsAck,
			},
			BuiltIn: true,
		},
		{
			ID:          RoleViewerID,
			Name:        "viewer",
			Description: "Read-only access",
			Permissions: []models.Permission{
				models.PermMemoriesRead, models.PermModbusRead,
				models.PermAlarmsRead,
			},
			BuiltIn: true,
		},
	}

	for _, role := range builtins {
		_, err := s.GetRole(role.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.CreateRole(role); err != nil {
			return fmt.Errorf("seed role %s: %w", role.Name, err)
		}
		logging.Info().Str("role", role.Name).Msg("Seeded built-in role")
	}
	return nil
}

// SeedAdminUser creates the initial admin account when no users exist.
// passwordHash must already be bcrypt-hashed by the caller.
func (s *Store) SeedAdminUser(username, passwordHash string) error {
	users, err := s.ListUsers()
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	admin := &models.User{
		Username:     username,
		PasswordHash: passwordHash,
		RoleID:       RoleAdminID,
	}
	if err := s.CreateUser(admin); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	logging.Info().Str("username", username).Msg("Seeded initial admin user")
	return nil
}
