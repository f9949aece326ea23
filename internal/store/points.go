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

	"github.com/tmachen/gridwatch/internal/models"
)

// CreateGroup stores a new item group.
func (s *Store) CreateGroup(group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now
	return s.setJSON(groupKeyPrefix+group.ID, group)
}

// GetGroup returns the group with the given ID.
func (s *Store) GetGroup(id string) (*models.Group, error) {
	var group models.Group
	if err := s.getJSON(groupKeyPrefix+id, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListGroups returns every group.
func (s *Store) ListGroups() ([]*models.Group, error) {
	return listPrefix[models.Group](s, groupKeyPrefix)
}

// UpdateGroup replaces an existing group.
func (s *Store) UpdateGroup(group *models.Group) error {
	existing, err := s.GetGroup(group.ID)
	if err != nil {
		return err
	}
	group.CreatedAt = existing.CreatedAt
	group.UpdatedAt = time.Now().UTC()
	return s.setJSON(groupKeyPrefix+group.ID, group)
}

// DeleteGroup removes a group. Groups that still contain items cannot be
// deleted.
func (s *Store) DeleteGroup(id string) error {
	if _, err := s.GetGroup(id); err != nil {
		return err
	}

	items, err := s.ListItemsByGroup(id)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		return &ConflictError{
			Field:     "id",
			ErrorCode: "GROUP_NOT_EMPTY",
			Message:   fmt.Sprintf("group contains %d items", len(items)),
		}
	}
	return s.deleteKey(groupKeyPrefix + id)
}

// CreateItem stores a new item. The referenced group must exist.
func (s *Store) CreateItem(item *models.Item) error {
	if _, err := s.GetGroup(item.GroupID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &ConflictError{
				Field:     "group_id",
				ErrorCode: "GROUP_NOT_FOUND",
				Message:   fmt.Sprintf("group %q does not exist", item.GroupID),
			}
		}
		return err
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txnSetJSON(txn, itemKeyPrefix+item.ID, item); err != nil {
			return err
		}
		groupKey := itemGroupKeyPrefix + item.GroupID + ":" + item.ID
		return txn.Set([]byte(groupKey), []byte(item.ID))
	})
}

// GetItem returns the item with the given ID.
func (s *Store) GetItem(id string) (*models.Item, error) {
	var item models.Item
	if err := s.getJSON(itemKeyPrefix+id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns every item across all groups.
func (s *Store) ListItems() ([]*models.Item, error) {
	return listPrefix[models.Item](s, itemKeyPrefix)
}

// ListItemsByGroup returns every item in one group via the group index.
func (s *Store) ListItemsByGroup(groupID string) ([]*models.Item, error) {
	var items []*models.Item

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(itemGroupKeyPrefix + groupID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var itemID string
			if err := it.Item().Value(func(val []byte) error {
				itemID = string(val)
				return nil
			}); err != nil {
				return err
			}

			itemRec, err := txn.Get([]byte(itemKeyPrefix + itemID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue // index entry outlived the item
			}
			if err != nil {
				return fmt.Errorf("get item %s: %w", itemID, err)
			}

			var item models.Item
			if err := itemRec.Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateItem replaces an existing item, maintaining the group index on a
// group move.
func (s *Store) UpdateItem(item *models.Item) error {
	existing, err := s.GetItem(item.ID)
	if err != nil {
		return err
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now().UTC()

	return s.db.Update(func(txn *badger.Txn) error {
		if item.GroupID != existing.GroupID {
			oldKey := itemGroupKeyPrefix + existing.GroupID + ":" + item.ID
			if err := txn.Delete([]byte(oldKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete old group index: %w", err)
			}
			newKey := itemGroupKeyPrefix + item.GroupID + ":" + item.ID
			if err := txn.Set([]byte(newKey), []byte(item.ID)); err != nil {
				return fmt.Errorf("set group index: %w", err)
			}
		}
		return txnSetJSON(txn, itemKeyPrefix+item.ID, item)
	})
}

// SetItemValue records a new observed value with good quality. Used by the
// Modbus pollers and the evaluation engine.
func (s *Store) SetItemValue(id string, value float64, at time.Time) error {
	item, err := s.GetItem(id)
	if err != nil {
		return err
	}
	item.Value = value
	item.Quality = true
	item.UpdatedAt = at.UTC()
	return s.setJSON(itemKeyPrefix+id, item)
}

// MarkItemStale flags an item as bad quality without touching its value.
func (s *Store) MarkItemStale(id string) error {
	item, err := s.GetItem(id)
	if err != nil {
		return err
	}
	item.Quality = false
	return s.setJSON(itemKeyPrefix+id, item)
}

// DeleteItem removes an item and its group index entry.
func (s *Store) DeleteItem(id string) error {
	item, err := s.GetItem(id)
	if err != nil {
		return err
	}
	return s.deleteKey(itemKeyPrefix+id, itemGroupKeyPrefix+item.GroupID+":"+id)
}

// CreateGlobalVariable stores a new global variable. Names are unique.
func (s *Store) CreateGlobalVariable(gv *models.GlobalVariable) error {
	if gv.ID == "" {
		gv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	gv.CreatedAt = now
	gv.UpdatedAt = now

	return s.db.Update(func(txn *badger.Txn) error {
		taken, err := txnExists(txn, gvarNameKeyPrefix+gv.Name)
		if err != nil {
			return fmt.Errorf("check variable name: %w", err)
		}
		if taken {
			return &ConflictError{
				Field:     "name",
				ErrorCode: "NAME_TAKEN",
				Message:   fmt.Sprintf("global variable %q already exists", gv.Name),
			}
		}
		if err := txnSetJSON(txn, gvarKeyPrefix+gv.ID, gv); err != nil {
			return err
		}
		return txn.Set([]byte(gvarNameKeyPrefix+gv.Name), []byte(gv.ID))
	})
}

// GetGlobalVariable returns the variable with the given ID.
func (s *Store) GetGlobalVariable(id string) (*models.GlobalVariable, error) {
	var gv models.GlobalVariable
	if err := s.getJSON(gvarKeyPrefix+id, &gv); err != nil {
		return nil, err
	}
	return &gv, nil
}

// GetGlobalVariableByName resolves the name index and loads the variable.
func (s *Store) GetGlobalVariableByName(name string) (*models.GlobalVariable, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(gvarNameKeyPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetGlobalVariable(id)
}

// ListGlobalVariables returns every global variable.
func (s *Store) ListGlobalVariables() ([]*models.GlobalVariable, error) {
	return listPrefix[models.GlobalVariable](s, gvarKeyPrefix)
}

// SetGlobalVariableValue writes a new value by variable name, creating the
// variable on first write. The engine uses this for memory outputs, so a
// memory can run before its output variable is declared.
func (s *Store) SetGlobalVariableValue(name string, value float64) error {
	gv, err := s.GetGlobalVariableByName(name)
	if errors.Is(err, ErrNotFound) {
		return s.CreateGlobalVariable(&models.GlobalVariable{
			Name:     name,
			Value:    value,
			ReadOnly: true,
		})
	}
	if err != nil {
		return err
	}
	gv.Value = value
	gv.UpdatedAt = time.Now().UTC()
	return s.setJSON(gvarKeyPrefix+gv.ID, gv)
}

// UpdateGlobalVariable replaces an existing variable's metadata and value.
// Read-only variables reject value writes from the API; the engine writes
// through SetGlobalVariableValue instead.
func (s *Store) UpdateGlobalVariable(gv *models.GlobalVariable) error {
	existing, err := s.GetGlobalVariable(gv.ID)
	if err != nil {
		return err
	}
	if existing.ReadOnly && gv.Value != existing.Value {
		return &ConflictError{
			Field:     "value",
			ErrorCode: "READ_ONLY",
			Message:   "variable is engine-owned and read-only",
		}
	}
	if gv.Name != existing.Name {
		return &ConflictError{
			Field:     "name",
			ErrorCode: "IMMUTABLE",
			Message:   "global variables cannot be renamed",
		}
	}
	gv.CreatedAt = existing.CreatedAt
	gv.UpdatedAt = time.Now().UTC()
	return s.setJSON(gvarKeyPrefix+gv.ID, gv)
}

// DeleteGlobalVariable removes a variable and its name index entry.
func (s *Store) DeleteGlobalVariable(id string) error {
	gv, err := s.GetGlobalVariable(id)
	if err != nil {
		return err
	}
	return s.deleteKey(gvarKeyPrefix+id, gvarNameKeyPrefix+gv.Name)
}
