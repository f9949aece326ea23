// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package client is the headless counterpart of the operator dashboard: a
// REST/WebSocket consumer with a local snapshot cache, used by kiosk
// displays and integration tooling that talk to a Gridwatch server.
package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"github.com/tmachen/gridwatch/internal/models"
)

// Cache bucket layout. Auth lives in its own bucket so a credential wipe
// never touches the snapshot.
var (
	bucketAuth     = []byte("auth")
	bucketSnapshot = []byte("snapshot")
)

// Snapshot keys.
const (
	keyToken  = "token"
	keyUser   = "user"
	keyGroups = "groups"
	keyItems  = "items"
	keyAlarms = "alarms"
)

// Cache is the client's local store. It mirrors the two browser storage
// scopes: the bbolt file survives restarts ("remember me"), the session map
// lives only as long as the process.
type Cache struct {
	db *bolt.DB

	mu      sync.Mutex
	session map[string][]byte
}

// OpenCache opens (or creates) the cache file.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAuth, bucketSnapshot} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache buckets: %w", err)
	}
	return &Cache{db: db, session: make(map[string][]byte)}, nil
}

// Close closes the cache file. Session-scoped entries are gone either way.
func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveAuth stores the token and user. remember selects the persistent scope
// and wipes the session scope, and vice versa, so exactly one scope holds
// credentials at a time.
func (c *Cache) SaveAuth(token string, user *models.User, remember bool) error {
	userData, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	c.mu.Lock()
	if remember {
		delete(c.session, keyToken)
		delete(c.session, keyUser)
	} else {
		c.session[keyToken] = []byte(token)
		c.session[keyUser] = userData
	}
	c.mu.Unlock()

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuth)
		if remember {
			if err := b.Put([]byte(keyToken), []byte(token)); err != nil {
				return err
			}
			return b.Put([]byte(keyUser), userData)
		}
		if err := b.Delete([]byte(keyToken)); err != nil {
			return err
		}
		return b.Delete([]byte(keyUser))
	})
}

// LoadAuth returns the stored credentials, preferring the session scope.
func (c *Cache) LoadAuth() (token string, user *models.User, ok bool) {
	c.mu.Lock()
	tokenData, haveSession := c.session[keyToken]
	userData := c.session[keyUser]
	c.mu.Unlock()

	if !haveSession {
		_ = c.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketAuth)
			if v := b.Get([]byte(keyToken)); v != nil {
				tokenData = append([]byte(nil), v...)
			}
			if v := b.Get([]byte(keyUser)); v != nil {
				userData = append([]byte(nil), v...)
			}
			return nil
		})
	}
	if len(tokenData) == 0 {
		return "", nil, false
	}

	var u models.User
	if len(userData) > 0 {
		if err := json.Unmarshal(userData, &u); err != nil {
			return "", nil, false
		}
		user = &u
	}
	return string(tokenData), user, true
}

// ClearAuth wipes credentials from both scopes.
func (c *Cache) ClearAuth() error {
	c.mu.Lock()
	delete(c.session, keyToken)
	delete(c.session, keyUser)
	c.mu.Unlock()

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuth)
		if err := b.Delete([]byte(keyToken)); err != nil {
			return err
		}
		return b.Delete([]byte(keyUser))
	})
}

// SaveGroups replaces the cached group snapshot.
func (c *Cache) SaveGroups(groups []*models.Group) error {
	return c.putSnapshot(keyGroups, groups)
}

// LoadGroups returns the cached group snapshot, possibly stale, possibly nil.
func (c *Cache) LoadGroups() ([]*models.Group, error) {
	var groups []*models.Group
	err := c.getSnapshot(keyGroups, &groups)
	return groups, err
}

// SaveItems replaces the cached item snapshot.
func (c *Cache) SaveItems(items []*models.Item) error {
	return c.putSnapshot(keyItems, items)
}

// LoadItems returns the cached item snapshot.
func (c *Cache) LoadItems() ([]*models.Item, error) {
	var items []*models.Item
	err := c.getSnapshot(keyItems, &items)
	return items, err
}

// SaveAlarms replaces the cached alarm snapshot.
func (c *Cache) SaveAlarms(alarms []*models.Alarm) error {
	return c.putSnapshot(keyAlarms, alarms)
}

// LoadAlarms returns the cached alarm snapshot.
func (c *Cache) LoadAlarms() ([]*models.Alarm, error) {
	var alarms []*models.Alarm
	err := c.getSnapshot(keyAlarms, &alarms)
	return alarms, err
}

func (c *Cache) putSnapshot(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", key, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshot).Put([]byte(key), data)
	})
}

func (c *Cache) getSnapshot(key string, out any) error {
	return c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshot).Get([]byte(key))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, out)
	})
}
