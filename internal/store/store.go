// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package store persists all configuration and runtime state in BadgerDB.
// Each entity family lives under its own key prefix; secondary indexes are
// separate keys written in the same transaction as the primary record.
package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tmachen/gridwatch/internal/logging"
)

// Key prefixes for BadgerDB storage.
const (
	userKeyPrefix     = "user:"
	usernameKeyPrefix = "username:"
	roleKeyPrefix     = "role:"

	groupKeyPrefix     = "group:"
	itemKeyPrefix      = "item:"
	itemGroupKeyPrefix = "item_group:"
	gvarKeyPrefix      = "gvar:"
	gvarNameKeyPrefix  = "gvar_name:"

	memoryKeyPrefix = "memory:"

	mbControllerKeyPrefix = "mbctl:"
	mbMappingKeyPrefix    = "mbmap:"
	mbGatewayKeyPrefix    = "mbgw:"

	alarmKeyPrefix    = "alarm:"
	alarmLogKeyPrefix = "alarmlog:"
)

// Sentinel errors returned by repositories.
var (
	ErrNotFound = errors.New("record not found")
)

// ConflictError reports a uniqueness violation attributable to a single
// field, so the API layer can return it as a CONFLICT with field details.
type ConflictError struct {
	Field     string
	ErrorCode string
	Message   string
}

func (e *ConflictError) Error() string { return e.Message }

// IsConflict reports whether err is a *ConflictError and returns it.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Store wraps a BadgerDB instance and exposes the typed repositories.
type Store struct {
	db *badger.DB
}

// Options controls how the store opens its database.
type Options struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string
	// InMemory runs Badger without disk persistence (tests, CI).
	InMemory bool
}

// Open opens (or creates) the database and returns a Store.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).
		WithInMemory(opts.InMemory).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", opts.Path, err)
	}

	logging.Info().Str("path", opts.Path).Bool("in_memory", opts.InMemory).
		Msg("Store opened")

	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store for tests.
func OpenInMemory() (*Store, error) {
	return Open(Options{InMemory: true})
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs one value-log garbage collection cycle. Callers typically run
// this on a ticker; badger.ErrNoRewrite is normal and swallowed.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// getJSON loads the value at key into out, mapping missing keys to
// ErrNotFound.
func (s *Store) getJSON(key string, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

// setJSON marshals v and writes it at key in its own transaction.
func (s *Store) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// txnSetJSON marshals v and writes it at key inside an existing transaction.
func txnSetJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

// txnExists reports whether key exists inside an existing transaction.
func txnExists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// listPrefix iterates every value under prefix, unmarshalling each into a
// fresh T and appending to the result.
func listPrefix[T any](s *Store, prefix string) ([]*T, error) {
	var results []*T

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			var record T
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("unmarshal under %s: %w", prefix, err)
			}
			results = append(results, &record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// deleteKey removes key, treating already-deleted as success.
func (s *Store) deleteKey(keys ...string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}
