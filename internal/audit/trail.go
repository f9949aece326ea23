// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package audit records configuration changes and alarm operations in an
// append-only trail backed by its own BadgerDB, kept apart from the main
// store so retention compaction never contends with configuration writes.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tmachen/gridwatch/internal/logging"
)

// Event is one audit trail row.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Actor is the username that performed the operation. "system" for
	// engine- and seed-driven changes.
	Actor string `json:"actor"`

	// Action is one of create, update, delete, login, ack.
	Action string `json:"action"`

	// Resource is the entity family (memory, item, user, alarm, ...).
	Resource string `json:"resource"`

	// ResourceID identifies the affected record.
	ResourceID string `json:"resource_id,omitempty"`

	// Details carries a short human-readable summary.
	Details string `json:"details,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
}

const eventKeyPrefix = "audit:"

// eventTimeLayout is fixed-width so keys sort lexicographically in time
// order.
const eventTimeLayout = "2006-01-02T15:04:05.000000000"

// Trail is the append-only audit store.
type Trail struct {
	db        *badger.DB
	retention time.Duration
}

// Options controls how the trail opens its database.
type Options struct {
	Path      string
	InMemory  bool
	Retention time.Duration
}

// Open opens (or creates) the audit database.
func Open(opts Options) (*Trail, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).
		WithInMemory(opts.InMemory).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open audit db at %s: %w", opts.Path, err)
	}
	return &Trail{db: db, retention: opts.Retention}, nil
}

// Close flushes and closes the underlying database.
func (t *Trail) Close() error {
	return t.db.Close()
}

// Record appends one event. ID and Timestamp are filled in when empty.
func (t *Trail) Record(event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	key := eventKeyPrefix + event.Timestamp.UTC().Format(eventTimeLayout) + ":" + event.ID
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// List returns events in time order, newest last, capped at limit (0 means
// no cap).
func (t *Trail) List(limit int) ([]*Event, error) {
	var events []*Event

	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(eventKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var event Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err != nil {
				return err
			}
			events = append(events, &event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Purge deletes events older than cutoff, returning how many were removed.
func (t *Trail) Purge(cutoff time.Time) (int, error) {
	var stale [][]byte

	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(eventKeyPrefix)
		boundary := []byte(eventKeyPrefix + cutoff.UTC().Format(eventTimeLayout))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(boundary) {
				break
			}
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(stale) == 0 {
		return 0, nil
	}
	err = t.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

// retentionSweepInterval is how often the retention loop runs.
const retentionSweepInterval = time.Hour

// Serve runs the retention loop until ctx is canceled. Implements
// suture.Service. A zero retention disables purging.
func (t *Trail) Serve(ctx context.Context) error {
	if t.retention <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := t.Purge(time.Now().Add(-t.retention))
			if err != nil {
				logging.Error().Err(err).Msg("Audit retention sweep failed")
				continue
			}
			if removed > 0 {
				logging.Info().Int("removed", removed).Msg("Audit retention sweep completed")
			}
		}
	}
}
