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
	"github.com/google/uuid"

	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/models"
)

// alarmSrcKeyPrefix indexes the active alarm per source, so raising is
// idempotent while a source's alarm is still uncleared.
const alarmSrcKeyPrefix = "alarm_src:"

// alarmLogTimeLayout is fixed-width so log keys sort lexicographically in
// time order.
const alarmLogTimeLayout = "2006-01-02T15:04:05.000000000"

// RaiseAlarm creates an active alarm for source unless one is already
// uncleared. Returns the alarm and whether it was newly raised.
func (s *Store) RaiseAlarm(source, message string, severity models.AlarmSeverity) (*models.Alarm, bool, error) {
	existing, err := s.GetActiveAlarmBySource(source)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	alarm := &models.Alarm{
		ID:       uuid.NewString(),
		Source:   source,
		Message:  message,
		Severity: severity,
		State:    models.AlarmActive,
		RaisedAt: time.Now().UTC(),
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txnSetJSON(txn, alarmKeyPrefix+alarm.ID, alarm); err != nil {
			return err
		}
		return txn.Set([]byte(alarmSrcKeyPrefix+source), []byte(alarm.ID))
	})
	if err != nil {
		return nil, false, err
	}

	if err := s.appendAlarmLog(alarm, ""); err != nil {
		logging.Error().Err(err).Str("alarm_id", alarm.ID).Msg("Failed to append alarm log")
	}
	return alarm, true, nil
}

// GetAlarm returns the alarm with the given ID.
func (s *Store) GetAlarm(id string) (*models.Alarm, error) {
	var alarm models.Alarm
	if err := s.getJSON(alarmKeyPrefix+id, &alarm); err != nil {
		return nil, err
	}
	return &alarm, nil
}

// GetActiveAlarmBySource returns the uncleared alarm raised by source, or
// ErrNotFound.
func (s *Store) GetActiveAlarmBySource(source string) (*models.Alarm, error) {
	var alarmID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(alarmSrcKeyPrefix + source))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			alarmID = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetAlarm(alarmID)
}

// ListAlarms returns every uncleared alarm.
func (s *Store) ListAlarms() ([]*models.Alarm, error) {
	all, err := listPrefix[models.Alarm](s, alarmKeyPrefix)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, a := range all {
		if a.State != models.AlarmCleared {
			active = append(active, a)
		}
	}
	return active, nil
}

// CountAlarms returns the number of uncleared alarms, the value pushed to
// clients on alarm_count_changed.
func (s *Store) CountAlarms() (int, error) {
	alarms, err := s.ListAlarms()
	if err != nil {
		return 0, err
	}
	return len(alarms), nil
}

// AcknowledgeAlarm marks an active alarm as acknowledged by username.
// Acknowledging an already-acknowledged or cleared alarm is a conflict.
func (s *Store) AcknowledgeAlarm(id, username string) (*models.Alarm, error) {
	alarm, err := s.GetAlarm(id)
	if err != nil {
		return nil, err
	}
	if alarm.State != models.AlarmActive {
		return nil, &ConflictError{
			Field:     "state",
			ErrorCode: "NOT_ACTIVE",
			Message:   fmt.Sprintf("alarm is %s, only active alarms can be acknowledged", alarm.State),
		}
	}

	now := time.Now().UTC()
	alarm.State = models.AlarmAcknowledged
	alarm.AckedAt = &now
	alarm.AckedBy = username
	if err := s.setJSON(alarmKeyPrefix+id, alarm); err != nil {
		return nil, err
	}

	if err := s.appendAlarmLog(alarm, username); err != nil {
		logging.Error().Err(err).Str("alarm_id", id).Msg("Failed to append alarm log")
	}
	return alarm, nil
}

// ClearAlarm transitions an alarm to cleared and frees its source slot so
// the condition can raise again. The cleared record is removed from the
// active set but survives in the alarm log.
func (s *Store) ClearAlarm(id string) (*models.Alarm, error) {
	alarm, err := s.GetAlarm(id)
	if err != nil {
		return nil, err
	}
	if alarm.State == models.AlarmCleared {
		return alarm, nil
	}

	now := time.Now().UTC()
	alarm.State = models.AlarmCleared
	alarm.ClearedAt = &now

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(alarmKeyPrefix + id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Delete([]byte(alarmSrcKeyPrefix + alarm.Source)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.appendAlarmLog(alarm, ""); err != nil {
		logging.Error().Err(err).Str("alarm_id", id).Msg("Failed to append alarm log")
	}
	return alarm, nil
}

// ClearAlarmBySource clears the active alarm of source, if any.
func (s *Store) ClearAlarmBySource(source string) (*models.Alarm, error) {
	alarm, err := s.GetActiveAlarmBySource(source)
	if err != nil {
		return nil, err
	}
	return s.ClearAlarm(alarm.ID)
}

// appendAlarmLog writes one history row. Keys embed the timestamp so prefix
// iteration returns rows in time order.
func (s *Store) appendAlarmLog(alarm *models.Alarm, username string) error {
	entry := &models.AlarmLogEntry{
		ID:        uuid.NewString(),
		AlarmID:   alarm.ID,
		Source:    alarm.Source,
		Message:   alarm.Message,
		Severity:  alarm.Severity,
		State:     alarm.State,
		Timestamp: time.Now().UTC(),
		Username:  username,
	}
	key := alarmLogKeyPrefix + entry.Timestamp.Format(alarmLogTimeLayout) + ":" + entry.ID
	return s.setJSON(key, entry)
}

// ListAlarmLog returns history rows in time order, newest last, capped at
// limit (0 means no cap).
func (s *Store) ListAlarmLog(limit int) ([]*models.AlarmLogEntry, error) {
	entries, err := listPrefix[models.AlarmLogEntry](s, alarmLogKeyPrefix)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// PurgeAlarmLog deletes history rows older than cutoff. Returns the number
// of rows removed. Key layout makes this a prefix scan that stops at the
// first retained row.
func (s *Store) PurgeAlarmLog(cutoff time.Time) (int, error) {
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(alarmLogKeyPrefix)
		boundary := []byte(alarmLogKeyPrefix + cutoff.UTC().Format(alarmLogTimeLayout))
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
	err = s.db.Update(func(txn *badger.Txn) error {
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
