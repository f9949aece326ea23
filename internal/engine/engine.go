// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/metrics"
	"github.com/tmachen/gridwatch/internal/models"
	"github.com/tmachen/gridwatch/internal/store"
)

// Repository is the store surface the engine needs.
type Repository interface {
	ListEnabledMemories() ([]*models.Memory, error)
	GetItem(id string) (*models.Item, error)
	SetGlobalVariableValue(name string, value float64) error
	RaiseAlarm(source, message string, severity models.AlarmSeverity) (*models.Alarm, bool, error)
	ClearAlarmBySource(source string) (*models.Alarm, error)
	CountAlarms() (int, error)
}

// Notifier pushes change triggers to connected dashboards.
type Notifier interface {
	BroadcastAlarmCountChanged(count int)
	BroadcastGlobalVariablesChanged(names []string)
}

// reloadInterval bounds how stale the engine's view of memory configuration
// can get without an explicit Invalidate.
const reloadInterval = 5 * time.Second

// memoryEntry is the engine's live state for one enabled memory.
type memoryEntry struct {
	memory    *models.Memory
	evaluator Evaluator
	interval  time.Duration
	nextDue   time.Time
	// broken marks memories whose evaluator failed to build (bad formula);
	// they are skipped until their config changes.
	broken bool
}

// Engine drives all enabled memories off one base tick.
type Engine struct {
	repo     Repository
	notifier Notifier
	tick     time.Duration

	entries    map[string]*memoryEntry
	lastReload time.Time
	invalidate chan struct{}
}

// New builds an engine. tick is the base clock; memory intervals are
// effectively rounded up to a multiple of it.
func New(repo Repository, notifier Notifier, tick time.Duration) *Engine {
	return &Engine{
		repo:       repo,
		notifier:   notifier,
		tick:       tick,
		entries:    make(map[string]*memoryEntry),
		invalidate: make(chan struct{}, 1),
	}
}

// Invalidate asks the engine to reload memory configuration on its next
// tick. Called by the API layer after memory CRUD. Never blocks.
func (e *Engine) Invalidate() {
	select {
	case e.invalidate <- struct{}{}:
	default:
	}
}

// Serve runs the evaluation loop until ctx is canceled. Implements
// suture.Service.
func (e *Engine) Serve(ctx context.Context) error {
	logging.Info().Dur("tick", e.tick).Msg("Evaluation engine started")

	if err := e.reload(time.Now()); err != nil {
		logging.Error().Err(err).Msg("Initial memory load failed")
	}

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Evaluation engine stopped")
			return ctx.Err()
		case <-e.invalidate:
			if err := e.reload(time.Now()); err != nil {
				logging.Error().Err(err).Msg("Memory reload failed")
			}
		case now := <-ticker.C:
			e.runTick(now)
		}
	}
}

// runTick evaluates every due memory once.
func (e *Engine) runTick(now time.Time) {
	started := time.Now()
	defer func() {
		metrics.EngineTickDuration.Observe(time.Since(started).Seconds())
	}()

	if now.Sub(e.lastReload) >= reloadInterval {
		if err := e.reload(now); err != nil {
			logging.Error().Err(err).Msg("Memory reload failed")
		}
	}

	var changedVars []string
	alarmsMoved := false

	for id, entry := range e.entries {
		if entry.broken || now.Before(entry.nextDue) {
			continue
		}
		entry.nextDue = now.Add(entry.interval)

		memType := string(entry.memory.Type)
		metrics.EngineEvaluationsTotal.WithLabelValues(memType).Inc()

		result, err := entry.evaluator.Evaluate(now, e)
		if err != nil {
			metrics.EngineEvaluationErrors.WithLabelValues(memType).Inc()
			logging.Error().Err(err).
				Str("memory_id", id).
				Str("type", memType).
				Msg("Memory evaluation failed")
			continue
		}

		if result.HasValue && entry.memory.OutputVariable != "" {
			if err := e.repo.SetGlobalVariableValue(entry.memory.OutputVariable, result.Value); err != nil {
				logging.Error().Err(err).
					Str("variable", entry.memory.OutputVariable).
					Msg("Failed to write memory output")
			} else {
				changedVars = append(changedVars, entry.memory.OutputVariable)
			}
		}

		if result.Alarm != nil {
			if e.applyAlarm(id, result.Alarm) {
				alarmsMoved = true
			}
		}
	}

	if len(changedVars) > 0 && e.notifier != nil {
		e.notifier.BroadcastGlobalVariablesChanged(changedVars)
	}
	if alarmsMoved && e.notifier != nil {
		count, err := e.repo.CountAlarms()
		if err != nil {
			logging.Error().Err(err).Msg("Failed to count alarms")
			return
		}
		metrics.AlarmsActive.Set(float64(count))
		e.notifier.BroadcastAlarmCountChanged(count)
	}
}

// applyAlarm raises or clears the alarm owned by memory id. Returns whether
// the active alarm set changed.
func (e *Engine) applyAlarm(source string, directive *AlarmDirective) bool {
	if directive.Raise {
		_, raised, err := e.repo.RaiseAlarm(source, directive.Message, directive.Severity)
		if err != nil {
			logging.Error().Err(err).Str("source", source).Msg("Failed to raise alarm")
			return false
		}
		if raised {
			metrics.AlarmsRaisedTotal.WithLabelValues(string(directive.Severity)).Inc()
		}
		return raised
	}

	_, err := e.repo.ClearAlarmBySource(source)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		logging.Error().Err(err).Str("source", source).Msg("Failed to clear alarm")
		return false
	}
	return true
}

// reload reconciles the entry set with the store: new memories get
// evaluators, changed memories get fresh ones (dropping accumulated state),
// removed or disabled memories clear their alarms and leave the set.
func (e *Engine) reload(now time.Time) error {
	memories, err := e.repo.ListEnabledMemories()
	if err != nil {
		return err
	}
	e.lastReload = now

	seen := make(map[string]bool, len(memories))
	for _, m := range memories {
		seen[m.ID] = true

		existing, ok := e.entries[m.ID]
		if ok && existing.memory.UpdatedAt.Equal(m.UpdatedAt) {
			continue
		}

		entry := &memoryEntry{
			memory:   m,
			interval: max(time.Duration(m.Interval)*time.Millisecond, e.tick),
			nextDue:  now,
		}
		evaluator, err := NewEvaluator(m)
		if err != nil {
			entry.broken = true
			logging.Error().Err(err).
				Str("memory_id", m.ID).
				Str("name", m.Name).
				Msg("Memory configuration rejected, skipping until changed")
		} else {
			entry.evaluator = evaluator
		}
		e.entries[m.ID] = entry
	}

	for id, entry := range e.entries {
		if seen[id] {
			continue
		}
		delete(e.entries, id)
		// A disabled memory must not leave a stuck alarm behind
		if _, err := e.repo.ClearAlarmBySource(id); err != nil && !errors.Is(err, store.ErrNotFound) {
			logging.Error().Err(err).Str("memory_id", id).Msg("Failed to clear alarm for removed memory")
		}
		logging.Info().Str("memory_id", id).Str("name", entry.memory.Name).
			Msg("Memory removed from engine")
	}
	return nil
}

// ReadItem implements PointReader against the repository.
func (e *Engine) ReadItem(id string) (*models.Item, error) {
	return e.repo.GetItem(id)
}
