// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package engine evaluates memory computation blocks on a fixed tick,
// writing results to global variables and raising alarms. Each enabled
// memory owns a stateful evaluator that is rebuilt when its configuration
// changes.
package engine

import (
	"fmt"
	"time"

	"github.com/tmachen/gridwatch/internal/models"
)

// PointReader supplies current item state to evaluators.
type PointReader interface {
	ReadItem(id string) (*models.Item, error)
}

// AlarmDirective asks the engine to raise or clear the alarm owned by this
// memory. A nil directive in a Result leaves alarm state untouched.
type AlarmDirective struct {
	Raise    bool
	Message  string
	Severity models.AlarmSeverity
}

// Result is the outcome of one evaluation.
type Result struct {
	// Value is written to the memory's output variable when HasValue is set.
	Value    float64
	HasValue bool
	Alarm    *AlarmDirective
}

// Evaluator computes one memory's result. Evaluators keep per-memory state
// (sample windows, PID integrals) and are never shared.
type Evaluator interface {
	Evaluate(now time.Time, r PointReader) (Result, error)
}

// NewEvaluator builds the evaluator for a memory. The envelope must already
// be consistent (store-level validation guarantees the config block exists).
func NewEvaluator(m *models.Memory) (Evaluator, error) {
	switch m.Type {
	case models.MemoryAverage:
		return newAverageEvaluator(m.Average), nil
	case models.MemoryComparison:
		return newComparisonEvaluator(m.Comparison, m.Name), nil
	case models.MemoryDeadband:
		return newDeadbandEvaluator(m.Deadband), nil
	case models.MemoryFormula:
		return newFormulaEvaluator(m.Formula)
	case models.MemoryIf:
		return newIfEvaluator(m.If), nil
	case models.MemoryPID:
		return newPIDEvaluator(m.PID), nil
	case models.MemorySchedule:
		return newScheduleEvaluator(m.Schedule)
	case models.MemoryStatistical:
		return newStatisticalEvaluator(m.Statistical)
	case models.MemoryTimeout:
		return newTimeoutEvaluator(m.Timeout, m.Name), nil
	default:
		return nil, fmt.Errorf("no evaluator for memory type %q", m.Type)
	}
}

// readGoodItem loads an item and reports whether its quality allows use.
func readGoodItem(r PointReader, id string) (*models.Item, bool, error) {
	item, err := r.ReadItem(id)
	if err != nil {
		return nil, false, fmt.Errorf("read item %s: %w", id, err)
	}
	return item, item.Quality, nil
}
