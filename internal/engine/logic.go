// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/tmachen/gridwatch/internal/models"
)

// comparisonEvaluator emits 1/0 for a relational test, optionally driving an
// alarm while the condition holds.
type comparisonEvaluator struct {
	cfg  *models.ComparisonConfig
	name string
}

func newComparisonEvaluator(cfg *models.ComparisonConfig, name string) *comparisonEvaluator {
	return &comparisonEvaluator{cfg: cfg, name: name}
}

func (e *comparisonEvaluator) Evaluate(_ time.Time, r PointReader) (Result, error) {
	item, good, err := readGoodItem(r, e.cfg.InputItem)
	if err != nil {
		return Result{}, err
	}
	if !good {
		return Result{}, nil
	}

	matched, err := compare(e.cfg.Operator, item.Value, e.cfg.Threshold)
	if err != nil {
		return Result{}, err
	}

	result := Result{HasValue: true}
	if matched {
		result.Value = 1
	}

	if e.cfg.RaiseAlarm {
		severity := e.cfg.AlarmSeverity
		if severity == "" {
			severity = models.SeverityWarning
		}
		result.Alarm = &AlarmDirective{
			Raise: matched,
			Message: fmt.Sprintf("%s: input %g %s threshold %g",
				e.name, item.Value, e.cfg.Operator, e.cfg.Threshold),
			Severity: severity,
		}
	}
	return result, nil
}

func compare(op models.ComparisonOperator, value, threshold float64) (bool, error) {
	switch op {
	case models.CompareGT:
		return value > threshold, nil
	case models.CompareGE:
		return value >= threshold, nil
	case models.CompareLT:
		return value < threshold, nil
	case models.CompareLE:
		return value <= threshold, nil
	case models.CompareEQ:
		return value == threshold, nil
	case models.CompareNE:
		return value != threshold, nil
	default:
		return false, fmt.Errorf("unknown comparison operator %q", op)
	}
}

// deadbandEvaluator re-emits its last output until the input moves more than
// the configured band, suppressing sensor jitter.
type deadbandEvaluator struct {
	cfg     *models.DeadbandConfig
	last    float64
	primed  bool
}

func newDeadbandEvaluator(cfg *models.DeadbandConfig) *deadbandEvaluator {
	return &deadbandEvaluator{cfg: cfg}
}

func (e *deadbandEvaluator) Evaluate(_ time.Time, r PointReader) (Result, error) {
	item, good, err := readGoodItem(r, e.cfg.InputItem)
	if err != nil {
		return Result{}, err
	}
	if !good {
		return Result{}, nil
	}

	if !e.primed || math.Abs(item.Value-e.last) > e.cfg.Band {
		e.last = item.Value
		e.primed = true
	}
	return Result{Value: e.last, HasValue: true}, nil
}

// ifEvaluator selects between two constants on a nonzero condition.
type ifEvaluator struct {
	cfg *models.IfConfig
}

func newIfEvaluator(cfg *models.IfConfig) *ifEvaluator {
	return &ifEvaluator{cfg: cfg}
}

func (e *ifEvaluator) Evaluate(_ time.Time, r PointReader) (Result, error) {
	item, good, err := readGoodItem(r, e.cfg.ConditionItem)
	if err != nil {
		return Result{}, err
	}
	if !good {
		return Result{}, nil
	}

	if item.Value != 0 {
		return Result{Value: e.cfg.ThenValue, HasValue: true}, nil
	}
	return Result{Value: e.cfg.ElseValue, HasValue: true}, nil
}
