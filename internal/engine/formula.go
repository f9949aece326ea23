// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package engine

import (
	"fmt"
	"time"

	"github.com/Knetic/govaluate"

	"github.com/tmachen/gridwatch/internal/models"
)

// formulaEvaluator evaluates a govaluate expression over named item inputs.
// The expression is compiled once at construction; a syntax error disables
// the memory instead of failing every tick.
type formulaEvaluator struct {
	cfg  *models.FormulaConfig
	expr *govaluate.EvaluableExpression
}

func newFormulaEvaluator(cfg *models.FormulaConfig) (*formulaEvaluator, error) {
	expr, err := govaluate.NewEvaluableExpression(cfg.Expression)
	if err != nil {
		return nil, fmt.Errorf("compile formula %q: %w", cfg.Expression, err)
	}

	// Every variable the expression references must be bound to an item
	bound := make(map[string]bool, len(cfg.Inputs))
	for name := range cfg.Inputs {
		bound[name] = true
	}
	for _, v := range expr.Vars() {
		if !bound[v] {
			return nil, fmt.Errorf("formula references unbound variable %q", v)
		}
	}

	return &formulaEvaluator{cfg: cfg, expr: expr}, nil
}

func (e *formulaEvaluator) Evaluate(_ time.Time, r PointReader) (Result, error) {
	params := make(map[string]any, len(e.cfg.Inputs))
	for name, itemID := range e.cfg.Inputs {
		item, good, err := readGoodItem(r, itemID)
		if err != nil {
			return Result{}, err
		}
		if !good {
			// One bad input invalidates the whole expression
			return Result{}, nil
		}
		params[name] = item.Value
	}

	out, err := e.expr.Evaluate(params)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate formula: %w", err)
	}

	value, ok := out.(float64)
	if !ok {
		// Boolean expressions map to 0/1
		if b, isBool := out.(bool); isBool {
			if b {
				value = 1
			}
			return Result{Value: value, HasValue: true}, nil
		}
		return Result{}, fmt.Errorf("formula produced non-numeric result %T", out)
	}
	return Result{Value: value, HasValue: true}, nil
}
