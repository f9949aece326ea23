// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package engine

import (
	"time"

	"github.com/tmachen/gridwatch/internal/models"
)

// pidEvaluator is a positional PID controller with clamped output and
// conditional integration for anti-windup: the integral only accumulates
// while the output is not saturated in the direction of the error.
type pidEvaluator struct {
	cfg *models.PIDConfig

	integral  float64
	lastErr   float64
	lastEval  time.Time
	primed    bool
}

func newPIDEvaluator(cfg *models.PIDConfig) *pidEvaluator {
	return &pidEvaluator{cfg: cfg}
}

func (e *pidEvaluator) Evaluate(now time.Time, r PointReader) (Result, error) {
	item, good, err := readGoodItem(r, e.cfg.ProcessItem)
	if err != nil {
		return Result{}, err
	}
	if !good {
		return Result{}, nil
	}

	errVal := e.cfg.Setpoint - item.Value
	if e.cfg.Reverse {
		errVal = -errVal
	}

	if !e.primed {
		// First sample: no dt yet, output P-only
		e.primed = true
		e.lastErr = errVal
		e.lastEval = now
		out := clamp(e.cfg.Kp*errVal, e.cfg.OutputMin, e.cfg.OutputMax)
		return Result{Value: out, HasValue: true}, nil
	}

	dt := now.Sub(e.lastEval).Seconds()
	if dt <= 0 {
		dt = 1e-3
	}

	derivative := (errVal - e.lastErr) / dt
	candidate := e.integral + errVal*dt
	out := e.cfg.Kp*errVal + e.cfg.Ki*candidate + e.cfg.Kd*derivative

	// Anti-windup: only commit the integral step if it does not push the
	// output further past a saturated bound
	if out > e.cfg.OutputMax {
		if e.cfg.Ki*errVal < 0 {
			e.integral = candidate
		}
		out = e.cfg.OutputMax
	} else if out < e.cfg.OutputMin {
		if e.cfg.Ki*errVal > 0 {
			e.integral = candidate
		}
		out = e.cfg.OutputMin
	} else {
		e.integral = candidate
	}

	e.lastErr = errVal
	e.lastEval = now
	return Result{Value: out, HasValue: true}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
