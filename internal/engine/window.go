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

// sampleWindow is a fixed-capacity ring of the most recent samples.
type sampleWindow struct {
	samples []float64
	next    int
	full    bool
}

func newSampleWindow(size int) *sampleWindow {
	return &sampleWindow{samples: make([]float64, size)}
}

func (w *sampleWindow) push(v float64) {
	w.samples[w.next] = v
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// values returns the live samples, oldest first not guaranteed.
func (w *sampleWindow) values() []float64 {
	if w.full {
		return w.samples
	}
	return w.samples[:w.next]
}

func (w *sampleWindow) count() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

// averageEvaluator computes a rolling mean over the sample window.
type averageEvaluator struct {
	cfg    *models.AverageConfig
	window *sampleWindow
}

func newAverageEvaluator(cfg *models.AverageConfig) *averageEvaluator {
	return &averageEvaluator{cfg: cfg, window: newSampleWindow(cfg.WindowSize)}
}

func (e *averageEvaluator) Evaluate(_ time.Time, r PointReader) (Result, error) {
	item, good, err := readGoodItem(r, e.cfg.InputItem)
	if err != nil {
		return Result{}, err
	}
	if !good {
		return Result{}, nil
	}

	e.window.push(item.Value)
	sum := 0.0
	for _, v := range e.window.values() {
		sum += v
	}
	return Result{Value: sum / float64(e.window.count()), HasValue: true}, nil
}

// statisticalEvaluator computes an aggregate over the sample window.
type statisticalEvaluator struct {
	cfg    *models.StatisticalConfig
	window *sampleWindow
}

func newStatisticalEvaluator(cfg *models.StatisticalConfig) (*statisticalEvaluator, error) {
	switch cfg.Function {
	case models.StatMin, models.StatMax, models.StatMean, models.StatStddev, models.StatSum:
	default:
		return nil, fmt.Errorf("unknown statistical function %q", cfg.Function)
	}
	return &statisticalEvaluator{cfg: cfg, window: newSampleWindow(cfg.WindowSize)}, nil
}

func (e *statisticalEvaluator) Evaluate(_ time.Time, r PointReader) (Result, error) {
	item, good, err := readGoodItem(r, e.cfg.InputItem)
	if err != nil {
		return Result{}, err
	}
	if !good {
		return Result{}, nil
	}

	e.window.push(item.Value)
	values := e.window.values()
	return Result{Value: aggregate(e.cfg.Function, values), HasValue: true}, nil
}

func aggregate(fn models.StatisticalFunction, values []float64) float64 {
	switch fn {
	case models.StatMin:
		m := values[0]
		for _, v := range values[1:] {
			m = math.Min(m, v)
		}
		return m
	case models.StatMax:
		m := values[0]
		for _, v := range values[1:] {
			m = math.Max(m, v)
		}
		return m
	case models.StatSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum
	case models.StatMean:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case models.StatStddev:
		if len(values) < 2 {
			return 0
		}
		mean := aggregate(models.StatMean, values)
		ss := 0.0
		for _, v := range values {
			d := v - mean
			ss += d * d
		}
		// Sample standard deviation
		return math.Sqrt(ss / float64(len(values)-1))
	}
	return 0
}
