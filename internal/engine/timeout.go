// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package engine

import (
	"fmt"
	"time"

	"github.com/tmachen/gridwatch/internal/models"
)

// timeoutEvaluator watches an item's update timestamp and drives a
// communication-loss alarm. It produces no output value.
type timeoutEvaluator struct {
	cfg     *models.TimeoutConfig
	name    string
	timeout time.Duration
}

func newTimeoutEvaluator(cfg *models.TimeoutConfig, name string) *timeoutEvaluator {
	return &timeoutEvaluator{
		cfg:     cfg,
		name:    name,
		timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
	}
}

func (e *timeoutEvaluator) Evaluate(now time.Time, r PointReader) (Result, error) {
	item, err := r.ReadItem(e.cfg.InputItem)
	if err != nil {
		return Result{}, fmt.Errorf("read item %s: %w", e.cfg.InputItem, err)
	}

	severity := e.cfg.AlarmSeverity
	if severity == "" {
		severity = models.SeverityWarning
	}

	stale := item.UpdatedAt.IsZero() || now.Sub(item.UpdatedAt) > e.timeout
	return Result{
		Alarm: &AlarmDirective{
			Raise: stale,
			Message: fmt.Sprintf("%s: item %q silent for more than %s",
				e.name, item.Name, e.timeout),
			Severity: severity,
		},
	}, nil
}
