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

// scheduleEvaluator emits OnValue inside the configured daily window on the
// configured weekdays, OffValue otherwise. Windows with start > end span
// midnight.
type scheduleEvaluator struct {
	cfg      *models.ScheduleConfig
	start    int // minutes since midnight
	end      int
	weekdays map[time.Weekday]bool
}

func newScheduleEvaluator(cfg *models.ScheduleConfig) (*scheduleEvaluator, error) {
	start, err := parseClockMinutes(cfg.StartTime)
	if err != nil {
		return nil, fmt.Errorf("start_time: %w", err)
	}
	end, err := parseClockMinutes(cfg.EndTime)
	if err != nil {
		return nil, fmt.Errorf("end_time: %w", err)
	}

	weekdays := make(map[time.Weekday]bool, len(cfg.Weekdays))
	for _, d := range cfg.Weekdays {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("weekday %d out of range", d)
		}
		weekdays[time.Weekday(d)] = true
	}

	return &scheduleEvaluator{cfg: cfg, start: start, end: end, weekdays: weekdays}, nil
}

func parseClockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (e *scheduleEvaluator) Evaluate(now time.Time, _ PointReader) (Result, error) {
	local := now.Local()
	minutes := local.Hour()*60 + local.Minute()

	active := e.weekdays[local.Weekday()] && e.inWindow(minutes)
	if active {
		return Result{Value: e.cfg.OnValue, HasValue: true}, nil
	}
	return Result{Value: e.cfg.OffValue, HasValue: true}, nil
}

func (e *scheduleEvaluator) inWindow(minutes int) bool {
	if e.start <= e.end {
		return minutes >= e.start && minutes < e.end
	}
	// Spans midnight
	return minutes >= e.start || minutes < e.end
}
