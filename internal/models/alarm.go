// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package models

import "time"

// AlarmSeverity ranks alarm urgency.
type AlarmSeverity string

const (
	SeverityInfo     AlarmSeverity = "info"
	SeverityWarning  AlarmSeverity = "warning"
	SeverityCritical AlarmSeverity = "critical"
)

// AlarmState tracks the lifecycle of an active alarm.
type AlarmState string

const (
	AlarmActive       AlarmState = "active"
	AlarmAcknowledged AlarmState = "acknowledged"
	AlarmCleared      AlarmState = "cleared"
)

// Alarm is a condition raised by the evaluation engine or by communication
// failures. Active alarms live in the store until cleared; every transition
// is appended to the alarm log.
type Alarm struct {
	ID       string        `json:"id"`
	Source   string        `json:"source"` // memory or item ID that raised it
	Message  string        `json:"message"`
	Severity AlarmSeverity `json:"severity"`
	State    AlarmState    `json:"state"`

	RaisedAt time.Time `json:"raised_at"`
	// AckedAt and AckedBy are set when an operator acknowledges the alarm.
	AckedAt   *time.Time `json:"acked_at,omitempty"`
	AckedBy   string     `json:"acked_by,omitempty"`
	ClearedAt *time.Time `json:"cleared_at,omitempty"`
}

// AlarmLogEntry is one row of the append-only alarm history.
type AlarmLogEntry struct {
	ID        string        `json:"id"`
	AlarmID   string        `json:"alarm_id"`
	Source    string        `json:"source"`
	Message   string        `json:"message"`
	Severity  AlarmSeverity `json:"severity"`
	State     AlarmState    `json:"state"`
	Timestamp time.Time     `json:"timestamp"`
	Username  string        `json:"username,omitempty"`
}
