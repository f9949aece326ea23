// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package models

import "time"

// MemoryType identifies the computation a memory block performs.
type MemoryType string

const (
	MemoryAverage     MemoryType = "average"
	MemoryComparison  MemoryType = "comparison"
	MemoryDeadband    MemoryType = "deadband"
	MemoryFormula     MemoryType = "formula"
	MemoryIf          MemoryType = "if"
	MemoryPID         MemoryType = "pid"
	MemorySchedule    MemoryType = "schedule"
	MemoryStatistical MemoryType = "statistical"
	MemoryTimeout     MemoryType = "timeout"
)

// MemoryTypes lists every supported memory type in stable order.
var MemoryTypes = []MemoryType{
	MemoryAverage, MemoryComparison, MemoryDeadband, MemoryFormula,
	MemoryIf, MemoryPID, MemorySchedule, MemoryStatistical, MemoryTimeout,
}

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	for _, known := range MemoryTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Memory is the common envelope for all computation blocks. Exactly one of
// the typed config fields is set, matching Type. The engine evaluates enabled
// memories every Interval and writes the result to the named output.
type Memory struct {
	ID          string     `json:"id"`
	Name        string     `json:"name" validate:"required,max=128"`
	Description string     `json:"description,omitempty" validate:"max=512"`
	Type        MemoryType `json:"type" validate:"required"`
	Enabled     bool       `json:"enabled"`

	// Interval is the evaluation period in milliseconds. The engine clamps
	// values below its tick resolution up to one tick.
	Interval int `json:"interval_ms" validate:"required,gte=100,lte=3600000"`

	// OutputVariable names the global variable receiving the result.
	// Empty for memories whose only effect is raising alarms (timeout).
	OutputVariable string `json:"output_variable,omitempty" validate:"max=128"`

	Average     *AverageConfig     `json:"average,omitempty"`
	Comparison  *ComparisonConfig  `json:"comparison,omitempty"`
	Deadband    *DeadbandConfig    `json:"deadband,omitempty"`
	Formula     *FormulaConfig     `json:"formula,omitempty"`
	If          *IfConfig          `json:"if,omitempty"`
	PID         *PIDConfig         `json:"pid,omitempty"`
	Schedule    *ScheduleConfig    `json:"schedule,omitempty"`
	Statistical *StatisticalConfig `json:"statistical,omitempty"`
	Timeout     *TimeoutConfig     `json:"timeout,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AverageConfig computes a rolling mean of the input item over WindowSize
// most recent samples.
type AverageConfig struct {
	InputItem  string `json:"input_item" validate:"required"`
	WindowSize int    `json:"window_size" validate:"required,gte=2,lte=10000"`
}

// ComparisonOperator is one of the six relational operators.
type ComparisonOperator string

const (
	CompareGT ComparisonOperator = "gt"
	CompareGE ComparisonOperator = "ge"
	CompareLT ComparisonOperator = "lt"
	CompareLE ComparisonOperator = "le"
	CompareEQ ComparisonOperator = "eq"
	CompareNE ComparisonOperator = "ne"
)

// ComparisonConfig emits 1 when the input satisfies the relation against
// Threshold, 0 otherwise. Optionally raises an alarm while true.
type ComparisonConfig struct {
	InputItem  string             `json:"input_item" validate:"required"`
	Operator   ComparisonOperator `json:"operator" validate:"required,oneof=gt ge lt le eq ne"`
	Threshold  float64            `json:"threshold"`
	RaiseAlarm bool               `json:"raise_alarm"`
	// AlarmSeverity applies when RaiseAlarm is set.
	AlarmSeverity AlarmSeverity `json:"alarm_severity,omitempty" validate:"omitempty,oneof=info warning critical"`
}

// DeadbandConfig passes the input through only when it moves more than
// Band from the last emitted value, suppressing jitter.
type DeadbandConfig struct {
	InputItem string  `json:"input_item" validate:"required"`
	Band      float64 `json:"band" validate:"gt=0"`
}

// FormulaConfig evaluates an arithmetic expression over named items and
// global variables. Expression syntax is govaluate's.
type FormulaConfig struct {
	Expression string `json:"expression" validate:"required,max=1024"`
	// Inputs maps expression variable names to item IDs.
	Inputs map[string]string `json:"inputs" validate:"required,min=1"`
}

// IfConfig selects between two values based on a condition input
// (nonzero = true).
type IfConfig struct {
	ConditionItem string  `json:"condition_item" validate:"required"`
	ThenValue     float64 `json:"then_value"`
	ElseValue     float64 `json:"else_value"`
}

// PIDConfig is an incremental PID loop: setpoint regulation of the process
// item, output clamped to [OutputMin, OutputMax] with integral anti-windup.
type PIDConfig struct {
	ProcessItem string  `json:"process_item" validate:"required"`
	Setpoint    float64 `json:"setpoint"`
	Kp          float64 `json:"kp" validate:"gte=0"`
	Ki          float64 `json:"ki" validate:"gte=0"`
	Kd          float64 `json:"kd" validate:"gte=0"`
	OutputMin   float64 `json:"output_min"`
	OutputMax   float64 `json:"output_max" validate:"gtefield=OutputMin"`
	// Reverse inverts the error sign for reverse-acting processes.
	Reverse bool `json:"reverse"`
}

// ScheduleConfig emits OnValue between StartTime and EndTime (local wall
// clock, "HH:MM" 24h) on the listed weekdays, OffValue otherwise. Schedules
// spanning midnight are expressed with StartTime > EndTime.
type ScheduleConfig struct {
	StartTime string  `json:"start_time" validate:"required,clocktime"`
	EndTime   string  `json:"end_time" validate:"required,clocktime"`
	Weekdays  []int   `json:"weekdays" validate:"required,min=1,max=7,dive,gte=0,lte=6"`
	OnValue   float64 `json:"on_value"`
	OffValue  float64 `json:"off_value"`
}

// StatisticalFunction selects the aggregate a statistical memory computes.
type StatisticalFunction string

const (
	StatMin    StatisticalFunction = "min"
	StatMax    StatisticalFunction = "max"
	StatMean   StatisticalFunction = "mean"
	StatStddev StatisticalFunction = "stddev"
	StatSum    StatisticalFunction = "sum"
)

// StatisticalConfig computes an aggregate over the most recent WindowSize
// samples of the input item.
type StatisticalConfig struct {
	InputItem  string              `json:"input_item" validate:"required"`
	Function   StatisticalFunction `json:"function" validate:"required,oneof=min max mean stddev sum"`
	WindowSize int                 `json:"window_size" validate:"required,gte=2,lte=10000"`
}

// TimeoutConfig raises an alarm when the input item has not been updated for
// TimeoutMs milliseconds; the alarm clears on the next update.
type TimeoutConfig struct {
	InputItem string `json:"input_item" validate:"required"`
	TimeoutMs int    `json:"timeout_ms" validate:"required,gte=1000"`
	// AlarmSeverity of the raised timeout alarm. Default: warning.
	AlarmSeverity AlarmSeverity `json:"alarm_severity,omitempty" validate:"omitempty,oneof=info warning critical"`
}

// ConfigForType returns the typed config matching m.Type, or nil when the
// envelope is inconsistent.
func (m *Memory) ConfigForType() any {
	switch m.Type {
	case MemoryAverage:
		if m.Average != nil {
			return m.Average
		}
	case MemoryComparison:
		if m.Comparison != nil {
			return m.Comparison
		}
	case MemoryDeadband:
		if m.Deadband != nil {
			return m.Deadband
		}
	case MemoryFormula:
		if m.Formula != nil {
			return m.Formula
		}
	case MemoryIf:
		if m.If != nil {
			return m.If
		}
	case MemoryPID:
		if m.PID != nil {
			return m.PID
		}
	case MemorySchedule:
		if m.Schedule != nil {
			return m.Schedule
		}
	case MemoryStatistical:
		if m.Statistical != nil {
			return m.Statistical
		}
	case MemoryTimeout:
		if m.Timeout != nil {
			return m.Timeout
		}
	}
	return nil
}
