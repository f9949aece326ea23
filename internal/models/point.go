// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package models

import "time"

// ItemKind classifies a monitored I/O point.
type ItemKind string

const (
	ItemDigitalInput  ItemKind = "DI"
	ItemDigitalOutput ItemKind = "DO"
	ItemAnalogInput   ItemKind = "AI"
	ItemAnalogOutput  ItemKind = "AO"
)

// Valid reports whether the kind is one of the four point classes.
func (k ItemKind) Valid() bool {
	switch k {
	case ItemDigitalInput, ItemDigitalOutput, ItemAnalogInput, ItemAnalogOutput:
		return true
	}
	return false
}

// Group is a named collection of items, the unit of the client-side sync
// stage 1. Items reference their group by ID, so the item sync stage depends
// on group identifiers already being cached.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=128"`
	Description string    `json:"description,omitempty" validate:"max=512"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Item is a monitored I/O point. Value semantics depend on Kind: digital
// points carry 0/1, analog points carry engineering-unit floats.
type Item struct {
	ID          string   `json:"id"`
	GroupID     string   `json:"group_id" validate:"required"`
	Name        string   `json:"name" validate:"required,max=128"`
	Description string   `json:"description,omitempty" validate:"max=512"`
	Kind        ItemKind `json:"kind" validate:"required,oneof=DI DO AI AO"`
	Unit        string   `json:"unit,omitempty" validate:"max=16"`

	// Value is the last observed value in engineering units.
	Value float64 `json:"value"`
	// Quality is false when the source has not reported within its deadline.
	Quality   bool      `json:"quality"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}

// GlobalVariable is a named scalar shared between memories and exposed to
// external consumers. Engine outputs are written here.
type GlobalVariable struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=128"`
	Description string    `json:"description,omitempty" validate:"max=512"`
	Value       float64   `json:"value"`
	ReadOnly    bool      `json:"read_only"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedAt   time.Time `json:"created_at"`
}
