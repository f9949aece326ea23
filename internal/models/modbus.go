// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package models

import "time"

// ModbusRegisterKind is the Modbus table a mapping addresses.
type ModbusRegisterKind string

const (
	RegisterCoil            ModbusRegisterKind = "coil"
	RegisterDiscreteInput   ModbusRegisterKind = "discrete_input"
	RegisterInputRegister   ModbusRegisterKind = "input_register"
	RegisterHoldingRegister ModbusRegisterKind = "holding_register"
)

// ModbusController describes a polled external Modbus device.
type ModbusController struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description,omitempty" validate:"max=512"`

	Host   string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port   int    `json:"port" validate:"required,gte=1,lte=65535"`
	UnitID int    `json:"unit_id" validate:"gte=0,lte=255"`

	// PollIntervalMs is how often the device is polled.
	PollIntervalMs int  `json:"poll_interval_ms" validate:"required,gte=100"`
	Enabled        bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModbusMapping binds a local item to a register on a controller. Register
// positions must be unique per controller and kind; the store rejects
// duplicates with a structured field error.
type ModbusMapping struct {
	ID           string             `json:"id"`
	ControllerID string             `json:"controller_id" validate:"required"`
	ItemID       string             `json:"item_id" validate:"required"`
	Kind         ModbusRegisterKind `json:"kind" validate:"required,oneof=coil discrete_input input_register holding_register"`
	Position     int                `json:"position" validate:"gte=0,lte=65535"`

	// Scale and Offset convert raw register counts to engineering units:
	// value = raw*Scale + Offset.
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModbusGateway exposes local points as registers to external Modbus
// masters. Listen ports must be unique across gateways.
type ModbusGateway struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description,omitempty" validate:"max=512"`

	ListenPort int  `json:"listen_port" validate:"required,gte=1,lte=65535"`
	UnitID     int  `json:"unit_id" validate:"gte=0,lte=255"`
	Enabled    bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
