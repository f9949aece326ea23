// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package models defines the data transfer objects shared between the store,
// the evaluation engine, the HTTP API, and the client library.
//
// The domain vocabulary follows plant-floor conventions:
//
//   - Item: a monitored I/O point (digital/analog input or output), grouped
//     into named Groups.
//   - Memory: a named, persisted computation block (average, comparison,
//     deadband, formula, if, pid, schedule, statistical, timeout) that the
//     engine evaluates periodically against item values.
//   - Modbus controller/mapping/gateway: configuration describing how local
//     points correspond to registers on external Modbus devices, or how this
//     system exposes registers to external Modbus masters.
//   - Alarm: an active or historical condition raised by the engine or by
//     communication failures.
//
// All structs marshal with goccy/go-json and carry validate tags consumed by
// the validation package.
package models
