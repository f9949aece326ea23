// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package metrics exposes Prometheus instrumentation for the HTTP API, the
// evaluation engine, alarms and websocket push.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridwatch_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Engine metrics
	EngineEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_engine_evaluations_total",
			Help: "Total number of memory evaluations",
		},
		[]string{"type"},
	)

	EngineEvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_engine_evaluation_errors_total",
			Help: "Total number of failed memory evaluations",
		},
		[]string{"type"},
	)

	EngineTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridwatch_engine_tick_duration_seconds",
			Help:    "Duration of one engine tick in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Alarm metrics
	AlarmsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridwatch_alarms_active",
			Help: "Current number of uncleared alarms",
		},
	)

	AlarmsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_alarms_raised_total",
			Help: "Total number of alarms raised",
		},
		[]string{"severity"},
	)

	// WebSocket metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridwatch_ws_connections_active",
			Help: "Current number of websocket subscribers",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_ws_messages_sent_total",
			Help: "Total number of websocket messages pushed",
		},
		[]string{"type"},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridwatch_ws_messages_dropped_total",
			Help: "Total number of websocket messages dropped on slow clients",
		},
	)

	// Auth metrics
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"outcome"}, // "success", "failure", "locked"
	)
)

// ObserveAPIRequest records one finished HTTP request.
func ObserveAPIRequest(method, path string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
