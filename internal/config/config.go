// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package config loads and validates application configuration using
// Koanf v2 with layered sources (highest priority wins):
//
//  1. Environment variables
//  2. Config file (config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration object.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Engine   EngineConfig   `koanf:"engine"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// DatabaseConfig controls the embedded BadgerDB stores.
type DatabaseConfig struct {
	// Path is the BadgerDB directory for configuration and alarm state.
	Path string `koanf:"path"`
	// AuditPath is the BadgerDB directory for the audit trail. Separate from
	// Path so retention compaction does not block configuration writes.
	AuditPath string `koanf:"audit_path"`
	// InMemory runs Badger without disk persistence (tests, CI).
	InMemory bool `koanf:"in_memory"`
}

// SecurityConfig controls authentication and request limits.
type SecurityConfig struct {
	// JWTSecret signs bearer tokens, minimum 32 characters.
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// AdminUsername/AdminPassword seed the initial admin account when the
	// user store is empty.
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`

	// LockoutThreshold failed logins within LockoutWindow lock the account
	// for LockoutDuration.
	LockoutThreshold int           `koanf:"lockout_threshold"`
	LockoutWindow    time.Duration `koanf:"lockout_window"`
	LockoutDuration  time.Duration `koanf:"lockout_duration"`
}

// EngineConfig controls the memory evaluation engine.
type EngineConfig struct {
	Enabled bool `koanf:"enabled"`
	// TickInterval is the engine's base clock; memory intervals are rounded
	// up to a multiple of it.
	TickInterval time.Duration `koanf:"tick_interval"`
	// AlarmLogRetention bounds how long alarm log entries are kept.
	AlarmLogRetention time.Duration `koanf:"alarm_log_retention"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8502, // 502 is the Modbus port; 8502 is "Modbus over HTTP"
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/gridwatch",
			AuditPath: "/data/gridwatch-audit",
			InMemory:  false,
		},
		Security: SecurityConfig{
			JWTSecret:         "",
			SessionTimeout:    24 * time.Hour,
			AdminUsername:     "",
			AdminPassword:     "",
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
			LockoutThreshold:  5,
			LockoutWindow:     15 * time.Minute,
			LockoutDuration:   15 * time.Minute,
		},
		Engine: EngineConfig{
			Enabled:           true,
			TickInterval:      100 * time.Millisecond,
			AlarmLogRetention: 90 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment != "production"
}

// Validate checks cross-field constraints that koanf cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if len(c.Security.JWTSecret) > 0 && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.Security.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("security.jwt_secret is required in production")
	}
	if c.Engine.TickInterval < 10*time.Millisecond {
		return fmt.Errorf("engine.tick_interval must be at least 10ms")
	}
	if c.Security.LockoutThreshold < 1 {
		return fmt.Errorf("security.lockout_threshold must be positive")
	}
	return nil
}
