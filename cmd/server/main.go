// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package main is the entry point for the Gridwatch server.
//
// Gridwatch is a self-hosted monitoring backend for small industrial
// installations: operators configure "memory" computation blocks (averages,
// comparisons, deadbands, formulas, PID loops, schedules, statistical
// windows, timeouts) over monitored I/O points, and the evaluation engine
// runs them continuously, writing outputs to global variables and raising
// alarms. Modbus controllers, mappings and gateways describe how points map
// onto external devices. A REST API plus a websocket push channel serve the
// operator dashboard.
//
// Startup order:
//
//  1. Configuration (Koanf v2: env > config.yaml > defaults)
//  2. Logging (zerolog)
//  3. Stores (BadgerDB: configuration/alarms, separate audit trail)
//  4. Seeds (built-in roles, initial admin account)
//  5. Authentication and authorization (JWT, casbin)
//  6. Supervisor tree (websocket hub, engine, audit retention, HTTP server)
//
// Shutdown on SIGINT/SIGTERM is graceful: the HTTP server drains in-flight
// requests, the hub closes its clients, the databases flush and close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmachen/gridwatch/internal/api"
	"github.com/tmachen/gridwatch/internal/audit"
	"github.com/tmachen/gridwatch/internal/auth"
	"github.com/tmachen/gridwatch/internal/authz"
	"github.com/tmachen/gridwatch/internal/config"
	"github.com/tmachen/gridwatch/internal/engine"
	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/store"
	"github.com/tmachen/gridwatch/internal/supervisor"
	ws "github.com/tmachen/gridwatch/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Int("port", cfg.Server.Port).
		Bool("engine", cfg.Engine.Enabled).
		Msg("Starting Gridwatch")

	st, err := store.Open(store.Options{Path: cfg.Database.Path, InMemory: cfg.Database.InMemory})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	trail, err := audit.Open(audit.Options{
		Path:      cfg.Database.AuditPath,
		InMemory:  cfg.Database.InMemory,
		Retention: cfg.Engine.AlarmLogRetention,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open audit trail")
	}
	defer func() {
		if err := trail.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit trail")
		}
	}()

	if err := seed(cfg, st); err != nil {
		logging.Fatal().Err(err).Msg("Failed to seed initial data")
	}

	jwt, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT")
	}
	authSvc := auth.NewService(st, jwt, auth.NewLockoutManager(&cfg.Security))

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization")
	}
	roles, err := st.ListRoles()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load roles")
	}
	if err := enforcer.SyncRoles(roles); err != nil {
		logging.Fatal().Err(err).Msg("Failed to sync role policies")
	}

	hub := ws.NewHub()

	var eng *engine.Engine
	var invalidator api.Invalidator
	if cfg.Engine.Enabled {
		eng = engine.New(st, hub, cfg.Engine.TickInterval)
		invalidator = eng
	}

	server := api.NewServer(cfg, st, trail, hub, authSvc, jwt, enforcer, invalidator)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddCoreService(supervisor.NewHubService(hub))
	tree.AddCoreService(trail)
	if eng != nil {
		tree.AddCoreService(eng)
	}
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", httpServer.Addr).Msg("Gridwatch ready")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
		os.Exit(1)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	logging.Info().Msg("Gridwatch stopped")
}

// seed installs the built-in roles and, when credentials are configured and
// the user store is empty, the initial admin account.
func seed(cfg *config.Config, st *store.Store) error {
	if err := st.SeedRoles(); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}

	if cfg.Security.AdminUsername == "" || cfg.Security.AdminPassword == "" {
		return nil
	}
	hash, err := auth.HashPassword(cfg.Security.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := st.SeedAdminUser(cfg.Security.AdminUsername, hash); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}
