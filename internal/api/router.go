// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package api exposes the REST and WebSocket surface. Routes are grouped by
// resource with per-group authorization; every JSON response uses the
// APIResponse envelope.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tmachen/gridwatch/internal/audit"
	"github.com/tmachen/gridwatch/internal/auth"
	"github.com/tmachen/gridwatch/internal/authz"
	"github.com/tmachen/gridwatch/internal/config"
	"github.com/tmachen/gridwatch/internal/store"
	"github.com/tmachen/gridwatch/internal/websocket"
)

// loginRateLimit is deliberately tighter than the global API limit; login
// abuse is further contained by the account lockout.
const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// Invalidator asks the evaluation engine to reload its memory set. Satisfied
// by *engine.Engine.
type Invalidator interface {
	Invalidate()
}

// Server holds the handler dependencies.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	trail    *audit.Trail
	hub      *websocket.Hub
	auth     *auth.Service
	jwt      *auth.JWTManager
	enforcer *authz.Enforcer
	engine   Invalidator

	startedAt time.Time
}

// NewServer wires the API server. engine may be nil when the evaluation
// engine is disabled.
func NewServer(
	cfg *config.Config,
	st *store.Store,
	trail *audit.Trail,
	hub *websocket.Hub,
	authSvc *auth.Service,
	jwt *auth.JWTManager,
	enforcer *authz.Enforcer,
	engine Invalidator,
) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		trail:     trail,
		hub:       hub,
		auth:      authSvc,
		jwt:       jwt,
		enforcer:  enforcer,
		engine:    engine,
		startedAt: time.Now(),
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if !s.cfg.Security.RateLimitDisabled {
				r.Use(httprate.LimitByIP(loginRateLimit, loginRateWindow))
			}
			r.Post("/login", s.handleLogin)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.jwt.Middleware)
			r.Get("/me", s.handleMe)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if !s.cfg.Security.RateLimitDisabled {
			r.Use(httprate.LimitByIP(s.cfg.Security.RateLimitReqs, s.cfg.Security.RateLimitWindow))
		}
		r.Use(s.jwt.Middleware)

		r.Get("/ws", s.handleWebSocket)

		// Groups, items and global variables share the memories permission
		// domain: they are the engine's inputs and outputs.
		r.Route("/groups", func(r chi.Router) {
			r.With(s.enforcer.Require("memories", "read")).Get("/", s.handleListGroups)
			r.With(s.enforcer.Require("memories", "read")).Get("/{id}", s.handleGetGroup)
			r.With(s.enforcer.Require("memories", "read")).Get("/{id}/items", s.handleListGroupItems)
			r.With(s.enforcer.Require("memories", "write")).Post("/", s.handleCreateGroup)
			r.With(s.enforcer.Require("memories", "write")).Put("/{id}", s.handleUpdateGroup)
			r.With(s.enforcer.Require("memories", "write")).Delete("/{id}", s.handleDeleteGroup)
		})

		r.Route("/items", func(r chi.Router) {
			r.With(s.enforcer.Require("memories", "read")).Get("/", s.handleListItems)
			r.With(s.enforcer.Require("memories", "read")).Get("/{id}", s.handleGetItem)
			r.With(s.enforcer.Require("memories", "write")).Post("/", s.handleCreateItem)
			r.With(s.enforcer.Require("memories", "write")).Put("/{id}", s.handleUpdateItem)
			r.With(s.enforcer.Require("memories", "write")).Put("/{id}/value", s.handleSetItemValue)
			r.With(s.enforcer.Require("memories", "write")).Delete("/{id}", s.handleDeleteItem)
		})

		r.Route("/global-variables", func(r chi.Router) {
			r.With(s.enforcer.Require("memories", "read")).Get("/", s.handleListGlobalVariables)
			r.With(s.enforcer.Require("memories", "read")).Get("/{id}", s.handleGetGlobalVariable)
			r.With(s.enforcer.Require("memories", "write")).Post("/", s.handleCreateGlobalVariable)
			r.With(s.enforcer.Require("memories", "write")).Put("/{id}", s.handleUpdateGlobalVariable)
			r.With(s.enforcer.Require("memories", "write")).Delete("/{id}", s.handleDeleteGlobalVariable)
		})

		r.Route("/memories", func(r chi.Router) {
			r.With(s.enforcer.Require("memories", "read")).Get("/", s.handleListMemories)
			r.With(s.enforcer.Require("memories", "read")).Get("/types", s.handleListMemoryTypes)
			r.With(s.enforcer.Require("memories", "read")).Get("/{id}", s.handleGetMemory)
			r.With(s.enforcer.Require("memories", "write")).Post("/", s.handleCreateMemory)
			r.With(s.enforcer.Require("memories", "write")).Put("/{id}", s.handleUpdateMemory)
			r.With(s.enforcer.Require("memories", "write")).Put("/{id}/enabled", s.handleSetMemoryEnabled)
			r.With(s.enforcer.Require("memories", "write")).Delete("/{id}", s.handleDeleteMemory)
		})

		r.Route("/modbus", func(r chi.Router) {
			r.Route("/controllers", func(r chi.Router) {
				r.With(s.enforcer.Require("modbus", "read")).Get("/", s.handleListControllers)
				r.With(s.enforcer.Require("modbus", "read")).Get("/{id}", s.handleGetController)
				r.With(s.enforcer.Require("modbus", "read")).Get("/{id}/mappings", s.handleListControllerMappings)
				r.With(s.enforcer.Require("modbus", "write")).Post("/", s.handleCreateController)
				r.With(s.enforcer.Require("modbus", "write")).Put("/{id}", s.handleUpdateController)
				r.With(s.enforcer.Require("modbus", "write")).Delete("/{id}", s.handleDeleteController)
			})
			r.Route("/mappings", func(r chi.Router) {
				r.With(s.enforcer.Require("modbus", "read")).Get("/", s.handleListMappings)
				r.With(s.enforcer.Require("modbus", "read")).Get("/{id}", s.handleGetMapping)
				r.With(s.enforcer.Require("modbus", "write")).Post("/", s.handleCreateMapping)
				r.With(s.enforcer.Require("modbus", "write")).Put("/{id}", s.handleUpdateMapping)
				r.With(s.enforcer.Require("modbus", "write")).Delete("/{id}", s.handleDeleteMapping)
			})
			r.Route("/gateways", func(r chi.Router) {
				r.With(s.enforcer.Require("modbus", "read")).Get("/", s.handleListGateways)
				r.With(s.enforcer.Require("modbus", "read")).Get("/{id}", s.handleGetGateway)
				r.With(s.enforcer.Require("modbus", "write")).Post("/", s.handleCreateGateway)
				r.With(s.enforcer.Require("modbus", "write")).Put("/{id}", s.handleUpdateGateway)
				r.With(s.enforcer.Require("modbus", "write")).Delete("/{id}", s.handleDeleteGateway)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.With(s.enforcer.Require("users", "read")).Get("/", s.handleListUsers)
			r.With(s.enforcer.Require("users", "read")).Get("/{id}", s.handleGetUser)
			r.With(s.enforcer.Require("users", "write")).Post("/", s.handleCreateUser)
			r.With(s.enforcer.Require("users", "write")).Put("/{id}", s.handleUpdateUser)
			r.With(s.enforcer.Require("users", "write")).Delete("/{id}", s.handleDeleteUser)
		})

		r.Route("/roles", func(r chi.Router) {
			r.With(s.enforcer.Require("users", "read")).Get("/", s.handleListRoles)
			r.With(s.enforcer.Require("users", "read")).Get("/{id}", s.handleGetRole)
			r.With(s.enforcer.Require("users", "write")).Post("/", s.handleCreateRole)
			r.With(s.enforcer.Require("users", "write")).Put("/{id}", s.handleUpdateRole)
			r.With(s.enforcer.Require("users", "write")).Delete("/{id}", s.handleDeleteRole)
		})

		r.Route("/alarms", func(r chi.Router) {
			r.With(s.enforcer.Require("alarms", "read")).Get("/", s.handleListAlarms)
			r.With(s.enforcer.Require("alarms", "read")).Get("/count", s.handleCountAlarms)
			r.With(s.enforcer.Require("alarms", "read")).Get("/log", s.handleListAlarmLog)
			r.With(s.enforcer.Require("alarms", "ack")).Post("/{id}/ack", s.handleAckAlarm)
		})

		r.With(s.enforcer.Require("audit", "read")).Get("/audit", s.handleListAudit)
	})

	return r
}
