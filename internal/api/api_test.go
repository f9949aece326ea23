// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmachen/gridwatch/internal/audit"
	"github.com/tmachen/gridwatch/internal/auth"
	"github.com/tmachen/gridwatch/internal/authz"
	"github.com/tmachen/gridwatch/internal/config"
	"github.com/tmachen/gridwatch/internal/models"
	"github.com/tmachen/gridwatch/internal/store"
	"github.com/tmachen/gridwatch/internal/websocket"
)

// fakeInvalidator counts engine reload requests.
type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate() { f.calls++ }

type fixture struct {
	server  *Server
	handler http.Handler
	store   *store.Store
	trail   *audit.Trail
	engine  *fakeInvalidator

	adminToken  string
	viewerToken string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.SeedRoles())

	trail, err := audit.Open(audit.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = trail.Close() })

	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:         "0123456789abcdef0123456789abcdef",
			SessionTimeout:    time.Hour,
			RateLimitDisabled: true,
			CORSOrigins:       []string{"*"},
			LockoutThreshold:  5,
			LockoutWindow:     time.Minute,
			LockoutDuration:   time.Minute,
		},
	}

	jwt, err := auth.NewJWTManager(&cfg.Security)
	require.NoError(t, err)
	enforcer, err := authz.NewEnforcer()
	require.NoError(t, err)

	hash, err := auth.HashPassword("admin-secret")
	require.NoError(t, err)
	admin := &models.User{Username: "admin", PasswordHash: hash, RoleID: store.RoleAdminID}
	require.NoError(t, st.CreateUser(admin))
	viewer := &models.User{Username: "viewer", PasswordHash: hash, RoleID: store.RoleViewerID}
	require.NoError(t, st.CreateUser(viewer))

	adminToken, _, err := jwt.GenerateToken(admin.ID, admin.Username, admin.RoleID)
	require.NoError(t, err)
	viewerToken, _, err := jwt.GenerateToken(viewer.ID, viewer.Username, viewer.RoleID)
	require.NoError(t, err)

	engine := &fakeInvalidator{}
	authSvc := auth.NewService(st, jwt, auth.NewLockoutManager(&cfg.Security))
	server := NewServer(cfg, st, trail, websocket.NewHub(), authSvc, jwt, enforcer, engine)

	return &fixture{
		server:      server,
		handler:     server.Routes(),
		store:       st,
		trail:       trail,
		engine:      engine,
		adminToken:  adminToken,
		viewerToken: viewerToken,
	}
}

// do performs a request against the router, returning the recorder and the
// decoded envelope.
func (f *fixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, *models.APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var envelope models.APIResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope),
			"body: %s", rec.Body.String())
	}
	return rec, &envelope
}

// decodeData re-marshals the envelope's data field into out.
func decodeData(t *testing.T, envelope *models.APIResponse, out any) {
	t.Helper()
	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec, envelope := f.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", envelope.Status)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	t.Run("success", func(t *testing.T) {
		rec, envelope := f.do(t, http.MethodPost, "/api/v1/auth/login", "",
			models.LoginRequest{Username: "admin", Password: "admin-secret"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp models.LoginResponse
		decodeData(t, envelope, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "admin", resp.User.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec, envelope := f.do(t, http.MethodPost, "/api/v1/auth/login", "",
			models.LoginRequest{Username: "admin", Password: "wrong-pass"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, models.CodeUnauthorized, envelope.Error.Code)
	})

	t.Run("short password fails validation before auth", func(t *testing.T) {
		rec, envelope := f.do(t, http.MethodPost, "/api/v1/auth/login", "",
			models.LoginRequest{Username: "admin", Password: "abc"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, models.CodeValidationError, envelope.Error.Code)
	})
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	rec, envelope := f.do(t, http.MethodGet, "/api/v1/memories/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.CodeUnauthorized, envelope.Error.Code)
}

func TestViewerCannotWrite(t *testing.T) {
	f := newFixture(t)

	rec, envelope := f.do(t, http.MethodPost, "/api/v1/groups/", f.viewerToken,
		models.Group{Name: "plant"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, models.CodeForbidden, envelope.Error.Code)
}

func TestGroupAndItemLifecycle(t *testing.T) {
	f := newFixture(t)

	rec, envelope := f.do(t, http.MethodPost, "/api/v1/groups/", f.adminToken,
		models.Group{Name: "plant-a"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var group models.Group
	decodeData(t, envelope, &group)
	require.NotEmpty(t, group.ID)

	rec, envelope = f.do(t, http.MethodPost, "/api/v1/items/", f.adminToken,
		models.Item{GroupID: group.ID, Name: "inlet-temp", Kind: models.ItemAnalogInput})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item models.Item
	decodeData(t, envelope, &item)

	// Group with items cannot be deleted
	rec, envelope = f.do(t, http.MethodDelete, "/api/v1/groups/"+group.ID, f.adminToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, models.CodeConflict, envelope.Error.Code)

	// Viewer can read
	rec, envelope = f.do(t, http.MethodGet, "/api/v1/groups/"+group.ID+"/items", f.viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, envelope.Metadata.Count)

	// Manual value write
	rec, _ = f.do(t, http.MethodPut, "/api/v1/items/"+item.ID+"/value", f.adminToken,
		itemValueRequest{Value: 21.5})
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := f.store.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 21.5, stored.Value)
	assert.True(t, stored.Quality)
}

func TestMemoryCRUD(t *testing.T) {
	f := newFixture(t)

	_, envelope := f.do(t, http.MethodPost, "/api/v1/groups/", f.adminToken, models.Group{Name: "g"})
	var group models.Group
	decodeData(t, envelope, &group)
	_, envelope = f.do(t, http.MethodPost, "/api/v1/items/", f.adminToken,
		models.Item{GroupID: group.ID, Name: "temp", Kind: models.ItemAnalogInput})
	var item models.Item
	decodeData(t, envelope, &item)

	memory := models.Memory{
		Name: "avg-temp", Type: models.MemoryAverage, Enabled: true,
		Interval: 1000, OutputVariable: "avg_temp",
		Average: &models.AverageConfig{InputItem: item.ID, WindowSize: 10},
	}
	rec, envelope := f.do(t, http.MethodPost, "/api/v1/memories/", f.adminToken, memory)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	var created models.Memory
	decodeData(t, envelope, &created)
	assert.Equal(t, 1, f.engine.calls, "create must invalidate the engine")

	t.Run("config mismatch is a validation error", func(t *testing.T) {
		bad := memory
		bad.Name = "bad"
		bad.Type = models.MemoryPID
		rec, envelope := f.do(t, http.MethodPost, "/api/v1/memories/", f.adminToken, bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, models.CodeValidationError, envelope.Error.Code)
	})

	t.Run("unknown type", func(t *testing.T) {
		bad := memory
		bad.Type = "fourier"
		rec, envelope := f.do(t, http.MethodPost, "/api/v1/memories/", f.adminToken, bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, models.CodeValidationError, envelope.Error.Code)
	})

	t.Run("enable toggle invalidates engine", func(t *testing.T) {
		before := f.engine.calls
		rec, _ := f.do(t, http.MethodPut, "/api/v1/memories/"+created.ID+"/enabled",
			f.adminToken, memoryEnabledRequest{Enabled: false})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, before+1, f.engine.calls)
	})

	t.Run("types listing", func(t *testing.T) {
		rec, envelope := f.do(t, http.MethodGet, "/api/v1/memories/types", f.viewerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, len(models.MemoryTypes), envelope.Metadata.Count)
	})

	t.Run("delete", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodDelete, "/api/v1/memories/"+created.ID, f.adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec, _ = f.do(t, http.MethodGet, "/api/v1/memories/"+created.ID, f.adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestModbusConflicts(t *testing.T) {
	f := newFixture(t)

	_, envelope := f.do(t, http.MethodPost, "/api/v1/groups/", f.adminToken, models.Group{Name: "g"})
	var group models.Group
	decodeData(t, envelope, &group)
	_, envelope = f.do(t, http.MethodPost, "/api/v1/items/", f.adminToken,
		models.Item{GroupID: group.ID, Name: "flow", Kind: models.ItemAnalogInput})
	var item models.Item
	decodeData(t, envelope, &item)

	rec, envelope := f.do(t, http.MethodPost, "/api/v1/modbus/controllers/", f.adminToken,
		models.ModbusController{Name: "plc-1", Host: "10.0.0.5", Port: 502, PollIntervalMs: 1000})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	var controller models.ModbusController
	decodeData(t, envelope, &controller)

	mapping := models.ModbusMapping{
		ControllerID: controller.ID, ItemID: item.ID,
		Kind: models.RegisterHoldingRegister, Position: 7,
	}
	rec, _ = f.do(t, http.MethodPost, "/api/v1/modbus/mappings/", f.adminToken, mapping)
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("duplicate position is a structured conflict", func(t *testing.T) {
		rec, envelope := f.do(t, http.MethodPost, "/api/v1/modbus/mappings/", f.adminToken, mapping)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, models.CodeConflict, envelope.Error.Code)

		fields, ok := envelope.Error.Details["fields"].([]any)
		require.True(t, ok)
		require.Len(t, fields, 1)
		field := fields[0].(map[string]any)
		assert.Equal(t, "position", field["field"])
		assert.Equal(t, "POSITION_TAKEN", field["error_code"])
	})

	t.Run("gateway port conflict", func(t *testing.T) {
		gw := models.ModbusGateway{Name: "gw-1", ListenPort: 1502}
		rec, _ := f.do(t, http.MethodPost, "/api/v1/modbus/gateways/", f.adminToken, gw)
		require.Equal(t, http.StatusCreated, rec.Code)

		gw.Name = "gw-2"
		rec, envelope := f.do(t, http.MethodPost, "/api/v1/modbus/gateways/", f.adminToken, gw)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, models.CodeConflict, envelope.Error.Code)
	})
}

func TestUserManagement(t *testing.T) {
	f := newFixture(t)

	rec, envelope := f.do(t, http.MethodPost, "/api/v1/users/", f.adminToken,
		createUserRequest{Username: "operator1", Password: "op-secret", RoleID: store.RoleOperatorID})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	var user models.User
	decodeData(t, envelope, &user)
	assert.Empty(t, user.PasswordHash, "hash must never serialize")

	t.Run("missing role is a field error", func(t *testing.T) {
		rec, envelope := f.do(t, http.MethodPost, "/api/v1/users/", f.adminToken,
			createUserRequest{Username: "ghost", Password: "gh-secret", RoleID: "role-nope"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, models.CodeValidationError, envelope.Error.Code)
	})

	t.Run("duplicate username", func(t *testing.T) {
		rec, envelope := f.do(t, http.MethodPost, "/api/v1/users/", f.adminToken,
			createUserRequest{Username: "operator1", Password: "op-secret", RoleID: store.RoleOperatorID})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, models.CodeConflict, envelope.Error.Code)
	})

	t.Run("new user can log in", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/api/v1/auth/login", "",
			models.LoginRequest{Username: "operator1", Password: "op-secret"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("viewer cannot list users", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodGet, "/api/v1/users/", f.viewerToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("builtin role cannot be deleted", func(t *testing.T) {
		rec, envelope := f.do(t, http.MethodDelete, "/api/v1/roles/"+store.RoleAdminID, f.adminToken, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, models.CodeConflict, envelope.Error.Code)
	})
}

func TestCustomRoleAuthorization(t *testing.T) {
	f := newFixture(t)

	role := models.Role{
		Name:        "alarm-desk",
		Permissions: []models.Permission{models.PermAlarmsRead, models.PermAlarmsAck},
	}
	rec, envelope := f.do(t, http.MethodPost, "/api/v1/roles/", f.adminToken, role)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Role
	decodeData(t, envelope, &created)

	rec, envelope = f.do(t, http.MethodPost, "/api/v1/users/", f.adminToken,
		createUserRequest{Username: "desk1", Password: "desk-secret", RoleID: created.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	_, envelope = f.do(t, http.MethodPost, "/api/v1/auth/login", "",
		models.LoginRequest{Username: "desk1", Password: "desk-secret"})
	var login models.LoginResponse
	decodeData(t, envelope, &login)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/alarms/", login.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/memories/", login.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAlarmAck(t *testing.T) {
	f := newFixture(t)

	alarm, raised, err := f.store.RaiseAlarm("mem-1", "overtemp", models.SeverityCritical)
	require.NoError(t, err)
	require.True(t, raised)

	rec, envelope := f.do(t, http.MethodGet, "/api/v1/alarms/count", f.viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count alarmCountResponse
	decodeData(t, envelope, &count)
	assert.Equal(t, 1, count.Count)

	t.Run("viewer cannot ack", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/api/v1/alarms/"+alarm.ID+"/ack", f.viewerToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	rec, envelope = f.do(t, http.MethodPost, "/api/v1/alarms/"+alarm.ID+"/ack", f.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var acked models.Alarm
	decodeData(t, envelope, &acked)
	assert.Equal(t, models.AlarmAcknowledged, acked.State)
	assert.Equal(t, "admin", acked.AckedBy)

	t.Run("double ack conflicts", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/api/v1/alarms/"+alarm.ID+"/ack", f.adminToken, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/v1/groups/", f.adminToken, models.Group{Name: "plant"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, envelope := f.do(t, http.MethodGet, "/api/v1/audit", f.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []*audit.Event
	decodeData(t, envelope, &events)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "admin", last.Actor)
	assert.Equal(t, "create", last.Action)
	assert.Equal(t, "group", last.Resource)
}
