// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmachen/gridwatch/internal/models"
	"github.com/tmachen/gridwatch/internal/validation"
	"github.com/tmachen/gridwatch/internal/websocket"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIResponse{Status: "success", Data: data})
}

func writeAPIError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: code},
	})
}

func TestCache_AuthScopes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	user := &models.User{ID: "u1", Username: "alice"}

	t.Run("remember writes persistent and clears session", func(t *testing.T) {
		cache, err := OpenCache(path)
		require.NoError(t, err)

		// Prior session-scoped login
		require.NoError(t, cache.SaveAuth("session-token", user, false))
		require.NoError(t, cache.SaveAuth("persistent-token", user, true))

		token, got, ok := cache.LoadAuth()
		require.True(t, ok)
		assert.Equal(t, "persistent-token", token)
		assert.Equal(t, "alice", got.Username)
		require.NoError(t, cache.Close())

		// Survives a restart
		cache, err = OpenCache(path)
		require.NoError(t, err)
		token, _, ok = cache.LoadAuth()
		require.True(t, ok)
		assert.Equal(t, "persistent-token", token)
		require.NoError(t, cache.Close())
	})

	t.Run("session login clears persistent and does not survive restart", func(t *testing.T) {
		cache, err := OpenCache(path)
		require.NoError(t, err)
		require.NoError(t, cache.SaveAuth("session-token", user, false))

		token, _, ok := cache.LoadAuth()
		require.True(t, ok)
		assert.Equal(t, "session-token", token)
		require.NoError(t, cache.Close())

		cache, err = OpenCache(path)
		require.NoError(t, err)
		_, _, ok = cache.LoadAuth()
		assert.False(t, ok, "session-scoped credentials must not persist")
		require.NoError(t, cache.Close())
	})
}

func TestLogin_ClientSideValidationBlocksNetwork(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeEnvelope(w, http.StatusOK, models.LoginResponse{Token: "t"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, newTestCache(t), nil)
	_, err := client.Login(context.Background(), "alice", "short", false)

	var verr *validation.RequestValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int32(0), requests.Load(), "validation failure must not hit the network")
}

func TestUnauthorizedPolicy(t *testing.T) {
	// Every endpoint, login included, answers 401
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusUnauthorized, models.CodeUnauthorized)
	}))
	defer srv.Close()

	t.Run("non-login 401 clears credentials and fires callback", func(t *testing.T) {
		cache := newTestCache(t)
		require.NoError(t, cache.SaveAuth("tok", &models.User{Username: "alice"}, true))

		var redirected bool
		client := NewClient(srv.URL, cache, func() { redirected = true })

		_, err := client.ListGroups(context.Background())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

		_, _, ok := cache.LoadAuth()
		assert.False(t, ok, "credentials must be wiped")
		assert.True(t, redirected)
	})

	t.Run("login 401 keeps credentials", func(t *testing.T) {
		cache := newTestCache(t)
		require.NoError(t, cache.SaveAuth("tok", &models.User{Username: "alice"}, true))

		var redirected bool
		client := NewClient(srv.URL, cache, func() { redirected = true })

		_, err := client.Login(context.Background(), "alice", "wrong-password", false)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)

		_, _, ok := cache.LoadAuth()
		assert.True(t, ok, "a failed login must not destroy the previous session")
		assert.False(t, redirected)
	})
}

func TestClient_BearerInjection(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeEnvelope(w, http.StatusOK, []*models.Group{})
	}))
	defer srv.Close()

	cache := newTestCache(t)
	require.NoError(t, cache.SaveAuth("tok-123", &models.User{}, true))

	client := NewClient(srv.URL, cache, nil)
	_, err := client.ListGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

// syncServer fakes the two list endpoints with switchable failures.
type syncServer struct {
	srv        *httptest.Server
	groupFail  atomic.Bool
	itemFail   atomic.Bool
	groupCalls atomic.Int32
	itemCalls  atomic.Int32
	// itemsSawGroupsFirst is false if items were fetched before groups ever
	// succeeded
	itemsSawGroupsFirst atomic.Bool
}

func newSyncServer(t *testing.T) *syncServer {
	t.Helper()
	s := &syncServer{}
	s.itemsSawGroupsFirst.Store(true)
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/groups/":
			s.groupCalls.Add(1)
			if s.groupFail.Load() {
				writeAPIError(w, http.StatusInternalServerError, models.CodeInternalError)
				return
			}
			writeEnvelope(w, http.StatusOK, []*models.Group{{ID: "g1", Name: "plant"}})
		case "/api/v1/items/":
			s.itemCalls.Add(1)
			if s.groupCalls.Load() == 0 {
				s.itemsSawGroupsFirst.Store(false)
			}
			if s.itemFail.Load() {
				writeAPIError(w, http.StatusInternalServerError, models.CodeInternalError)
				return
			}
			writeEnvelope(w, http.StatusOK, []*models.Item{{ID: "i1", GroupID: "g1", Name: "temp"}})
		default:
			writeAPIError(w, http.StatusNotFound, models.CodeNotFound)
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func TestSync_HappyPath(t *testing.T) {
	server := newSyncServer(t)
	cache := newTestCache(t)
	syncer := NewSyncer(NewClient(server.srv.URL, cache, nil), cache, nil)

	require.NoError(t, syncer.StartSync(context.Background()))

	state := syncer.State()
	assert.True(t, state.Completed)
	assert.False(t, state.HasErrors)
	assert.Equal(t, StageSuccess, state.Stages[StageGroups].Status)
	assert.Equal(t, StageSuccess, state.Stages[StageItems].Status)
	assert.True(t, server.itemsSawGroupsFirst.Load())

	groups, err := cache.LoadGroups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	items, err := cache.LoadItems()
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestSync_GroupsFailureBlocksItems(t *testing.T) {
	server := newSyncServer(t)
	server.groupFail.Store(true)
	cache := newTestCache(t)
	syncer := NewSyncer(NewClient(server.srv.URL, cache, nil), cache, nil)

	require.Error(t, syncer.StartSync(context.Background()))

	state := syncer.State()
	assert.Equal(t, StageError, state.Stages[StageGroups].Status)
	assert.Equal(t, StageIdle, state.Stages[StageItems].Status, "stage 2 must not start")
	assert.Equal(t, int32(0), server.itemCalls.Load())
	assert.True(t, state.HasErrors)
	assert.False(t, state.Completed)
}

func TestSync_RetryOnlyFailedStages(t *testing.T) {
	server := newSyncServer(t)
	server.itemFail.Store(true)
	cache := newTestCache(t)
	syncer := NewSyncer(NewClient(server.srv.URL, cache, nil), cache, nil)

	require.Error(t, syncer.StartSync(context.Background()))

	state := syncer.State()
	assert.Equal(t, StageSuccess, state.Stages[StageGroups].Status)
	assert.Equal(t, StageError, state.Stages[StageItems].Status)
	assert.True(t, state.HasErrors)
	assert.False(t, state.Completed)

	groupCallsBefore := server.groupCalls.Load()
	server.itemFail.Store(false)
	require.NoError(t, syncer.RetryFailed(context.Background()))

	assert.Equal(t, groupCallsBefore, server.groupCalls.Load(),
		"retry must not refetch succeeded stages")
	state = syncer.State()
	assert.True(t, state.Completed)
	assert.False(t, state.HasErrors)
}

func TestSync_RetryAfterGroupsFailureRunsItems(t *testing.T) {
	server := newSyncServer(t)
	server.groupFail.Store(true)
	cache := newTestCache(t)
	syncer := NewSyncer(NewClient(server.srv.URL, cache, nil), cache, nil)

	require.Error(t, syncer.StartSync(context.Background()))
	assert.Equal(t, StageIdle, syncer.State().Stages[StageItems].Status)

	// Server recovers: the retry must finish the whole run, including the
	// items stage the first failure blocked
	server.groupFail.Store(false)
	require.NoError(t, syncer.RetryFailed(context.Background()))

	state := syncer.State()
	assert.Equal(t, StageSuccess, state.Stages[StageGroups].Status)
	assert.Equal(t, StageSuccess, state.Stages[StageItems].Status)
	assert.True(t, state.Completed)
	assert.False(t, state.HasErrors)
	assert.True(t, server.itemsSawGroupsFirst.Load())

	items, err := cache.LoadItems()
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestSync_RetryStopsWhenGroupsFailAgain(t *testing.T) {
	server := newSyncServer(t)
	server.groupFail.Store(true)
	cache := newTestCache(t)
	syncer := NewSyncer(NewClient(server.srv.URL, cache, nil), cache, nil)

	require.Error(t, syncer.StartSync(context.Background()))
	require.Error(t, syncer.RetryFailed(context.Background()))

	state := syncer.State()
	assert.Equal(t, StageError, state.Stages[StageGroups].Status)
	assert.Equal(t, StageIdle, state.Stages[StageItems].Status, "stage 2 must stay blocked")
	assert.Equal(t, int32(0), server.itemCalls.Load())
}

func TestSync_CompletionCallbackFiresOnceAfterDelay(t *testing.T) {
	server := newSyncServer(t)
	cache := newTestCache(t)

	var fires atomic.Int32
	syncer := NewSyncer(NewClient(server.srv.URL, cache, nil), cache, func() {
		fires.Add(1)
	})

	require.NoError(t, syncer.StartSync(context.Background()))
	// A duplicate invocation (re-rendered caller) must not re-arm the timer
	require.NoError(t, syncer.StartSync(context.Background()))

	assert.Equal(t, int32(0), fires.Load(), "callback must wait out the display delay")
	assert.Eventually(t, func() bool { return fires.Load() == 1 },
		3*time.Second, 50*time.Millisecond)

	// No second fire
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), fires.Load())
}

func TestAlarmWatcher_DebounceByComparison(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		writeEnvelope(w, http.StatusOK, []*models.Alarm{{ID: "a1", Message: "overtemp"}})
	}))
	defer srv.Close()

	cache := newTestCache(t)
	stream := NewStream("ws://unused", cache)
	watcher := NewAlarmWatcher(stream, NewClient(srv.URL, cache, nil), cache, nil)
	ctx := context.Background()

	// No stream update yet: nothing to do
	watcher.Check(ctx)
	assert.Equal(t, int32(0), fetches.Load())

	// One update triggers exactly one fetch, repeated checks stay quiet
	stream.mu.Lock()
	stream.lastUpdate = time.Now()
	stream.mu.Unlock()

	watcher.Check(ctx)
	watcher.Check(ctx)
	watcher.Check(ctx)
	assert.Equal(t, int32(1), fetches.Load())

	alarms, err := cache.LoadAlarms()
	require.NoError(t, err)
	require.Len(t, alarms, 1)

	// A newer update triggers again
	stream.mu.Lock()
	stream.lastUpdate = time.Now().Add(time.Millisecond)
	stream.mu.Unlock()
	watcher.Check(ctx)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestStream_HandleMessages(t *testing.T) {
	stream := NewStream("ws://unused", newTestCache(t))

	stream.handleMessage(&websocket.Message{
		Type: websocket.MessageTypeAlarmCountChanged,
		Data: map[string]any{"count": 3},
	})
	snap := stream.Snapshot()
	assert.Equal(t, 3, snap.AlarmCount)
	assert.False(t, snap.LastUpdate.IsZero())

	before := snap.LastUpdate
	stream.handleMessage(&websocket.Message{
		Type: websocket.MessageTypeGlobalVariablesChanged,
		Data: map[string]any{"names": []string{"x"}},
	})
	snap = stream.Snapshot()
	assert.Equal(t, 3, snap.AlarmCount, "count untouched by variable pushes")
	assert.False(t, snap.LastUpdate.Before(before))
}
