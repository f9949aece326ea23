// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmachen/gridwatch/internal/websocket"
)

// fakeHTTPServer blocks in ListenAndServe until shut down.
type fakeHTTPServer struct {
	started  chan struct{}
	stop     chan error
	shutdown bool
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{started: make(chan struct{}), stop: make(chan error, 1)}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	close(f.started)
	return <-f.stop
}

func (f *fakeHTTPServer) Shutdown(ctx context.Context) error {
	f.shutdown = true
	f.stop <- http.ErrServerClosed
	return nil
}

func TestHTTPService_GracefulShutdown(t *testing.T) {
	server := newFakeHTTPServer()
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-server.started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, server.shutdown)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestHTTPService_ListenerFailure(t *testing.T) {
	server := newFakeHTTPServer()
	svc := NewHTTPService(server, time.Second)

	done := make(chan error, 1)
	go func() { done <- svc.Serve(context.Background()) }()

	<-server.started
	server.stop <- errors.New("bind: address already in use")

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "address already in use")
	case <-time.After(2 * time.Second):
		t.Fatal("service did not report the failure")
	}
}

func TestHubService_StopsOnCancel(t *testing.T) {
	svc := NewHubService(websocket.NewHub())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub service did not stop")
	}
}
