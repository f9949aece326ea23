// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"

	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/websocket"
)

// StreamStatus is the connectivity state of the push channel.
type StreamStatus string

const (
	StreamIdle         StreamStatus = "idle"
	StreamConnecting   StreamStatus = "connecting"
	StreamConnected    StreamStatus = "connected"
	StreamError        StreamStatus = "error"
	StreamDisconnected StreamStatus = "disconnected"
)

// Reconnect backoff: 1s, 2s, 4s, ... capped at 32s, reset after a
// successful read.
const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 32 * time.Second
)

// StreamSnapshot is the read-only view consumers poll.
type StreamSnapshot struct {
	Status     StreamStatus
	AlarmCount int
	// LastUpdate is when the server last signalled a change. The stream
	// carries no payload worth rendering; it only tells consumers their
	// REST snapshot may be stale.
	LastUpdate time.Time
}

// Stream consumes the server's push channel. It owns connectivity state and
// the change timestamps, never alarm data itself.
type Stream struct {
	url   string
	cache *Cache

	mu         sync.Mutex
	status     StreamStatus
	alarmCount int
	lastUpdate time.Time
}

// NewStream builds a consumer for the /api/v1/ws endpoint. url uses the
// ws:// or wss:// scheme.
func NewStream(url string, cache *Cache) *Stream {
	return &Stream{url: url, cache: cache, status: StreamIdle}
}

// Snapshot returns the current stream state.
func (s *Stream) Snapshot() StreamSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamSnapshot{Status: s.status, AlarmCount: s.alarmCount, LastUpdate: s.lastUpdate}
}

// Run connects and consumes until ctx is canceled, reconnecting with
// exponential backoff. Implements suture.Service.
func (s *Stream) Run(ctx context.Context) error {
	delay := reconnectBaseDelay

	for {
		if ctx.Err() != nil {
			s.setStatus(StreamDisconnected)
			return ctx.Err()
		}

		s.setStatus(StreamConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			s.setStatus(StreamError)
			logging.Error().Err(err).Dur("retry_in", delay).Msg("Stream connection failed")
			select {
			case <-ctx.Done():
				s.setStatus(StreamDisconnected)
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = nextDelay(delay)
			continue
		}

		s.setStatus(StreamConnected)
		logging.Info().Str("url", s.url).Msg("Stream connected")
		delay = reconnectBaseDelay

		if err := s.consume(ctx, conn); err != nil && ctx.Err() == nil {
			s.setStatus(StreamError)
			logging.Warn().Err(err).Dur("retry_in", delay).Msg("Stream connection lost")
			select {
			case <-ctx.Done():
				s.setStatus(StreamDisconnected)
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = nextDelay(delay)
			continue
		}

		s.setStatus(StreamDisconnected)
		return ctx.Err()
	}
}

func nextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	return delay
}

func (s *Stream) dial(ctx context.Context) (*gws.Conn, error) {
	header := http.Header{}
	if token, _, ok := s.cache.LoadAuth(); ok {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := gws.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, header)
	return conn, err
}

// consume reads messages until the connection breaks or ctx is canceled.
func (s *Stream) consume(ctx context.Context, conn *gws.Conn) error {
	defer conn.Close()

	// Unblock ReadMessage on shutdown
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warn().Err(err).Msg("Stream message decode failed")
			continue
		}
		s.handleMessage(&msg)
	}
}

func (s *Stream) handleMessage(msg *websocket.Message) {
	switch msg.Type {
	case websocket.MessageTypeAlarmCountChanged:
		var payload websocket.AlarmCountData
		if err := remarshal(msg.Data, &payload); err != nil {
			logging.Warn().Err(err).Msg("Bad alarm count payload")
			return
		}
		s.mu.Lock()
		s.alarmCount = payload.Count
		s.lastUpdate = time.Now()
		s.mu.Unlock()

	case websocket.MessageTypeGlobalVariablesChanged, websocket.MessageTypeItemValuesChanged:
		s.mu.Lock()
		s.lastUpdate = time.Now()
		s.mu.Unlock()
	}
}

func (s *Stream) setStatus(status StreamStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// remarshal converts a decoded-into-any payload into a typed struct.
func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
