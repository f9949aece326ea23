// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newHubClient registers a connection-less client directly with the hub's
// internal map, bypassing the pumps.
func newHubClient(h *Hub) *Client {
	c := &Client{
		id:   clientIDCounter.Add(1),
		hub:  h,
		send: make(chan Message, 256),
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func TestHub_BroadcastAlarmCount(t *testing.T) {
	h := NewHub()
	c1 := newHubClient(h)
	c2 := newHubClient(h)

	h.BroadcastAlarmCountChanged(3)
	h.broadcastToClients(<-h.broadcast)

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			assert.Equal(t, MessageTypeAlarmCountChanged, msg.Type)
			data, ok := msg.Data.(AlarmCountData)
			require.True(t, ok)
			assert.Equal(t, 3, data.Count)
		default:
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := NewHub()
	slow := &Client{
		id:   clientIDCounter.Add(1),
		hub:  h,
		send: make(chan Message), // unbuffered, never drained
	}
	h.mu.Lock()
	h.clients[slow] = true
	h.mu.Unlock()

	h.broadcastToClients(Message{Type: MessageTypeGlobalVariablesChanged})

	assert.Equal(t, 0, h.GetClientCount())
	// send channel was closed on drop
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_RunWithContext(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.RunWithContext(ctx) }()

	client := &Client{id: clientIDCounter.Add(1), hub: h, send: make(chan Message, 256)}
	h.Register <- client

	require.Eventually(t, func() bool { return h.GetClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	h.BroadcastGlobalVariablesChanged([]string{"setpoint"})
	select {
	case msg := <-client.send:
		assert.Equal(t, MessageTypeGlobalVariablesChanged, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	assert.Equal(t, 0, h.GetClientCount())
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.RunWithContext(ctx) }()

	client := &Client{id: clientIDCounter.Add(1), hub: h, send: make(chan Message, 256)}
	h.Register <- client
	require.Eventually(t, func() bool { return h.GetClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	h.Unregister <- client
	require.Eventually(t, func() bool { return h.GetClientCount() == 0 },
		time.Second, 10*time.Millisecond)

	_, open := <-client.send
	assert.False(t, open)
}
