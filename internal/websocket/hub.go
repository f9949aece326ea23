// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

// Package websocket pushes change notifications to connected dashboards.
// The server sends small trigger messages (alarm_count_changed,
// global_variables_changed); clients refetch the affected data over REST.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/metrics"
)

// Message types for websocket push.
const (
	MessageTypePing                   = "ping"
	MessageTypePong                   = "pong"
	MessageTypeAlarmCountChanged      = "alarm_count_changed"
	MessageTypeGlobalVariablesChanged = "global_variables_changed"
	MessageTypeItemValuesChanged      = "item_values_changed"
)

// Message is one websocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of subscribed clients and fans trigger messages out
// to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx is canceled, then closes every
// client. Designed for suture supervision.
//
// Channel selection is prioritized (shutdown, then lifecycle, then
// broadcast) so client state is consistent before messages are delivered;
// a bare select picks randomly among ready channels.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnectionsActive.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnectionsActive.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// broadcastToClients delivers message to every client in ID order. Clients
// whose send buffer is full are dropped; they reconnect and refetch.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.WithLabelValues(message.Type).Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSMessagesDropped.Inc()
		logging.Warn().Msg("dropping slow websocket client")
	}
	metrics.WSConnectionsActive.Set(float64(len(h.clients)))
}

// shutdown closes every client in ID order.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnectionsActive.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// AlarmCountData is the payload of an alarm_count_changed push.
type AlarmCountData struct {
	Timestamp string `json:"timestamp"`
	Count     int    `json:"count"`
}

// BroadcastAlarmCountChanged tells clients the active alarm count moved.
// Clients refetch the alarm list themselves.
func (h *Hub) BroadcastAlarmCountChanged(count int) {
	h.enqueue(Message{
		Type: MessageTypeAlarmCountChanged,
		Data: AlarmCountData{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Count:     count,
		},
	})
}

// BroadcastGlobalVariablesChanged tells clients one or more global variables
// were rewritten by the engine or an operator.
func (h *Hub) BroadcastGlobalVariablesChanged(names []string) {
	h.enqueue(Message{
		Type: MessageTypeGlobalVariablesChanged,
		Data: map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"names":     names,
		},
	})
}

// BroadcastItemValuesChanged tells clients item values moved.
func (h *Hub) BroadcastItemValuesChanged(itemIDs []string) {
	h.enqueue(Message{
		Type: MessageTypeItemValuesChanged,
		Data: map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"item_ids":  itemIDs,
		},
	})
}

// enqueue drops on the floor when the broadcast buffer is full; triggers are
// advisory and clients resync on reconnect.
func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", message.Type).
			Msg("broadcast channel full, dropping message")
	}
}
