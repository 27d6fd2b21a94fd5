// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/metrics"
)

// Message types.
const (
	MessageTypeVehicleState = "vehicle_state"
	MessageTypeTierChanged  = "tier_changed"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Message is the envelope written to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type tenantMessage struct {
	tenantID string
	msg      Message
}

// Hub maintains the set of active clients per tenant. Registration is
// synchronous; broadcasts are queued and fanned out by RunWithContext.
type Hub struct {
	tenants   map[string]map[*Client]struct{}
	broadcast chan tenantMessage
	mu        sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		tenants:   make(map[string]map[*Client]struct{}),
		broadcast: make(chan tenantMessage, 256),
	}
}

// RunWithContext fans out queued broadcasts until ctx is done, then closes
// every client.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case m := <-h.broadcast:
			h.deliver(m)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

func (h *Hub) String() string { return "websocket-hub" }

// Register adds c to its tenant's set.
func (h *Hub) Register(c *Client) {
	h.add(c)
}

// Unregister removes c and closes its send channel. It is a no-op for
// clients that are already gone.
func (h *Hub) Unregister(c *Client) {
	h.remove(c, false)
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	set, ok := h.tenants[c.tenantID]
	if !ok {
		set = make(map[*Client]struct{})
		h.tenants[c.tenantID] = set
	}
	set[c] = struct{}{}
	total := h.countLocked()
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Debug().Str("tenant_id", c.tenantID).Int("total_clients", total).Msg("stream client connected")
}

// remove drops c and closes its send channel. dropped marks a slow client.
func (h *Hub) remove(c *Client, dropped bool) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	total := h.countLocked()
	h.mu.Unlock()

	if !removed {
		return
	}
	metrics.WSConnections.Set(float64(total))
	if dropped {
		metrics.WSClientsDropped.Inc()
		logging.Warn().Str("tenant_id", c.tenantID).Uint64("client_id", c.id).Msg("dropping slow stream client")
		return
	}
	logging.Debug().Str("tenant_id", c.tenantID).Int("total_clients", total).Msg("stream client disconnected")
}

func (h *Hub) removeLocked(c *Client) bool {
	set, ok := h.tenants[c.tenantID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.tenants, c.tenantID)
	}
	return true
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.tenants {
		n += len(set)
	}
	return n
}

// deliver writes m to every client of its tenant in client ID order. Sends
// happen under the read lock so no client can be closed mid-send.
func (h *Hub) deliver(m tenantMessage) {
	h.mu.RLock()
	set := h.tenants[m.tenantID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var slow []*Client
	for _, c := range clients {
		select {
		case c.send <- m.msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.remove(c, true)
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	closed := 0
	for tenantID, set := range h.tenants {
		for c := range set {
			close(c.send)
			closed++
		}
		delete(h.tenants, tenantID)
	}
	h.mu.Unlock()

	metrics.WSConnections.Set(0)
	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
}

// Broadcast queues a message for every client of tenantID. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(tenantID, messageType string, data interface{}) {
	select {
	case h.broadcast <- tenantMessage{tenantID: tenantID, msg: Message{Type: messageType, Data: data}}:
	default:
		logging.Warn().Str("message_type", messageType).Str("tenant_id", tenantID).Msg("broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

// TenantClientCount returns the number of clients connected for one tenant.
func (h *Hub) TenantClientCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (h *Hub) isRegisteredLocked(c *Client) bool {
	_, ok := h.tenants[c.tenantID][c]
	return ok
}
