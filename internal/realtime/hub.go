// Package realtime delivers best-effort live notifications to connected
// viewers over WebSocket. Mutation services publish an event after each
// committed write; delivery failures are swallowed and never reach the
// mutation caller.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bissquit/status-garden/internal/domain"
)

// Room name prefixes. Clients declare interest in a specific service or
// incident by joining its room.
const (
	serviceRoomPrefix  = "service-"
	incidentRoomPrefix = "incident-"
)

// ServiceRoom returns the room name for a service.
func ServiceRoom(serviceID string) string {
	return serviceRoomPrefix + serviceID
}

// IncidentRoom returns the room name for an incident.
func IncidentRoom(incidentID string) string {
	return incidentRoomPrefix + incidentID
}

// Frame is the wire format for outbound and inbound messages.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatusMutator applies service status changes requested over the socket.
// Implemented by the catalog service so that socket-originated mutations
// share one code path with HTTP ones.
type StatusMutator interface {
	SetServiceStatus(ctx context.Context, serviceID string, status domain.ServiceStatus) (*domain.Service, error)
}

// envelope is a marshaled frame queued for delivery. An empty room means
// a global broadcast.
type envelope struct {
	room string
	data []byte
}

// roomRequest joins or leaves a client to a room.
type roomRequest struct {
	client *Client
	room   string
	leave  bool
}

// Config holds hub tuning knobs.
type Config struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	SendBufferSize int
}

// Hub tracks connected clients and room memberships and fans out
// broadcasts. All membership state is owned by the Run loop.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	register   chan *Client
	unregister chan *Client
	rooms      chan roomRequest
	broadcast  chan envelope

	clients    map[*Client]bool
	membership map[string]map[*Client]bool

	mutator StatusMutator
}

// NewHub creates a hub. SetStatusMutator must be called before serving
// connections if socket-originated status updates are wanted.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 16
	}

	return &Hub{
		cfg:        cfg,
		logger:     logger,
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		rooms:      make(chan roomRequest, 16),
		broadcast:  make(chan envelope, 256),
		clients:    make(map[*Client]bool),
		membership: make(map[string]map[*Client]bool),
	}
}

// SetStatusMutator wires the mutation entry point for updateServiceStatus
// messages. Called once during application setup.
func (h *Hub) SetStatusMutator(m StatusMutator) {
	h.mutator = m
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			ConnectedClients.Set(float64(len(h.clients)))
			h.logger.Debug("client connected", "client_id", client.id)

		case client := <-h.unregister:
			h.drop(client)

		case req := <-h.rooms:
			h.handleRoomRequest(req)

		case env := <-h.broadcast:
			h.deliver(env)

		case <-ctx.Done():
			for client := range h.clients {
				client.closeSend()
			}
			h.clients = make(map[*Client]bool)
			h.membership = make(map[string]map[*Client]bool)
			ConnectedClients.Set(0)
			return
		}
	}
}

// Broadcast publishes an event to every connected client.
func (h *Hub) Broadcast(event string, payload any) {
	h.publish("", event, payload)
}

// BroadcastRoom publishes an event to clients that joined the given room.
func (h *Hub) BroadcastRoom(room, event string, payload any) {
	h.publish(room, event, payload)
}

// BroadcastService publishes an event to clients watching one service.
func (h *Hub) BroadcastService(serviceID, event string, payload any) {
	h.publish(ServiceRoom(serviceID), event, payload)
}

// BroadcastIncident publishes an event to clients watching one incident.
func (h *Hub) BroadcastIncident(incidentID, event string, payload any) {
	h.publish(IncidentRoom(incidentID), event, payload)
}

// publish marshals a frame and queues it. The mutation path must never
// block on delivery, so a full queue drops the message.
func (h *Hub) publish(room, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal broadcast payload", "event", event, "error", err)
		return
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		h.logger.Error("marshal broadcast frame", "event", event, "error", err)
		return
	}

	select {
	case h.broadcast <- envelope{room: room, data: frame}:
		BroadcastsTotal.WithLabelValues(event).Inc()
	default:
		DroppedMessages.Inc()
		h.logger.Warn("broadcast queue full, dropping message", "event", event)
	}
}

func (h *Hub) deliver(env envelope) {
	targets := h.clients
	if env.room != "" {
		targets = h.membership[env.room]
	}

	for client := range targets {
		if !client.trySend(env.data) {
			// Slow consumer: drop the connection rather than block.
			h.drop(client)
		}
	}
}

func (h *Hub) handleRoomRequest(req roomRequest) {
	if !h.clients[req.client] {
		return
	}
	members := h.membership[req.room]
	if req.leave {
		delete(members, req.client)
		if len(members) == 0 {
			delete(h.membership, req.room)
		}
		return
	}
	if members == nil {
		members = make(map[*Client]bool)
		h.membership[req.room] = members
	}
	members[req.client] = true
}

func (h *Hub) drop(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	for room, members := range h.membership {
		delete(members, client)
		if len(members) == 0 {
			delete(h.membership, room)
		}
	}
	client.closeSend()
	ConnectedClients.Set(float64(len(h.clients)))
	h.logger.Debug("client disconnected", "client_id", client.id)
}
