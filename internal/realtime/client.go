package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bissquit/status-garden/internal/catalog"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxMessageSize = 4096

// Client is one WebSocket connection. The hub owns membership state; the
// client owns its connection and send queue.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	// The hub closes send when it drops the client, while readPump may
	// still be queueing ack and error frames. closed guards the channel
	// so queue and close never race.
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// trySend queues data for the write pump. Reports false when the queue
// is full or the hub already dropped the client.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend shuts the send queue exactly once. Only the hub calls this.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// joinServicePayload is the data of a joinServiceRoom message.
type joinServicePayload struct {
	ServiceID string `json:"service_id"`
}

// joinIncidentPayload is the data of a joinIncidentRoom message.
type joinIncidentPayload struct {
	IncidentID string `json:"incident_id"`
}

// updateServiceStatusPayload is the data of an updateServiceStatus message.
type updateServiceStatusPayload struct {
	ServiceID string `json:"service_id"`
	Status    string `json:"status"`
}

// Handler upgrades HTTP connections and attaches them to the hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler. Origins are checked against the
// same allowlist as the CORS middleware; "*" allows any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originsSet[origin] || originsSet["*"]
			},
		},
	}
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.hub.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		id:   uuid.New().String(),
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, h.hub.cfg.SendBufferSize),
	}
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads inbound frames until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	pongWait := c.hub.cfg.PingInterval + c.hub.cfg.WriteTimeout
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleFrame(frame)
	}
}

// writePump writes queued frames and pings until the send channel closes.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleFrame(frame Frame) {
	switch frame.Event {
	case "joinServiceRoom":
		var p joinServicePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.ServiceID == "" {
			c.sendError("service_id is required")
			return
		}
		c.hub.rooms <- roomRequest{client: c, room: ServiceRoom(p.ServiceID)}

	case "joinIncidentRoom":
		var p joinIncidentPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.IncidentID == "" {
			c.sendError("incident_id is required")
			return
		}
		c.hub.rooms <- roomRequest{client: c, room: IncidentRoom(p.IncidentID)}

	case "updateServiceStatus":
		c.handleUpdateServiceStatus(frame)

	default:
		c.sendError("unknown event: " + frame.Event)
	}
}

// handleUpdateServiceStatus applies a status change through the shared
// mutation path. The resulting broadcasts come from the catalog service;
// only the ack or error frame is sent directly to this client.
func (c *Client) handleUpdateServiceStatus(frame Frame) {
	if c.hub.mutator == nil {
		c.sendError("status updates are not available")
		return
	}

	var p updateServiceStatusPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil || p.ServiceID == "" || p.Status == "" {
		c.sendError("service_id and status are required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	service, err := c.hub.mutator.SetServiceStatus(ctx, p.ServiceID, domain.ServiceStatus(p.Status))
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrServiceNotFound), errors.Is(err, catalog.ErrInvalidStatus):
			c.sendError(err.Error())
		default:
			c.hub.logger.Error("socket status update failed",
				"client_id", c.id, "service_id", p.ServiceID, "error", err)
			c.sendError("failed to update service status")
		}
		return
	}

	c.sendFrame("ack", map[string]any{
		"event":      "updateServiceStatus",
		"service_id": service.ID,
		"status":     service.Status,
	})
}

func (c *Client) sendError(message string) {
	c.sendFrame("error", map[string]string{"message": message})
}

// sendFrame queues a frame for this client only. A full queue drops the
// frame, consistent with best-effort delivery.
func (c *Client) sendFrame(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return
	}
	if !c.trySend(frame) {
		DroppedMessages.Inc()
	}
}
