package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/eventface/internal/models"
	"github.com/your-org/eventface/internal/observability"
	"github.com/your-org/eventface/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one connected WebSocket consumer, optionally watching a
// single batch.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	batchID uuid.UUID // uuid.Nil receives every batch
}

type message struct {
	batchID uuid.UUID
	data    []byte
}

// Hub fans batch progress out to WebSocket clients. The client set is
// owned by the Run goroutine.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	connected  atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Run starts the hub event loop until ctx is done. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			close(h.done)
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.connected.Add(1)
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "batch_id", client.batchID)

		case client := <-h.unregister:
			h.drop(client)

		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.batchID != uuid.Nil && client.batchID != msg.batchID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Slow client, disconnect.
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.connected.Add(-1)
	observability.WSConnections.Dec()
	slog.Debug("ws client disconnected")
}

// BroadcastProgress sends a progress update to every client watching its
// batch. It drops the update when the hub is backed up.
func (h *Hub) BroadcastProgress(prog models.BatchProgress) {
	evt := dto.WSEvent{Type: "batch_progress", BatchID: prog.BatchID, Progress: prog}
	if prog.Done {
		evt.Type = "batch_done"
	}
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{batchID: prog.BatchID, data: data}:
	default:
		slog.Warn("ws broadcast queue full, dropping progress", "batch_id", prog.BatchID)
	}
}

// HandleWS upgrades the request. ?batch_id= limits the stream to one batch.
func (h *Hub) HandleWS(c *gin.Context) {
	var filter uuid.UUID
	if s := c.Query("batch_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch_id"})
			return
		}
		filter = id
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, 64),
		batchID: filter,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	// Incoming messages are ignored; reading detects disconnection.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
