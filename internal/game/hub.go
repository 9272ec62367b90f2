package game

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

const (
	HUB_BROADCAST_BUFFER = 100
	CLIENT_SEND_BUFFER   = 32
	WS_WRITE_TIMEOUT     = 10 * time.Second
)

// wsConn is the part of *websocket.Conn the hub writes through.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client owns one connection. All writes go through its send queue and a
// single writer goroutine, so a client sees messages in the order queued.
type Client struct {
	conn   wsConn
	userID string
	send   chan []byte
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// Hub fans round events out to connected websocket clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan interface{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan interface{}, HUB_BROADCAST_BUFFER),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.With(zap.String("component", "ws_hub")),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client connected", zap.String("user_id", client.userID), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.log.Debug("client disconnected", zap.String("user_id", client.userID), zap.Int("total", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			jsonMessage, err := json.Marshal(message)
			if err != nil {
				h.log.Warn("broadcast marshal failed", zap.Error(err))
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				client.enqueue(jsonMessage, h.log)
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast never blocks; messages are dropped when the buffer is full.
func (h *Hub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn("broadcast channel full, dropping message")
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	return h.attach(conn, userID)
}

func (h *Hub) attach(conn wsConn, userID string) *Client {
	client := &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, CLIENT_SEND_BUFFER),
		done:   make(chan struct{}),
	}
	go client.writeLoop(h.log)

	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
	return client
}

// UnregisterClient returns once the client's writer has flushed its queue and
// closed the connection.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
	client.close()
	<-client.done
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
}

// Send queues one message for this client only, behind anything already
// queued for it.
func (c *Client) Send(message interface{}, log *zap.Logger) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Warn("send marshal failed", zap.Error(err))
		return
	}
	c.enqueue(data, log)
}

// enqueue drops the message when the client is too slow to drain its queue.
func (c *Client) enqueue(data []byte, log *zap.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn("client send queue full, dropping message", zap.String("user_id", c.userID))
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) writeLoop(log *zap.Logger) {
	defer close(c.done)
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(WS_WRITE_TIMEOUT))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug("write failed", zap.String("user_id", c.userID), zap.Error(err))
		}
	}
}
