package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from app origins; auth happens upstream.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub tracks websocket connections keyed by role and user id, and pushes
// events to the matching connection. One connection per role+id; a new
// join replaces the old connection.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// client's send channel is never closed. Shutdown is signalled through
// done instead, so a Notify that already holds the client can never send
// on a closed channel.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// joinMessage is the first frame a client must send after connecting.
type joinMessage struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

func clientKey(role, id string) string {
	return role + ":" + id
}

// Notify pushes an event to the recipient's connection, if any. Slow
// clients get dropped rather than blocking dispatch.
func (h *Hub) Notify(_ context.Context, ev Event) {
	logMisroute(ev)

	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[ws] marshal event type=%s: %v", ev.Type, err)
		return
	}

	key := clientKey(ev.Role, ev.RecipientID)
	h.mu.RLock()
	c, ok := h.clients[key]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("[ws] client %s too slow, dropping connection", key)
		h.remove(key, c)
	}
}

// ServeWS upgrades an HTTP request to a websocket and waits for the join
// frame before registering the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))

	var join joinMessage
	if err := conn.ReadJSON(&join); err != nil || join.ID == "" ||
		(join.Role != RolePatient && join.Role != RoleNurse) {
		log.Printf("[ws] bad join frame: %v", err)
		conn.Close()
		return
	}

	key := clientKey(join.Role, join.ID)
	c := newClient(conn)
	h.register(key, c)

	log.Printf("[ws] %s connected", key)
	go h.writePump(key, c)
	go h.readPump(key, c)
}

// register installs a connection for its role+id key, shutting down any
// previous connection for the same key.
func (h *Hub) register(key string, c *client) {
	h.mu.Lock()
	if old, ok := h.clients[key]; ok {
		old.shutdown()
	}
	h.clients[key] = c
	h.mu.Unlock()
}

// Close tears down every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, c := range h.clients {
		c.shutdown()
		delete(h.clients, key)
	}
}

func (h *Hub) remove(key string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.shutdown()
	if current, ok := h.clients[key]; ok && current == c {
		delete(h.clients, key)
	}
}

// readPump drains inbound frames to keep pong handling alive. Clients
// only speak on join; everything else is ignored.
func (h *Hub) readPump(key string, c *client) {
	defer func() {
		h.remove(key, c)
		c.conn.Close()
	}()
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(key string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
