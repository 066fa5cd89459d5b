package ws

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades connections and registers them with the hub. Clients are
// listeners: they receive forecast pushes and send nothing meaningful back.
// A newly connected client immediately gets the latest forecast snapshot, if
// one exists.
type Handler struct {
	hub *Hub

	mu       sync.RWMutex
	snapshot []byte
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// SetSnapshot stores the message replayed to newly connecting clients.
func (h *Handler) SetSnapshot(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = msg
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := newClient(h.hub, conn)
	h.hub.Register(client)
	go client.writePump()

	h.mu.RLock()
	snapshot := h.snapshot
	h.mu.RUnlock()
	if snapshot != nil {
		select {
		case client.send <- snapshot:
		default:
		}
	}

	h.readPump(client)
}

// readPump drains and discards client messages until the connection closes.
func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
	}
}
