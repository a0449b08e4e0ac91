package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/status"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon only listens on the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsCommand is a command sent by a websocket client.
type wsCommand struct {
	Door   string `json:"door"`
	Target string `json:"target"`
}

// wsReply reports the outcome of a websocket command.
type wsReply struct {
	Door   string `json:"door"`
	Target string `json:"target,omitempty"`
	Error  string `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans live door events out to websocket clients. A client that cannot
// keep up is disconnected rather than blocking the doors.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[*client]struct{}), log: logger}
}

// Notify broadcasts a door event, including level-triggered repeats.
func (h *Hub) Notify(door string, ev logic.Event) {
	data, err := json.Marshal(status.NewEventJSON(door, ev))
	if err != nil {
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("websocket client too slow, disconnecting", "remote_addr", c.conn.RemoteAddr())
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// serve upgrades the request, sends initial and then streams events.
// Client messages are passed to onCommand.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, initial []byte, onCommand func(wsCommand) wsReply) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	c.send <- initial
	h.add(c)
	h.log.Debug("websocket client connected", "remote_addr", conn.RemoteAddr())

	go h.writePump(c)
	h.readPump(c, onCommand)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			break
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func (h *Hub) readPump(c *client, onCommand func(wsCommand) wsReply) {
	defer func() {
		h.remove(c)
		h.log.Debug("websocket client disconnected", "remote_addr", c.conn.RemoteAddr())
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			h.log.Warn("websocket: failed to parse message", "error", err)
			continue
		}
		reply, _ := json.Marshal(onCommand(cmd))
		h.reply(c, reply)
	}
}

func (h *Hub) reply(c *client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
