package render

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	clientBuffer = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10
)

// Event types pushed to browsers
const (
	EventSnapshot = "snapshot"
	EventChanged  = "changed"
	EventRemoved  = "removed"
)

// Event is one websocket frame
type Event struct {
	Type    string             `json:"type"`
	Entries []models.EntryView `json:"entries,omitempty"`
	Entry   *models.EntryView  `json:"entry,omitempty"`
	ID      string             `json:"id,omitempty"`
}

// Attacher hands out the current feed such that later renderer
// notifications are strictly newer than it
type Attacher interface {
	Attach(ctx context.Context, fn func(entries []models.FeedEntry)) error
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	detached  bool // guarded by Hub.mu; a detached client is never registered again
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub is the websocket renderer. Every connected browser gets a snapshot
// and then each change, in the order the feed emits them. Clients that
// fall behind by more than clientBuffer frames are dropped.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) OnEntryChanged(entry models.FeedEntry) {
	view := entry.View()
	h.broadcast(Event{Type: EventChanged, Entry: &view})
}

func (h *Hub) OnEntryRemoved(id string) {
	h.broadcast(Event{Type: EventRemoved, ID: id})
}

// Clients returns the number of connected browsers
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.detachLocked(c)
	}
}

// Handler upgrades the request and streams feed events until the browser leaves
func (h *Hub) Handler(attacher Attacher) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			glog.Warningf("[hub]upgrade = %s\n", err)
			return nil
		}

		cl := &client{conn: conn, send: make(chan []byte, clientBuffer)}
		err = attacher.Attach(c.Request().Context(), func(entries []models.FeedEntry) {
			data, err := json.Marshal(Event{Type: EventSnapshot, Entries: models.Views(entries)})
			if err != nil {
				glog.Errorf("[hub]snapshot encode = %s\n", err)
				return
			}
			// the attach may run after the handler gave up on it
			if !h.register(cl, data) {
				glog.V(1).Infof("[hub]client left before its snapshot\n")
			}
		})
		if err != nil {
			glog.Warningf("[hub]attach = %s\n", err)
			h.unregister(cl)
			conn.Close()
			return nil
		}

		go h.writePump(cl)
		h.readPump(cl)
		return nil
	}
}

// register queues the snapshot and adds the client, unless it already left
func (h *Hub) register(c *client, snapshot []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.detached {
		return false
	}
	if h.closed {
		h.detachLocked(c)
		return false
	}
	c.send <- snapshot
	h.clients[c] = struct{}{}
	glog.V(1).Infof("[hub]client connected (%d)\n", len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.detached {
		h.detachLocked(c)
		glog.V(1).Infof("[hub]client disconnected (%d)\n", len(h.clients))
	}
}

func (h *Hub) detachLocked(c *client) {
	c.detached = true
	delete(h.clients, c)
	c.close()
}

func (h *Hub) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		glog.Errorf("[hub]encode %s = %s\n", event.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			glog.Warningf("[hub]dropping slow client\n")
			h.detachLocked(c)
		}
	}
}

// readPump discards inbound frames; it exists to notice the browser leaving
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Warningf("[hub]unexpected close = %s\n", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
