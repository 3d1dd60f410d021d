package render

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/models"
	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type staticFeed struct {
	mu      sync.Mutex
	entries []models.FeedEntry
}

func (f *staticFeed) Attach(_ context.Context, fn func([]models.FeedEntry)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.entries)
	return nil
}

func dial(t *testing.T, hub *Hub, feed Attacher) *websocket.Conn {
	t.Helper()
	e := echo.New()
	e.GET("/ws", hub.Handler(feed))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	assert.Equal(t, err, nil)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev Event
	assert.Equal(t, conn.ReadJSON(&ev), nil)
	return ev
}

func TestHubSnapshotThenChanges(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	feed := &staticFeed{entries: []models.FeedEntry{
		{ID: "a", Timestamp: &ts, AuthorName: "Ada", Body: models.TextBody("hi"), Visible: true},
		{ID: "p", AuthorName: "Ada", Body: models.PendingBody(), Visible: true},
	}}
	hub := NewHub()
	conn := dial(t, hub, feed)

	ev := readEvent(t, conn)
	assert.Equal(t, ev.Type, EventSnapshot)
	assert.Equal(t, len(ev.Entries), 2)
	assert.Equal(t, ev.Entries[0].Text, "hi")
	assert.Equal(t, ev.Entries[1].ImageURL, models.LoadingImageURL)
	assert.Equal(t, hub.Clients(), 1)

	hub.OnEntryChanged(models.FeedEntry{ID: "p", AuthorName: "Ada", Body: models.ImageBody("https://cdn/x.png")})
	ev = readEvent(t, conn)
	assert.Equal(t, ev.Type, EventChanged)
	assert.Equal(t, ev.Entry.ID, "p")
	assert.Equal(t, ev.Entry.ImageURL, "https://cdn/x.png")

	hub.OnEntryRemoved("a")
	ev = readEvent(t, conn)
	assert.Equal(t, ev, Event{Type: EventRemoved, ID: "a"})
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, &staticFeed{})
	readEvent(t, conn)
	assert.Equal(t, hub.Clients(), 1)

	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, hub.Clients(), 0)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, &staticFeed{})
	readEvent(t, conn)

	hub.Close()
	assert.Equal(t, hub.Clients(), 0)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.NotEqual(t, err, nil)
}

// lateFeed gives up on the attach but keeps fn, running it later like a
// loop task that was queued before the request context ended
type lateFeed struct {
	mu sync.Mutex
	fn func([]models.FeedEntry)
}

func (f *lateFeed) Attach(_ context.Context, fn func([]models.FeedEntry)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
	return context.Canceled
}

func (f *lateFeed) run() {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	fn(nil)
}

func TestHubIgnoresAttachAfterHandlerGaveUp(t *testing.T) {
	hub := NewHub()
	feed := &lateFeed{}
	conn := dial(t, hub, feed)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.NotEqual(t, err, nil)

	feed.run()
	assert.Equal(t, hub.Clients(), 0)

	hub.OnEntryRemoved("a")
	assert.Equal(t, hub.Clients(), 0)
}

func TestHubRefusesClientsAfterClose(t *testing.T) {
	hub := NewHub()
	hub.Close()

	conn := dial(t, hub, &staticFeed{})
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.NotEqual(t, err, nil)
	assert.Equal(t, hub.Clients(), 0)
}
