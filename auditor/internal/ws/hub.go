package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wasteaudit/wasteaudit/auditor/internal/api"
	"github.com/wasteaudit/wasteaudit/auditor/internal/store"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingEvery    = idleTimeout / 2
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the JSON envelope of every frame.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub streams result snapshots to WebSocket subscribers. Only the latest
// snapshot is kept: a subscriber that falls behind skips straight to it
// instead of receiving every intermediate frame.
type Hub struct {
	results  *store.Memory
	interval time.Duration
	kick     chan struct{}
	done     chan struct{}

	mu     sync.Mutex
	frame  []byte
	subs   map[chan struct{}]struct{}
	closed bool
}

// New creates a Hub that reads from results and publishes every interval.
func New(results *store.Memory, interval time.Duration) *Hub {
	return &Hub{
		results:  results,
		interval: interval,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		subs:     make(map[chan struct{}]struct{}),
	}
}

// Run publishes on every tick and on every Notify until ctx is cancelled,
// then disconnects all subscribers.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.closed = true
			h.mu.Unlock()
			close(h.done)
			return
		case <-t.C:
		case <-h.kick:
		}
		h.publish()
	}
}

// Notify schedules a publish ahead of the next tick. Calls made while one
// is already pending are coalesced.
func (h *Hub) Notify() {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and writes the current snapshot, then
// every newer one, until the client leaves or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // the upgrader has replied
	}
	defer conn.Close()

	ready, ok := h.subscribe()
	if !ok {
		h.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		return
	}
	defer h.unsubscribe(ready)
	remote := conn.RemoteAddr().String()
	slog.Debug("ws: subscriber joined", "remote", remote)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		drain(conn)
	}()

	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-ready:
			if err := h.write(conn, websocket.TextMessage, h.latest()); err != nil {
				slog.Debug("ws: write failed", "remote", remote, "err", err)
				return
			}
		case <-ping.C:
			if err := h.write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			slog.Debug("ws: subscriber left", "remote", remote)
			return
		case <-h.done:
			h.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		}
	}
}

// subscribe registers a wake-up channel that already holds a signal, so
// the first loop iteration writes a fresh snapshot.
func (h *Hub) subscribe() (chan struct{}, bool) {
	frame, err := h.encode()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	if err == nil {
		h.frame = frame
	}
	ready := make(chan struct{}, 1)
	ready <- struct{}{}
	h.subs[ready] = struct{}{}
	return ready, true
}

func (h *Hub) unsubscribe(ready chan struct{}) {
	h.mu.Lock()
	delete(h.subs, ready)
	h.mu.Unlock()
}

func (h *Hub) publish() {
	frame, err := h.encode()
	if err != nil {
		slog.Error("ws: encode snapshot", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = frame
	for ready := range h.subs {
		select {
		case ready <- struct{}{}:
		default: // already signalled
		}
	}
}

func (h *Hub) latest() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame
}

func (h *Hub) encode() ([]byte, error) {
	return json.Marshal(Message{Event: "snapshot", Data: api.BuildSnapshot(h.results)})
}

func (h *Hub) write(conn *websocket.Conn, kind int, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	return conn.WriteMessage(kind, data)
}

// drain discards client frames so control frames are processed, and
// returns once the peer closes or stays silent past idleTimeout.
func drain(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(idleTimeout)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
