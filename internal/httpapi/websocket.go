package httpapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketdesk/internal/notify"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

const (
	wsPingInterval = 45 * time.Second
	wsReadDeadline = 90 * time.Second
	wsSendBuffer   = 64
)

type wsClient struct {
	conn *websocket.Conn
	out  chan notify.Event
	done chan struct{}
}

// Hub fans notifier events out to connected WebSocket clients. Slow clients
// have events dropped rather than blocking the rest.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	notifier *notify.Notifier
	log      *slog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a Hub subscribed to the notifier and starts its pump.
func NewHub(notifier *notify.Notifier, log *slog.Logger) *Hub {
	h := &Hub{
		clients:  make(map[*wsClient]struct{}),
		notifier: notifier,
		log:      log,
		stop:     make(chan struct{}),
	}
	go h.run()
	return h
}

// run forwards notifier events to every connected client.
func (h *Hub) run() {
	id, events := h.notifier.Subscribe(notify.DefaultBufSize)
	defer h.notifier.Unsubscribe(id)

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(e)
		case <-h.stop:
			return
		}
	}
}

// Close stops the pump and disconnects all clients.
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) broadcast(e notify.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- e:
		default:
		}
	}
}

// ServeWS upgrades the connection and streams events until the client goes
// away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &wsClient{
		conn: conn,
		out:  make(chan notify.Event, wsSendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	go c.writePump()

	conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(c.done)
}

func (c *wsClient) writePump() {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case e := <-c.out:
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}
		case <-ping.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
