// Package ws streams scan results to dashboard subscribers.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/0xfreki/edgescan/internal/edge"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

type client struct {
	conn *websocket.Conn
	out  chan message
	done chan struct{}
}

type message struct {
	Type          string             `json:"type"`
	Opportunities []edge.Opportunity `json:"opportunities,omitempty"`
	At            time.Time          `json:"at"`
}

// Hub fans scan results out to connected websocket clients. New subscribers
// immediately receive the latest scan so the dashboard is never empty.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  []edge.Opportunity
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Broadcast sends a scan's results to every subscriber. Clients with a full
// send buffer miss the update rather than blocking the scan loop.
func (h *Hub) Broadcast(opps []edge.Opportunity) {
	msg := message{Type: "scan", Opportunities: opps, At: time.Now().UTC()}

	h.mu.Lock()
	h.latest = opps
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- msg:
		default:
		}
	}
}

// Clients returns the current subscriber count.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS is the /ws handler.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	cl := &client{conn: conn, out: make(chan message, 16), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	latest := h.latest
	h.mu.Unlock()
	log.Debug().Str("remote", r.RemoteAddr).Msg("Dashboard client connected")

	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		close(cl.done)
	}()

	go h.writer(cl)

	if latest != nil {
		select {
		case cl.out <- message{Type: "scan", Opportunities: latest, At: time.Now().UTC()}:
		default:
		}
	}

	conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writer(cl *client) {
	ping := time.NewTicker(45 * time.Second)
	defer ping.Stop()
	for {
		select {
		case msg := <-cl.out:
			if err := cl.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.done:
			return
		}
	}
}
