package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"tarot-room-be/internal/broadcast"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/reading"
)

// room holds the clients watching one session and the broadcaster
// subscription feeding them.
type room struct {
	sessionID string
	clients   map[*Client]struct{}
	cancel    context.CancelFunc
}

type Hub struct {
	rooms map[string]*room

	register   chan *Client
	unregister chan *Client
	// dropped receives rooms whose broadcaster subscription ended.
	dropped chan *room
	done    chan struct{}

	mu sync.RWMutex

	broadcaster broadcast.Broadcaster
	logger      logger.ILogger
}

func NewHub(b broadcast.Broadcaster, log logger.ILogger) *Hub {
	return &Hub{
		rooms:       make(map[string]*room),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		dropped:     make(chan *room),
		done:        make(chan struct{}),
		broadcaster: b,
		logger:      log,
	}
}

// Run serves registrations until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.join(ctx, client)

		case client := <-h.unregister:
			h.leave(client)

		case r := <-h.dropped:
			h.mu.Lock()
			if h.rooms[r.sessionID] == r {
				for c := range r.clients {
					close(c.Send)
				}
				delete(h.rooms, r.sessionID)
				h.logger.Warn("Hub", "Session stream ended, clients disconnected", map[string]interface{}{"session_id": r.sessionID, "clients": len(r.clients)})
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) join(ctx context.Context, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[client.SessionID]
	if !ok {
		roomCtx, cancel := context.WithCancel(ctx)
		events, err := h.broadcaster.Subscribe(roomCtx, client.SessionID)
		if err != nil {
			cancel()
			h.logger.Error("Hub", "Failed to subscribe session", map[string]interface{}{"session_id": client.SessionID, "error": err.Error()})
			close(client.Send)
			return
		}
		r = &room{sessionID: client.SessionID, clients: make(map[*Client]struct{}), cancel: cancel}
		h.rooms[client.SessionID] = r
		go h.pump(r, events)
	}

	r.clients[client] = struct{}{}
	client.Send <- h.encode(gateway.StreamMessage{Type: gateway.StreamReady, SessionID: client.SessionID})
	h.logger.Info("Hub", "Client joined session", map[string]interface{}{
		"session_id": client.SessionID,
		"caller_id":  client.Caller.ID,
		"clients":    len(r.clients),
	})
}

func (h *Hub) leave(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[client.SessionID]
	if !ok {
		return
	}
	if _, ok := r.clients[client]; !ok {
		return
	}
	delete(r.clients, client)
	close(client.Send)

	if len(r.clients) == 0 {
		r.cancel()
		delete(h.rooms, r.sessionID)
		h.logger.Info("Hub", "Session room closed", map[string]interface{}{"session_id": r.sessionID})
	}
}

// pump forwards one session's events to its clients in commit order.
func (h *Hub) pump(r *room, events <-chan reading.ChangeEvent) {
	for ev := range events {
		ev := ev
		h.deliver(r, h.encode(gateway.StreamMessage{Type: gateway.StreamChange, SessionID: r.sessionID, Data: &ev}))
	}

	select {
	case h.dropped <- r:
	case <-h.done:
	}
}

// deliver never blocks: a client whose buffer is full is disconnected and
// recovers by reconnecting.
func (h *Hub) deliver(r *room, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range r.clients {
		select {
		case c.Send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Hub", "Client send buffer full, disconnecting", map[string]interface{}{"session_id": r.sessionID, "caller_id": c.Caller.ID})
		h.Unregister(c)
	}
}

// Unregister removes a client without blocking the caller.
func (h *Hub) Unregister(c *Client) {
	go func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
}

// Register adds a client to its session room. It reports false once the hub
// has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Clients returns the number of connections watching a session.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[sessionID]; ok {
		return len(r.clients)
	}
	return 0
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.done)
	for id, r := range h.rooms {
		r.cancel()
		for c := range r.clients {
			close(c.Send)
		}
		delete(h.rooms, id)
	}
	h.logger.Info("Hub", "Stopped", nil)
}

func (h *Hub) encode(msg gateway.StreamMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode stream message", map[string]interface{}{"error": err.Error()})
	}
	return data
}
