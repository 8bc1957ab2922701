package view

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/tair/product-console/pkg/logger"
)

// Conn is the part of a websocket connection the hub uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

type client struct {
	id        string
	sessionID string
	conn      Conn
	send      chan []byte
}

// Hub fans re-render messages out to the websocket clients of each page session
type Hub struct {
	clients    map[string]*client
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub; start it with Run
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			logger.Logger.Debug().
				Str("client_id", c.id).
				Str("session_id", c.sessionID).
				Msg("View client registered")

		case c := <-h.unregister:
			h.mu.Lock()
			if old, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(old.send)
			}
			h.mu.Unlock()
			logger.Logger.Debug().
				Str("client_id", c.id).
				Msg("View client unregistered")

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Clients returns how many websocket clients are connected
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Session returns a renderer that targets one page session
func (h *Hub) Session(sessionID string) Renderer {
	return RendererFunc(func(ctx context.Context, msg Message) {
		h.sendToSession(ctx, sessionID, msg)
	})
}

func (h *Hub) sendToSession(ctx context.Context, sessionID string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Error(ctx).Err(err).Msg("Failed to marshal view message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.sessionID != sessionID {
			continue
		}
		select {
		case c.send <- payload:
		default:
			logger.Warn(ctx).
				Str("client_id", c.id).
				Msg("View client too slow, message dropped")
		}
	}
}

// Serve pumps messages to conn until the browser disconnects. initial is
// written first so the page starts from a full snapshot.
func (h *Hub) Serve(ctx context.Context, sessionID string, conn Conn, initial Message) {
	c := &client{
		id:        uuid.NewString(),
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, 256),
	}

	if payload, err := json.Marshal(initial); err == nil {
		c.send <- payload
	}

	select {
	case h.register <- c:
	case <-h.done:
		return
	}
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	go func() {
		for msg := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug(ctx).Err(err).Msg("View write failed")
				return
			}
		}
	}()

	// the browser only sends keep-alives; a read error means it went away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			logger.Debug(ctx).Err(err).Str("session_id", sessionID).Msg("View client disconnected")
			return
		}
	}
}
