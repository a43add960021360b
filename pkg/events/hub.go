/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512

	defaultClientBuffer = 64
)

// Hub pushes events to connected websocket clients. Each client gets a
// bounded queue; when it is full the event is dropped for that client only.
type Hub struct {
	log          logger.Logger
	upgrader     websocket.Upgrader
	bufferSize   int
	allowOrigins map[string]struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

var _ Sink = (*Hub)(nil)

// NewHub creates a hub. An empty allowedOrigins list, or one containing "*",
// accepts every origin.
func NewHub(log logger.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		log:        log,
		bufferSize: defaultClientBuffer,
		clients:    make(map[*client]struct{}),
	}

	for _, origin := range allowedOrigins {
		if origin == "*" {
			h.allowOrigins = nil
			break
		}

		if h.allowOrigins == nil {
			h.allowOrigins = make(map[string]struct{})
		}

		h.allowOrigins[origin] = struct{}{}
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.allowOrigins == nil {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	_, ok := h.allowOrigins[origin]

	return ok
}

// ServeHTTP upgrades the request and keeps the client registered until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade to WebSocket")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.bufferSize),
		done: make(chan struct{}),
	}

	if !h.register(c) {
		c.close()
		return
	}

	h.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("WebSocket client connected")

	go h.writePump(c)

	h.readPump(c)

	h.unregister(c)

	h.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("WebSocket client disconnected")
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[c] = struct{}{}

	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.close()
}

// readPump discards inbound messages; it exists to process pongs and notice disconnects.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// Publish queues the event for every client without blocking.
func (h *Hub) Publish(_ context.Context, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			dropped++
		}
	}

	if dropped > 0 {
		h.log.Debug().Int("dropped", dropped).Str("type", string(event.Type)).Msg("Dropped event for slow clients")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true

	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}

	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
}
