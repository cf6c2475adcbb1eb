// internal/adapters/notification/ws_hub.go
package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = (hubPongWait * 9) / 10
	hubReadLimit  = 512
)

type hubClient struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

func (c *hubClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *hubClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hubWriteWait))
}

// Hub keeps websocket connections per user and pushes messages to them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*hubClient]struct{}
	upgrader websocket.Upgrader
	enabled  atomic.Bool

	pushed  atomic.Int64
	dropped atomic.Int64
}

var _ Notifier = (*Hub)(nil)

func NewHub() *Hub {
	h := &Hub{
		clients: make(map[string]map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	h.enabled.Store(true)
	return h
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) IsEnabled() bool { return h.enabled.Load() }

func (h *Hub) SetEnabled(enabled bool) { h.enabled.Store(enabled) }

// HandleWebSocket upgrades the request and registers it for userID. It blocks
// until the client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("⚠️ Websocket upgrade for %s failed: %v", userID, err)
		return
	}
	client := &hubClient{conn: conn, userID: userID}
	h.register(client)
	defer func() {
		h.unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(hubReadLimit)
	conn.SetReadDeadline(time.Now().Add(hubPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(hubPongWait))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(hubPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := client.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*hubClient]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	logger.Debug("🔗 Push client connected for %s (%d open)", c.userID, len(set))
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// Push writes msg to every connection of msg.UserID. Connections that fail
// the write are dropped.
func (h *Hub) Push(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*hubClient, 0, len(h.clients[msg.UserID]))
	for c := range h.clients[msg.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return ErrNoRecipient
	}

	delivered := 0
	for _, c := range targets {
		if err := c.write(data); err != nil {
			h.dropped.Add(1)
			h.unregister(c)
			c.conn.Close()
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return ErrNoRecipient
	}
	h.pushed.Add(1)
	return nil
}

// Connected reports how many connections userID holds.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	users := len(h.clients)
	conns := 0
	for _, set := range h.clients {
		conns += len(set)
	}
	h.mu.RUnlock()
	return map[string]interface{}{
		"users":       users,
		"connections": conns,
		"pushed":      h.pushed.Load(),
		"dropped":     h.dropped.Load(),
	}
}
