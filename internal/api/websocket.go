// Package api: WebSocket fan-out of the Activity Bus to connected clients.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/events"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient pumps one subscriber's Activity Bus events to one socket.
type wsClient struct {
	conn *websocket.Conn
	sub  *events.Subscriber
}

// Hub upgrades incoming connections and attaches each to its own Activity
// Bus subscription; it keeps no broadcast state of its own since the bus
// already fans out per subscriber.
type Hub struct {
	logger *zap.Logger
	bus    *events.Bus

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newHub(logger *zap.Logger, bus *events.Bus) *Hub {
	return &Hub{logger: logger, bus: bus, clients: make(map[*wsClient]struct{})}
}

func (h *Hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn, sub: h.bus.Subscribe()}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("activity subscriber connected")

	go h.readPump(client)
	go h.writePump(client)
}

// readPump only drains and discards client frames (pings/closes); the
// Activity Bus is push-only and takes no client commands.
func (h *Hub) readPump(client *wsClient) {
	defer h.drop(client)

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(client)
	}()

	for {
		select {
		case evt, ok := <-client.sub.Events():
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				h.logger.Warn("marshal activity event failed", zap.Error(err))
				continue
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	if !ok {
		return
	}
	client.sub.Close()
	client.conn.Close()
}

// closeAll disconnects every live subscriber, used on server shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c)
	}
}
