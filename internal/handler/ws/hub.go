package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"CypherFeed/internal/domain/models"
	applogger "CypherFeed/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Hub pushes ticker, signal, and execution events to dashboard
// clients.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	upgrader  websocket.Upgrader
	l         *applogger.Logger
}

func NewHub(l *applogger.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		l: l,
	}
}

// Serve upgrades the request and holds the connection until the client
// goes away. Mounted at /ws.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("ws upgrade failed", applogger.Error(err))
		return nil
	}
	h.register(conn)
	defer func() {
		h.unregister(conn)
		_ = conn.Close()
	}()

	_ = conn.WriteJSON(map[string]interface{}{
		"type":      "connection_init",
		"status":    "connected",
		"timestamp": time.Now().UnixMilli(),
	})

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.ping(conn, done)

	// incoming frames are ignored; the loop only detects disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (h *Hub) ping(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[conn] = true
	h.l.Debug("ws client connected", applogger.Int("total", len(h.clients)))
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.l.Debug("ws client disconnected", applogger.Int("total", len(h.clients)))
	}
}

// Clients returns the connected client count.
func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Broadcast sends a message to all connected clients. Slow or dead
// clients are dropped.
func (h *Hub) Broadcast(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.l.Warn("ws broadcast marshal error", applogger.Error(err))
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			_ = client.Close()
			delete(h.clients, client)
		}
	}
}

// BroadcastTicker pushes one price update.
func (h *Hub) BroadcastTicker(t *models.Ticker) {
	h.Broadcast(map[string]interface{}{
		"type":   "ticker",
		"symbol": t.Symbol,
		"price":  t.Price,
		"volume": t.Volume,
		"ts":     t.Timestamp,
	})
}

// BroadcastSignal pushes one trading signal.
func (h *Hub) BroadcastSignal(s *models.Signal) {
	h.Broadcast(map[string]interface{}{
		"type":   "signal",
		"signal": s,
	})
}

// BroadcastExecution pushes one simulated fill.
func (h *Hub) BroadcastExecution(o *models.Order) {
	h.Broadcast(map[string]interface{}{
		"type":  "execution",
		"order": o,
	})
}
