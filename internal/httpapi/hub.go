package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"volumetracker/internal/quote"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub pushes every written snapshot to the connected stream clients. It is a
// sink: the tracker's fan-out calls Publish after each cache write.
type Hub struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	qualify func(string) string
	logger  *zap.Logger
}

type streamClient struct {
	conn   *websocket.Conn
	filter map[string]struct{} // empty means every symbol

	mu     sync.Mutex // guards send against close
	send   chan []byte
	closed bool
}

func NewHub(qualify func(string) string, logger *zap.Logger) *Hub {
	if qualify == nil {
		qualify = func(s string) string { return s }
	}
	return &Hub{
		clients: make(map[*streamClient]struct{}),
		qualify: qualify,
		logger:  logger,
	}
}

func (h *Hub) Name() string { return "stream" }

// Publish queues the snapshots for every interested client. A client whose
// queue is full is disconnected rather than slowing down the writer.
func (h *Hub) Publish(_ context.Context, snaps []quote.Snapshot) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return nil
	}

	for _, snap := range snaps {
		payload, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		for c := range h.clients {
			if !c.wants(snap.Symbol) {
				continue
			}
			if !c.trySend(payload) {
				h.logger.Warn("stream client too slow, dropping", zap.String("remote", c.conn.RemoteAddr().String()))
			}
		}
	}
	return nil
}

// Clients returns the number of connected stream clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams snapshots until the client goes
// away. ?symbols=A,B restricts the stream to those symbols.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &streamClient{
		conn:   conn,
		send:   make(chan []byte, clientSendSize),
		filter: make(map[string]struct{}),
	}
	for _, s := range splitList(c.Query("symbols")) {
		client.filter[h.qualify(s)] = struct{}{}
	}

	h.register(client)
	h.logger.Info("stream client connected", zap.String("remote", conn.RemoteAddr().String()), zap.Int("symbols", len(client.filter)))

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) register(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// readPump only watches for the client going away; inbound messages are ignored.
func (h *Hub) readPump(c *streamClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("stream read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *streamClient) wants(symbol string) bool {
	if len(c.filter) == 0 {
		return true
	}
	_, ok := c.filter[symbol]
	return ok
}

// trySend queues msg without blocking. A full queue closes the client.
func (c *streamClient) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *streamClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Close disconnects every stream client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}
