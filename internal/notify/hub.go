// Package notify pushes job progress events to the owning user's WebSocket connections.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/clipvault/internal/models"
)

// Event names on the push channel.
const (
	EventProgress  = "video:progress"
	EventCompleted = "video:completed"
	EventFailed    = "video:failed"
)

// Event is the envelope written to every receiving connection.
type Event struct {
	Name string  `json:"event"`
	Data Payload `json:"data"`
}

// Payload describes one job update.
type Payload struct {
	VideoID  string                  `json:"video_id"`
	Status   models.ProcessingStatus `json:"status"`
	Progress int                     `json:"progress"`
	Message  string                  `json:"message,omitempty"`
	Result   *Result                 `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Result is attached to the completion event.
type Result struct {
	SensitivityStatus models.SensitivityStatus `json:"sensitivity_status"`
	SensitivityScore  int                      `json:"sensitivity_score"`
	FrameSummary      *models.FrameSummary     `json:"frame_summary,omitempty"`
	Metadata          *models.VideoMetadata    `json:"metadata,omitempty"`
}

// Progress builds an in-flight event.
func Progress(videoID string, percent int, message string) Event {
	return Event{Name: EventProgress, Data: Payload{
		VideoID:  videoID,
		Status:   models.StatusProcessing,
		Progress: percent,
		Message:  message,
	}}
}

// Completed builds the terminal success event.
func Completed(videoID string, result Result) Event {
	return Event{Name: EventCompleted, Data: Payload{
		VideoID:  videoID,
		Status:   models.StatusCompleted,
		Progress: 100,
		Result:   &result,
	}}
}

// Failed builds the terminal failure event. message must be user-safe.
func Failed(videoID, message string) Event {
	return Event{Name: EventFailed, Data: Payload{
		VideoID: videoID,
		Status:  models.StatusFailed,
		Error:   message,
	}}
}

const (
	defaultSendBuffer = 64
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
)

// Hub routes events to every live connection of a user.
// Events are dropped when the user has no connection. A connection whose
// buffer is full is closed so the client reconnects and refetches state.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]map[*conn]struct{}
	upgrader websocket.Upgrader
	buffer   int
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dev
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		buffer: defaultSendBuffer,
	}
}

type conn struct {
	ws     *websocket.Conn
	userID string
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// Publish delivers ev to all connections of userID without blocking.
func (h *Hub) Publish(userID string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns[userID] {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			// The read loop notices the closed socket and unregisters it.
			slog.Warn("closing slow push receiver", "user_id", userID, "event", ev.Name, "video_id", ev.Data.VideoID)
			c.close()
		}
	}
	return nil
}

// Connections returns the number of live connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// ServeWS upgrades the request and registers the connection under the
// user_id query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	c := &conn{
		ws:     ws,
		userID: userID,
		send:   make(chan []byte, h.buffer),
		done:   make(chan struct{}),
	}
	h.register(c)

	go h.writeLoop(c)
	h.readLoop(c)
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.conns {
		for c := range set {
			c.close()
		}
		delete(h.conns, userID)
	}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
	slog.Debug("push receiver connected", "user_id", c.userID, "connections", len(set))
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.userID)
		}
	}
	c.close()
}

// readLoop discards client messages and keeps the pong deadline fresh.
func (h *Hub) readLoop(c *conn) {
	defer h.unregister(c)

	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("push receiver read error", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

// writeLoop is the only writer on the connection, so events leave in publish order.
func (h *Hub) writeLoop(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}
