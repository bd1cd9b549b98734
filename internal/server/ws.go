package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/biotwin/internal/detector"
)

// Message types sent on /api/events.
const (
	MessageFrame        = "frame"
	MessageSegmentation = "segmentation"
)

const (
	writeWait  = 5 * time.Second
	clientSend = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Envelope is the JSON shape of every event message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// EventsHandler broadcasts frame and segmentation events to every connected
// WebSocket client. Each client has its own writer goroutine; a client that
// falls behind loses messages instead of stalling the frame loop.
type EventsHandler struct {
	log     zerolog.Logger
	mu      sync.RWMutex
	clients map[*client]bool
}

// NewEventsHandler creates an EventsHandler with no clients.
func NewEventsHandler(log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		log:     log,
		clients: make(map[*client]bool),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSend)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.write(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
}

func (h *EventsHandler) write(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Broadcast sends data wrapped in an Envelope of the given type to every
// client.
func (h *EventsHandler) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("encode event")
		return
	}
	msg, err := json.Marshal(Envelope{Type: msgType, Data: payload})
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("encode envelope")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Debug().Str("type", msgType).Msg("client behind, event dropped")
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// LandmarksHandler accepts landmark frames from a browser-side tracker over
// WebSocket and feeds them to a ChannelProvider.
type LandmarksHandler struct {
	provider *detector.ChannelProvider
	config   detector.Config
	log      zerolog.Logger
}

// NewLandmarksHandler creates a LandmarksHandler pushing into provider.
func NewLandmarksHandler(provider *detector.ChannelProvider, config detector.Config, log zerolog.Logger) *LandmarksHandler {
	return &LandmarksHandler{
		provider: provider,
		config:   config,
		log:      log,
	}
}

// ServeHTTP handles WebSocket upgrade requests. Every text message is one
// frame; malformed messages are skipped.
func (h *LandmarksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	defer conn.Close()

	h.log.Info().Str("remote", r.RemoteAddr).Msg("landmark source connected")
	defer h.log.Info().Str("remote", r.RemoteAddr).Msg("landmark source disconnected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		frame, err := detector.DecodeFrame(data, h.config)
		if err != nil {
			h.log.Debug().Err(err).Msg("skip malformed landmark message")
			continue
		}
		if !h.provider.Push(frame) {
			h.log.Debug().Msg("landmark frame dropped")
		}
	}
}
