package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/encoding"
)

const defaultWriteTimeout = 5 * time.Second

// WebSocketHub broadcasts frames to WebSocket clients. Clients may pass
// ?device=<id> to receive a single device's frames.
type WebSocketHub struct {
	encoder      encoding.Encoder
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]string
}

// NewWebSocketHub creates a hub that writes frames with enc
func NewWebSocketHub(enc encoding.Encoder, logger *zap.Logger) *WebSocketHub {
	if enc == nil {
		enc = encoding.NewJSONEncoder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHub{
		encoder: enc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		writeTimeout: defaultWriteTimeout,
		clients:      make(map[*websocket.Conn]string),
	}
}

// ServeHTTP upgrades the request and keeps the connection until the client leaves
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	device := r.URL.Query().Get("device")
	h.mu.Lock()
	h.clients[conn] = device
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Live client connected",
		zap.String("remote", r.RemoteAddr),
		zap.String("device", device),
		zap.Int("clients", count),
	)

	defer func() {
		h.remove(conn)
		h.logger.Info("Live client disconnected", zap.Int("clients", h.ClientCount()))
	}()

	// Clients only listen; reading drives ping/pong and detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends a frame to every matching client. A client whose write
// fails is disconnected.
func (h *WebSocketHub) Broadcast(frame encoding.Frame) error {
	if h.ClientCount() == 0 {
		return nil
	}

	data, err := h.encoder.Encode(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	messageType := websocket.TextMessage
	if h.encoder.Binary() {
		messageType = websocket.BinaryMessage
	}

	device := frame.DeviceID()
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, filter := range h.clients {
		if filter != "" && filter != device {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteMessage(messageType, data); err != nil {
			h.logger.Warn("Failed to send to live client", zap.Error(err))
			delete(h.clients, conn)
			conn.Close()
		}
	}
	return nil
}

// BroadcastFromChannel reads frames from a channel and broadcasts them
func (h *WebSocketHub) BroadcastFromChannel(ctx context.Context, frames <-chan encoding.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := h.Broadcast(frame); err != nil {
				h.logger.Warn("Broadcast error", zap.Error(err))
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close sends a close frame to every client and forgets them
func (h *WebSocketHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	deadline := time.Now().Add(time.Second)
	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]string)
	return nil
}

func (h *WebSocketHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}
