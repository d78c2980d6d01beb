package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/encoding"
)

type sseClient struct {
	ch     chan []byte
	device string
}

// SSEHub broadcasts frames via Server-Sent Events. Events are always JSON.
type SSEHub struct {
	encoder encoding.Encoder
	logger  *zap.Logger
	clients map[*sseClient]bool
	mu      sync.RWMutex
}

// NewSSEHub creates an SSE hub
func NewSSEHub(logger *zap.Logger) *SSEHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEHub{
		encoder: encoding.NewJSONEncoder(),
		logger:  logger,
		clients: make(map[*sseClient]bool),
	}
}

func (s *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := &sseClient{ch: make(chan []byte, 100), device: r.URL.Query().Get("device")}
	s.addClient(client)
	defer s.removeClient(client)

	s.logger.Info("SSE client connected", zap.Int("clients", s.ClientCount()))

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-client.ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *SSEHub) addClient(c *sseClient) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
}

func (s *SSEHub) removeClient(c *sseClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[c]; exists {
		delete(s.clients, c)
		close(c.ch)
		s.logger.Info("SSE client disconnected", zap.Int("clients", len(s.clients)))
	}
}

// Broadcast sends a frame to all matching clients, skipping clients whose
// buffer is full
func (s *SSEHub) Broadcast(frame encoding.Frame) error {
	if s.ClientCount() == 0 {
		return nil
	}

	data, err := s.encoder.Encode(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	device := frame.DeviceID()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		if c.device != "" && c.device != device {
			continue
		}
		select {
		case c.ch <- data:
		default:
		}
	}
	return nil
}

// BroadcastFromChannel reads frames and broadcasts them
func (s *SSEHub) BroadcastFromChannel(ctx context.Context, frames <-chan encoding.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.Broadcast(frame); err != nil {
				s.logger.Warn("Broadcast error", zap.Error(err))
			}
		}
	}
}

// ClientCount returns connected client count
func (s *SSEHub) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every client
func (s *SSEHub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		close(c.ch)
	}
	s.clients = make(map[*sseClient]bool)
	return nil
}
