package transport

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/encoding"
)

// Live wires a Feed through a Dispatcher to the WebSocket and SSE hubs
type Live struct {
	Feed      *Feed
	WebSocket *WebSocketHub
	SSE       *SSEHub

	dispatcher *Dispatcher
	wsFrames   <-chan encoding.Frame
	sseFrames  <-chan encoding.Frame
}

// NewLive creates the live stream. buffer sizes both the feed queue and
// each hub's dispatcher buffer.
func NewLive(enc encoding.Encoder, buffer int, logger *zap.Logger, opts ...Option) *Live {
	if logger == nil {
		logger = zap.NewNop()
	}
	feed := NewFeed(buffer)
	d := NewDispatcher(feed.Frames(), buffer, logger, opts...)
	return &Live{
		Feed:       feed,
		WebSocket:  NewWebSocketHub(enc, logger),
		SSE:        NewSSEHub(logger),
		dispatcher: d,
		wsFrames:   d.Subscribe("websocket"),
		sseFrames:  d.Subscribe("sse"),
	}
}

// Dropped returns frames lost at the feed queue plus frames dropped by the dispatcher
func (l *Live) Dropped() int64 {
	return l.Feed.Dropped() + l.dispatcher.DroppedCount()
}

// Run blocks until ctx is cancelled or the feed is closed, then disconnects every client
func (l *Live) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		l.dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = l.WebSocket.BroadcastFromChannel(ctx, l.wsFrames)
	}()
	go func() {
		defer wg.Done()
		_ = l.SSE.BroadcastFromChannel(ctx, l.sseFrames)
	}()
	wg.Wait()

	l.WebSocket.Close()
	l.SSE.Close()
}
