// Package transport streams live readings and alerts to browser and tool
// clients over WebSocket and Server-Sent Events.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/synheart/roomwatch/internal/encoding"
	"github.com/synheart/roomwatch/internal/models"
)

// ErrFeedFull is returned when a frame could not be queued
var ErrFeedFull = errors.New("live feed buffer full")

// Feed is the producer side of the live stream. Readings and alerts are
// stamped with a sequence number and queued without blocking; a Dispatcher
// drains Frames(). Feed implements notify.Notifier for alerts.
type Feed struct {
	frames  chan encoding.Frame
	seq     atomic.Uint64
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewFeed creates a feed with the given queue size
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 256
	}
	return &Feed{frames: make(chan encoding.Frame, buffer)}
}

// Frames is the source channel for a Dispatcher. It closes on Close.
func (f *Feed) Frames() <-chan encoding.Frame {
	return f.frames
}

// PublishReading queues a reading frame; it has the signature of a
// generator subscriber.
func (f *Feed) PublishReading(r models.Reading) {
	f.publish(encoding.ReadingFrame(r))
}

// Notify queues an alert frame
func (f *Feed) Notify(ctx context.Context, alert models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !f.publish(encoding.AlertFrame(alert)) {
		return ErrFeedFull
	}
	return nil
}

// Dropped returns how many frames were rejected because the queue was full
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// Close stops the feed. Later publishes are discarded.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
	return nil
}

func (f *Feed) publish(frame encoding.Frame) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return false
	}

	frame.Sequence = f.seq.Add(1)
	select {
	case f.frames <- frame:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}
