package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/encoding"
)

// Option customizes the live stream
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers the live stream metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// dispatcherMetrics counts frames by type, so a lost alert frame can be
// told apart from a lost reading
type dispatcherMetrics struct {
	frames  *prometheus.CounterVec
	dropped *prometheus.CounterVec
}

func newDispatcherMetrics(reg prometheus.Registerer) *dispatcherMetrics {
	const namespace = "roomwatch"

	return &dispatcherMetrics{
		frames: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_frames_total",
				Help:      "Frames taken from the live feed by type",
			},
			[]string{"type"},
		),
		dropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "live_frames_dropped_total",
				Help:      "Frames dropped because a live subscriber buffer was full",
			},
			[]string{"type", "subscriber"},
		),
	}
}

type subscriber struct {
	name string
	ch   chan encoding.Frame
}

// Dispatcher copies live frames from the feed to each named subscriber
// (one per hub). A subscriber with a full buffer loses the frame so the
// engine never waits on a slow client.
type Dispatcher struct {
	source       <-chan encoding.Frame
	subscribers  []subscriber
	bufferSize   int
	logger       *zap.Logger
	metrics      *dispatcherMetrics
	mu           sync.Mutex
	droppedTotal atomic.Int64
}

func NewDispatcher(source <-chan encoding.Frame, bufferSize int, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Dispatcher{
		source:     source,
		bufferSize: bufferSize,
		logger:     logger,
		metrics:    newDispatcherMetrics(o.registerer),
	}
}

// Subscribe returns a channel that receives a copy of every frame. name
// labels the subscriber's drop counter. Subscribe before Run to see every frame.
func (d *Dispatcher) Subscribe(name string) <-chan encoding.Frame {
	ch := make(chan encoding.Frame, d.bufferSize)
	d.mu.Lock()
	d.subscribers = append(d.subscribers, subscriber{name: name, ch: ch})
	d.mu.Unlock()
	return ch
}

// SubscriberCount returns the current number of subscribers
func (d *Dispatcher) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscribers)
}

// DroppedCount returns the total number of frames dropped because a
// subscriber buffer was full
func (d *Dispatcher) DroppedCount() int64 {
	return d.droppedTotal.Load()
}

// Run blocks until ctx is cancelled or source closes
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.closeSubscribers()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-d.source:
			if !ok {
				return
			}
			d.dispatch(ctx, frame)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, frame encoding.Frame) {
	d.mu.Lock()
	subs := d.subscribers
	d.mu.Unlock()

	kind := string(frame.Type)
	d.metrics.frames.WithLabelValues(kind).Inc()

	for _, sub := range subs {
		select {
		case sub.ch <- frame:
		case <-ctx.Done():
			return
		default:
			d.droppedTotal.Add(1)
			d.metrics.dropped.WithLabelValues(kind, sub.name).Inc()
			// alerts matter more than readings to whoever is watching
			level := zap.DebugLevel
			if frame.Type == encoding.FrameAlert {
				level = zap.WarnLevel
			}
			d.logger.Log(level, "Live frame dropped, subscriber buffer full",
				zap.String("subscriber", sub.name),
				zap.String("type", kind),
				zap.Uint64("sequence", frame.Sequence),
			)
		}
	}
}

func (d *Dispatcher) closeSubscribers() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sub := range d.subscribers {
		close(sub.ch)
	}
	d.subscribers = nil
}
