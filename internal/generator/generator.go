package generator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/regime"
)

// DefaultInterval is the tick interval used when Start is given a non-positive interval
const DefaultInterval = time.Second

// Config holds generator configuration
type Config struct {
	DeviceID      string
	RoomName      string
	Seed          int64
	Table         *regime.Table
	Probabilities Probabilities
}

// DefaultConfig returns a configuration with the live simulator probabilities
// and the default regime table.
func DefaultConfig(deviceID, roomName string) Config {
	return Config{
		DeviceID:      deviceID,
		RoomName:      roomName,
		Seed:          time.Now().UnixNano(),
		Table:         regime.DefaultTable(),
		Probabilities: DefaultProbabilities(),
	}
}

// Option customizes a Generator
type Option func(*Generator)

// WithClock replaces the wall clock used to timestamp readings
func WithClock(clock func() time.Time) Option {
	return func(g *Generator) {
		g.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

type subscription struct {
	fn     func(models.Reading)
	active bool
}

// Generator simulates one room sensor and publishes a Reading on every tick
type Generator struct {
	cfg    Config
	clock  func() time.Time
	logger *zap.Logger

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex
	// tickMu is held for every delivery, so subscribers never run concurrently
	tickMu sync.Mutex
	rng    *rand.Rand

	mu      sync.Mutex
	current models.Reading
	subs    []*subscription
	// subscriptions made while a delivery was running, served by that delivery
	pending    []*subscription
	delivering bool
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a generator in the stopped state holding the device-reset reading
func New(cfg Config, opts ...Option) *Generator {
	if cfg.Table == nil {
		cfg.Table = regime.DefaultTable()
	}

	g := &Generator{
		cfg:    cfg,
		clock:  time.Now,
		logger: zap.NewNop(),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("device_id", cfg.DeviceID))
	g.current = models.ResetReading(cfg.DeviceID, cfg.RoomName, g.clock())
	return g
}

// DeviceID returns the simulated device identifier
func (g *Generator) DeviceID() string {
	return g.cfg.DeviceID
}

// RoomName returns the room the device is installed in
func (g *Generator) RoomName() string {
	return g.cfg.RoomName
}

// Current returns the last emitted reading
func (g *Generator) Current() models.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Running reports whether the tick loop is active
func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Subscribe registers fn and calls it with the current reading before any
// later tick reaches it. fn is then called on every tick in subscription
// order. When a delivery is already running (including from inside another
// subscriber) the first call is made by that delivery once it finishes, and
// Subscribe returns without waiting. The returned func removes the
// subscription and may be called from inside fn.
func (g *Generator) Subscribe(fn func(models.Reading)) func() {
	sub := &subscription{fn: fn, active: true}

	g.mu.Lock()
	if g.delivering {
		g.pending = append(g.pending, sub)
		g.mu.Unlock()
	} else {
		g.mu.Unlock()
		g.tickMu.Lock()
		g.mu.Lock()
		g.delivering = true
		g.subs = append(g.subs, sub)
		current := g.current
		g.mu.Unlock()

		g.invoke(sub, current)
		g.flushPending()
		g.tickMu.Unlock()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			sub.active = false
			g.subs = remove(g.subs, sub)
			g.pending = remove(g.pending, sub)
		})
	}
}

func remove(subs []*subscription, sub *subscription) []*subscription {
	for i, s := range subs {
		if s == sub {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Start begins emitting a reading every interval. It is a no-op while running.
func (g *Generator) Start(interval time.Duration) {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	if interval <= 0 {
		interval = DefaultInterval
	}

	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	g.running = true
	g.cancel = cancel
	g.done = done
	g.mu.Unlock()

	g.logger.Info("Simulation started", zap.Duration("interval", interval))
	go g.run(ctx, interval, done)
}

// Stop halts the tick loop, resets the device state and emits the reset
// reading once. Once Stop returns no further ticks are delivered. Calling
// Stop on a stopped generator does nothing. Stop must not be called from a
// subscriber callback.
func (g *Generator) Stop() {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	cancel()
	<-done

	g.tickMu.Lock()
	defer g.tickMu.Unlock()

	g.mu.Lock()
	g.current = models.ResetReading(g.cfg.DeviceID, g.cfg.RoomName, g.clock())
	reset := g.current
	g.mu.Unlock()

	g.logger.Info("Simulation stopped")
	g.publish(reset)
}

// Tick produces and delivers one reading synchronously. It is used by the
// run loop and by callers driving the generator with a virtual clock.
func (g *Generator) Tick() models.Reading {
	g.tickMu.Lock()
	defer g.tickMu.Unlock()

	next := g.step()
	g.publish(next)
	return next
}

// step advances the device state. A panic leaves the state unchanged.
func (g *Generator) step() models.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = Next(g.current, g.clock(), g.cfg.Table, g.rng, g.cfg.Probabilities)
	return g.current
}

// publish delivers r to every subscriber, then serves subscriptions made
// during the delivery. Callers hold tickMu.
func (g *Generator) publish(r models.Reading) {
	g.mu.Lock()
	g.delivering = true
	subs := g.snapshot()
	g.mu.Unlock()

	g.deliver(r, subs)
	g.flushPending()
}

// flushPending hands the newest reading to each pending subscription and
// activates it. Callers hold tickMu.
func (g *Generator) flushPending() {
	for {
		g.mu.Lock()
		if len(g.pending) == 0 {
			g.delivering = false
			g.mu.Unlock()
			return
		}
		sub := g.pending[0]
		g.pending = g.pending[1:]
		g.subs = append(g.subs, sub)
		current := g.current
		g.mu.Unlock()

		g.invoke(sub, current)
	}
}

func (g *Generator) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			g.safeTick()
		}
	}
}

// safeTick keeps the loop alive when a tick panics
func (g *Generator) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Tick failed", zap.Any("panic", r))
		}
	}()
	g.Tick()
}

// snapshot copies the subscriber list; callers hold g.mu
func (g *Generator) snapshot() []*subscription {
	subs := make([]*subscription, len(g.subs))
	copy(subs, g.subs)
	return subs
}

func (g *Generator) deliver(r models.Reading, subs []*subscription) {
	for _, sub := range subs {
		g.mu.Lock()
		active := sub.active
		g.mu.Unlock()
		if !active {
			continue
		}
		g.invoke(sub, r)
	}
}

func (g *Generator) invoke(sub *subscription, r models.Reading) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("Subscriber panicked", zap.Any("panic", rec))
		}
	}()
	sub.fn(r)
}
