// Package analysis keeps per-device history, runs the alerting rules on
// every reading and produces daily reports.
package analysis

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/history"
	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/notify"
	"github.com/synheart/roomwatch/internal/report"
	"github.com/synheart/roomwatch/internal/rules"
)

var (
	// ErrUnknownDevice is returned for a device the engine has never seen
	ErrUnknownDevice = errors.New("unknown device")
	// ErrNoReadings is returned when a report period holds no readings
	ErrNoReadings = errors.New("no readings in report period")
)

// Config holds engine settings
type Config struct {
	LiveRetention    time.Duration
	ArchiveRetention time.Duration
	Thresholds       rules.Thresholds
	NotifyTimeout    time.Duration
	// NotifyQueue bounds the alerts waiting for the notifier
	NotifyQueue      int
}

// DefaultConfig returns a 1h alerting window and a 24h report archive
func DefaultConfig() Config {
	return Config{
		LiveRetention:    time.Hour,
		ArchiveRetention: report.Period,
		Thresholds:       rules.DefaultThresholds(),
		NotifyTimeout:    5 * time.Second,
		NotifyQueue:      DefaultNotifyQueue,
	}
}

// Source is anything that publishes readings to subscribers
type Source interface {
	Subscribe(fn func(models.Reading)) (unsubscribe func())
}

// DeviceInfo summarizes a device known to the engine
type DeviceInfo struct {
	ID         string    `json:"id"`
	RoomName   string    `json:"roomName"`
	Readings   int       `json:"readings"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

type device struct {
	mu       sync.Mutex
	id       string
	roomName string
	live     *history.Window
	archive  *history.Window
}

// Option customizes an Engine
type Option func(*Engine)

// WithNotifier sets where alerts are delivered
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRegisterer registers the engine metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithDeliveryBackpressure makes Process wait for room in the notifier
// queue instead of dropping alerts. Batch runs on a virtual clock use it so
// every alert reaches the notifier.
func WithDeliveryBackpressure() Option {
	return func(e *Engine) {
		e.backpressure = true
	}
}

// WithClock replaces the clock used to pick the report period
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// Engine owns one live window and one archive per device. Readings for the
// same device are processed one at a time; different devices run in parallel.
type Engine struct {
	cfg        Config
	evaluator  *rules.Evaluator
	notifier   notify.Notifier
	logger     *zap.Logger
	registerer prometheus.Registerer
	metrics    *Metrics
	clock      func() time.Time

	backpressure bool
	alerts       *alertQueue

	mu      sync.RWMutex
	devices map[string]*device
}

// NewEngine creates an engine
func NewEngine(cfg Config, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.LiveRetention <= 0 {
		cfg.LiveRetention = defaults.LiveRetention
	}
	if cfg.ArchiveRetention <= 0 {
		cfg.ArchiveRetention = defaults.ArchiveRetention
	}
	if cfg.NotifyQueue <= 0 {
		cfg.NotifyQueue = defaults.NotifyQueue
	}

	e := &Engine{
		cfg:     cfg,
		logger:  zap.NewNop(),
		clock:   time.Now,
		devices: make(map[string]*device),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registerer == nil {
		e.registerer = prometheus.NewRegistry()
	}
	e.metrics = NewMetrics(e.registerer)
	if e.notifier == nil {
		e.notifier = notify.NewLog(e.logger)
	}
	e.alerts = newAlertQueue(e.notifier, cfg.NotifyQueue, cfg.NotifyTimeout, e.backpressure, e.logger, e.metrics)
	e.evaluator = rules.NewEvaluator(cfg.Thresholds,
		rules.WithLogger(e.logger),
		rules.WithErrorHook(func(rule string, err error) {
			e.metrics.ruleErrors.WithLabelValues(rule).Inc()
		}),
	)
	return e
}

// RegisterDevice makes a device known before its first reading
func (e *Engine) RegisterDevice(id, roomName string) {
	e.device(id, roomName)
}

// Attach subscribes the engine to src and returns the unsubscribe func
func (e *Engine) Attach(src Source) func() {
	return src.Subscribe(func(r models.Reading) {
		e.Process(context.Background(), r)
	})
}

// Process stores r and evaluates the rules against the device's live
// window. Raised alerts are returned to the caller and queued for the
// notifier, which runs on its own goroutine; when the queue is full the
// alert is dropped and counted. A reading older than the newest one already
// stored is kept for reports but does not trigger rules.
func (e *Engine) Process(ctx context.Context, r models.Reading) []models.Alert {
	d := e.device(r.DeviceID, r.RoomName)

	d.mu.Lock()
	latest, seen := d.live.Latest()
	late := seen && r.Timestamp.Before(latest.Timestamp)
	if r.RoomName != "" {
		d.roomName = r.RoomName
	}
	d.live.Append(r)
	d.archive.Append(r)

	var alerts []models.Alert
	if !late {
		alerts = e.evaluator.Evaluate(r, d.live)
	}
	liveLen, archiveLen := d.live.Len(), d.archive.Len()
	d.mu.Unlock()

	e.metrics.readings.WithLabelValues(r.DeviceID).Inc()
	e.metrics.windowSize.WithLabelValues(r.DeviceID, "live").Set(float64(liveLen))
	e.metrics.windowSize.WithLabelValues(r.DeviceID, "archive").Set(float64(archiveLen))
	if late {
		e.metrics.lateReadings.WithLabelValues(r.DeviceID).Inc()
		e.logger.Debug("Late reading stored without rule evaluation",
			zap.String("device_id", r.DeviceID),
			zap.Time("timestamp", r.Timestamp),
			zap.Time("latest", latest.Timestamp),
		)
	}

	for _, alert := range alerts {
		e.metrics.alerts.WithLabelValues(alert.DeviceID, string(alert.Kind)).Inc()
		if !e.alerts.push(alert) {
			e.metrics.alertsDropped.WithLabelValues(string(alert.Kind)).Inc()
			e.logger.Warn("Alert dropped, notifier queue full or closed",
				zap.String("alert_id", alert.ID),
				zap.String("device_id", alert.DeviceID),
				zap.String("kind", string(alert.Kind)),
			)
		}
	}
	return alerts
}

// Flush blocks until every queued alert has been handed to the notifier.
// It must not be called from a notifier.
func (e *Engine) Flush() {
	e.alerts.flush()
}

// Close delivers the queued alerts and stops the notifier worker. Alerts
// raised afterwards are dropped. Close is safe to call more than once.
func (e *Engine) Close() {
	e.alerts.close()
}

// GenerateDailyReport summarizes the last 24 hours of readings for deviceID
func (e *Engine) GenerateDailyReport(deviceID string) (models.Report, error) {
	readings, err := e.Readings(deviceID)
	if err != nil {
		return models.Report{}, err
	}
	r, ok := report.BuildDaily(deviceID, readings, e.clock())
	if !ok {
		return models.Report{}, ErrNoReadings
	}
	return r, nil
}

// Readings returns a copy of the device's archive, oldest first
func (e *Engine) Readings(deviceID string) ([]models.Reading, error) {
	d, ok := e.lookup(deviceID)
	if !ok {
		return nil, ErrUnknownDevice
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.archive.All(), nil
}

// LatestReading returns the newest reading for deviceID
func (e *Engine) LatestReading(deviceID string) (models.Reading, error) {
	d, ok := e.lookup(deviceID)
	if !ok {
		return models.Reading{}, ErrUnknownDevice
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.live.Latest()
	if !ok {
		return models.Reading{}, ErrNoReadings
	}
	return r, nil
}

// Devices lists known devices ordered by ID
func (e *Engine) Devices() []DeviceInfo {
	e.mu.RLock()
	devices := make([]*device, 0, len(e.devices))
	for _, d := range e.devices {
		devices = append(devices, d)
	}
	e.mu.RUnlock()

	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		d.mu.Lock()
		info := DeviceInfo{ID: d.id, RoomName: d.roomName, Readings: d.archive.Len()}
		if latest, ok := d.archive.Latest(); ok {
			info.LastSeenAt = latest.Timestamp
		}
		d.mu.Unlock()
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (e *Engine) lookup(id string) (*device, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.devices[id]
	return d, ok
}

// device returns the state for id, creating it on first use
func (e *Engine) device(id, roomName string) *device {
	if d, ok := e.lookup(id); ok {
		return d
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.devices[id]; ok {
		return d
	}
	d := &device{
		id:       id,
		roomName: roomName,
		live:     history.NewWindow(e.cfg.LiveRetention),
		archive:  history.NewWindow(e.cfg.ArchiveRetention),
	}
	e.devices[id] = d
	return d
}
