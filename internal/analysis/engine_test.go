package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synheart/roomwatch/internal/generator"
	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/notify"
	"github.com/synheart/roomwatch/internal/regime"
)

var t0 = time.Date(2026, 1, 16, 8, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	alerts []models.Alert
	err    error
}

func (r *recorder) Notify(ctx context.Context, alert models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return r.err
}

func (r *recorder) kinds() []models.AlertKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]models.AlertKind, 0, len(r.alerts))
	for _, a := range r.alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

func newReading(deviceID string, offset time.Duration, activity models.ActivityLevel, presence models.Presence) models.Reading {
	return models.Reading{
		DeviceID:       deviceID,
		RoomName:       "Room " + deviceID,
		Timestamp:      t0.Add(offset),
		Presence:       presence,
		ActivityIndex:  activity,
		Agitation:      20,
		Breathing:      models.BreathingNormal,
		IsDeviceOnline: true,
	}
}

func newTestEngine(n notify.Notifier, now time.Time) (*Engine, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	e := NewEngine(DefaultConfig(),
		WithNotifier(n),
		WithRegisterer(reg),
		WithClock(func() time.Time { return now }),
	)
	return e, reg
}

func TestProcessRaisesAndDeliversAlerts(t *testing.T) {
	rec := &recorder{}
	e, _ := newTestEngine(rec, t0.Add(time.Hour))
	ctx := context.Background()

	assert.Empty(t, e.Process(ctx, newReading("1", 0, models.ActivityMedium, models.PresencePresent)))
	alerts := e.Process(ctx, newReading("1", 31*time.Minute, models.ActivityNone, models.PresenceAbsent))

	expected := []models.AlertKind{models.AlertInactivity, models.AlertPresenceChange}
	require.Len(t, alerts, 2)
	e.Flush()
	assert.Equal(t, expected, rec.kinds())

	payload := rec.alerts[0].Payload()
	assert.Equal(t, "inactivity", payload.Data["type"])
	assert.Equal(t, "Room 1", payload.Data["location"])
	assert.Equal(t, 31, payload.Data["minutes"])
}

func TestDevicesAreIsolated(t *testing.T) {
	rec := &recorder{}
	e, _ := newTestEngine(rec, t0)
	ctx := context.Background()

	e.Process(ctx, newReading("1", 0, models.ActivityLow, models.PresencePresent))
	alerts := e.Process(ctx, newReading("2", time.Second, models.ActivityLow, models.PresenceAbsent))

	assert.Empty(t, alerts, "a reading from device 2 must not be compared with device 1")
	e.Flush()
	assert.Empty(t, rec.kinds())

	devices := e.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, "1", devices[0].ID)
	assert.Equal(t, "Room 2", devices[1].RoomName)
}

func TestLiveWindowAndArchiveRetention(t *testing.T) {
	e, reg := newTestEngine(&recorder{}, t0.Add(3*time.Hour))
	ctx := context.Background()

	for i := 0; i <= 180; i++ {
		e.Process(ctx, newReading("1", time.Duration(i)*time.Minute, models.ActivityLow, models.PresencePresent))
	}

	readings, err := e.Readings("1")
	require.NoError(t, err)
	assert.Len(t, readings, 181)

	assert.Equal(t, float64(61), testutil.ToFloat64(e.metrics.windowSize.WithLabelValues("1", "live")))
	assert.Equal(t, float64(181), testutil.ToFloat64(e.metrics.windowSize.WithLabelValues("1", "archive")))
	assert.Equal(t, float64(181), testutil.ToFloat64(e.metrics.readings.WithLabelValues("1")))

	report, err := e.GenerateDailyReport("1")
	require.NoError(t, err)
	assert.Equal(t, 181, report.Statistics.TotalReadings, "the report reads the archive, not the 1h live window")

	count, err := testutil.GatherAndCount(reg, "roomwatch_readings_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGenerateDailyReportErrors(t *testing.T) {
	e, _ := newTestEngine(&recorder{}, t0)

	_, err := e.GenerateDailyReport("missing")
	assert.ErrorIs(t, err, ErrUnknownDevice)

	e.RegisterDevice("1", "Living Room")
	_, err = e.GenerateDailyReport("1")
	assert.ErrorIs(t, err, ErrNoReadings)

	_, err = e.LatestReading("1")
	assert.ErrorIs(t, err, ErrNoReadings)
}

func TestLateReadingIsStoredWithoutRules(t *testing.T) {
	rec := &recorder{}
	e, _ := newTestEngine(rec, t0.Add(time.Hour))
	ctx := context.Background()

	e.Process(ctx, newReading("1", 10*time.Minute, models.ActivityLow, models.PresencePresent))
	alerts := e.Process(ctx, newReading("1", 5*time.Minute, models.ActivityLow, models.PresenceAbsent))

	assert.Empty(t, alerts)
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.lateReadings.WithLabelValues("1")))

	latest, err := e.LatestReading("1")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*time.Minute), latest.Timestamp)

	readings, err := e.Readings("1")
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, t0.Add(5*time.Minute), readings[0].Timestamp)
}

func TestNotifierFailureIsCounted(t *testing.T) {
	rec := &recorder{err: errors.New("push service down")}
	e, _ := newTestEngine(rec, t0)
	ctx := context.Background()

	e.Process(ctx, newReading("1", 0, models.ActivityLow, models.PresencePresent))
	alerts := e.Process(ctx, newReading("1", time.Second, models.ActivityLow, models.PresenceAbsent))

	assert.Len(t, alerts, 1)
	e.Flush()
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.notifyErrors))
}

// gate blocks every Notify until it is opened
type gate struct {
	entered chan struct{}
	open    chan struct{}
	rec     recorder
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 16), open: make(chan struct{})}
}

func (g *gate) Notify(ctx context.Context, alert models.Alert) error {
	g.entered <- struct{}{}
	<-g.open
	return g.rec.Notify(ctx, alert)
}

// leave produces one presence_change alert per call
func leave(e *Engine, at time.Duration) []models.Alert {
	ctx := context.Background()
	e.Process(ctx, newReading("1", at, models.ActivityLow, models.PresencePresent))
	return e.Process(ctx, newReading("1", at+time.Second, models.ActivityLow, models.PresenceAbsent))
}

func TestSlowNotifierDoesNotBlockProcess(t *testing.T) {
	g := newGate()
	e, _ := newTestEngine(g, t0)
	defer e.Close()

	done := make(chan []models.Alert)
	go func() { done <- leave(e, 0) }()

	select {
	case alerts := <-done:
		require.Len(t, alerts, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("Process waited for the notifier")
	}

	<-g.entered
	close(g.open)
	e.Flush()
	assert.Equal(t, []models.AlertKind{models.AlertPresenceChange}, g.rec.kinds())
}

func TestFullQueueDropsAlerts(t *testing.T) {
	g := newGate()
	cfg := DefaultConfig()
	cfg.NotifyQueue = 1
	e := NewEngine(cfg, WithNotifier(g), WithClock(func() time.Time { return t0 }))

	// the worker holds the first alert, the second waits in the queue
	require.Len(t, leave(e, 0), 1)
	<-g.entered
	require.Len(t, leave(e, time.Minute), 1)
	alerts := leave(e, 2*time.Minute)
	require.Len(t, alerts, 1, "a dropped alert is still returned to the caller")

	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.alertsDropped.WithLabelValues(string(models.AlertPresenceChange))))

	close(g.open)
	e.Close()
	assert.Len(t, g.rec.kinds(), 2)

	leave(e, 3*time.Minute)
	assert.Equal(t, float64(2), testutil.ToFloat64(e.metrics.alertsDropped.WithLabelValues(string(models.AlertPresenceChange))), "alerts after Close are dropped")
}

func TestBackpressureKeepsEveryAlert(t *testing.T) {
	g := newGate()
	cfg := DefaultConfig()
	cfg.NotifyQueue = 1
	e := NewEngine(cfg, WithNotifier(g), WithDeliveryBackpressure(), WithClock(func() time.Time { return t0 }))

	close(g.open)
	for i := 0; i < 10; i++ {
		leave(e, time.Duration(i)*time.Minute)
	}
	e.Close()

	assert.Len(t, g.rec.kinds(), 10)
	assert.Zero(t, testutil.ToFloat64(e.metrics.alertsDropped.WithLabelValues(string(models.AlertPresenceChange))))
}

func TestPanickingNotifierIsCounted(t *testing.T) {
	e, _ := newTestEngine(notify.Func(func(ctx context.Context, alert models.Alert) error {
		panic("bad target")
	}), t0)
	defer e.Close()

	leave(e, 0)
	leave(e, time.Minute)
	e.Flush()
	assert.Equal(t, float64(2), testutil.ToFloat64(e.metrics.notifyErrors))
}

func TestInvalidReadingCountsRuleErrors(t *testing.T) {
	e, _ := newTestEngine(&recorder{}, t0)

	bad := newReading("1", 0, models.ActivityLow, models.PresencePresent)
	bad.Agitation = 250

	assert.NotPanics(t, func() { e.Process(context.Background(), bad) })
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.ruleErrors.WithLabelValues("high_agitation")))
}

func TestAttachToGenerator(t *testing.T) {
	clock := t0.Add(12 * time.Hour)
	gen := generator.New(generator.Config{
		DeviceID:      "1",
		RoomName:      "Living Room",
		Seed:          7,
		Table:         regime.DefaultTable(),
		Probabilities: generator.Probabilities{Presence: 1},
	}, generator.WithClock(func() time.Time { return clock }))

	e, _ := newTestEngine(&recorder{}, clock.Add(time.Hour))
	detach := e.Attach(gen)

	for i := 0; i < 5; i++ {
		clock = clock.Add(time.Second)
		gen.Tick()
	}
	detach()
	clock = clock.Add(time.Second)
	gen.Tick()

	readings, err := e.Readings("1")
	require.NoError(t, err)
	assert.Len(t, readings, 6, "the subscription reading plus five ticks")

	report, err := e.GenerateDailyReport("1")
	require.NoError(t, err)
	assert.Equal(t, "Living Room", report.RoomName)
	assert.Equal(t, 6, report.Statistics.TotalReadings)
}

func TestConcurrentDevices(t *testing.T) {
	e, _ := newTestEngine(&recorder{}, t0.Add(time.Hour))
	ctx := context.Background()

	var wg sync.WaitGroup
	for d := 0; d < 8; d++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				e.Process(ctx, newReading(id, time.Duration(i)*time.Second, models.ActivityLow, models.PresencePresent))
			}
		}(fmt.Sprintf("%d", d))
	}
	wg.Wait()

	devices := e.Devices()
	require.Len(t, devices, 8)
	for _, d := range devices {
		assert.Equal(t, 200, d.Readings)
	}
}
