package generator

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/regime"
)

func fixedClock(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 1, 16, hour, 30, 0, 0, time.Local)
	}
}

func quietConfig() Config {
	return Config{
		DeviceID:      "1",
		RoomName:      "Living Room",
		Seed:          42,
		Table:         regime.DefaultTable(),
		Probabilities: Probabilities{Presence: 0.9},
	}
}

// steppingClock advances one second per call
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 1, 16, 12, 0, 0, 0, time.Local)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type collector struct {
	mu       sync.Mutex
	readings []models.Reading
}

func (c *collector) add(r models.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings = append(c.readings, r)
}

func (c *collector) snapshot() []models.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Reading, len(c.readings))
	copy(out, c.readings)
	return out
}

func TestNextStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	table := regime.DefaultTable()
	probs := Probabilities{Presence: 0.9, Emergency: 0.2, Offline: 0.1}

	prev := models.ResetReading("1", "Living Room", time.Now())
	start := time.Date(2026, 1, 16, 0, 0, 0, 0, time.Local)
	for i := 0; i < 5000; i++ {
		now := start.Add(time.Duration(i) * time.Minute)
		next := Next(prev, now, table, rng, probs)
		if next.Agitation < models.MinAgitation || next.Agitation > models.MaxAgitation {
			t.Fatalf("agitation out of range: %d", next.Agitation)
		}
		if !next.ActivityIndex.Valid() {
			t.Fatalf("invalid activity index: %d", next.ActivityIndex)
		}
		if err := next.Validate(); err != nil {
			t.Fatalf("generated reading invalid: %v", err)
		}
		prev = next
	}
}

func TestNextFollowsRegime(t *testing.T) {
	table := regime.DefaultTable()
	probs := Probabilities{Presence: 1}

	tests := []struct {
		hour     int
		level    models.ActivityLevel
		min, max int
	}{
		{2, models.ActivityLow, 0, 30},
		{7, models.ActivityMedium, 10, 50},
	}

	for _, test := range tests {
		rng := rand.New(rand.NewSource(int64(test.hour)))
		prev := models.ResetReading("1", "Bedroom", time.Now())
		now := time.Date(2026, 1, 16, test.hour, 0, 0, 0, time.Local)
		for i := 0; i < 200; i++ {
			next := Next(prev, now, table, rng, probs)
			if next.ActivityIndex != test.level {
				t.Fatalf("hour %d: expected %s, got %s", test.hour, test.level, next.ActivityIndex)
			}
			if next.Agitation < test.min || next.Agitation > test.max {
				t.Fatalf("hour %d: agitation %d outside [%d,%d]", test.hour, next.Agitation, test.min, test.max)
			}
			if next.Presence != models.PresencePresent || !next.IsDeviceOnline {
				t.Fatalf("hour %d: unexpected presence/online %+v", test.hour, next)
			}
			prev = next
		}
	}
}

func TestNextEmergencyOverridesRegime(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	prev := models.ResetReading("1", "Bedroom", time.Now())
	prev.Agitation = 45
	now := time.Date(2026, 1, 16, 7, 0, 0, 0, time.Local)

	next := Next(prev, now, regime.DefaultTable(), rng, Probabilities{Presence: 1, Emergency: 1})

	if next.ActivityIndex != models.ActivityHigh || next.Breathing != models.BreathingRapid {
		t.Errorf("expected emergency excursion, got %+v", next)
	}
	// morning walk from 45 stays within [35,50], plus 40 saturates at 100 or lands above 75
	if next.Agitation < 75 || next.Agitation > 100 {
		t.Errorf("unexpected emergency agitation %d", next.Agitation)
	}
}

func TestNextOfflineIsPerTick(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	prev := models.ResetReading("1", "Bedroom", time.Now())
	now := time.Date(2026, 1, 16, 12, 0, 0, 0, time.Local)

	offline := Next(prev, now, regime.DefaultTable(), rng, Probabilities{Offline: 1})
	if offline.IsDeviceOnline {
		t.Fatal("expected offline reading")
	}
	online := Next(offline, now, regime.DefaultTable(), rng, Probabilities{})
	if !online.IsDeviceOnline {
		t.Error("offline status should not carry over to the next tick")
	}
}

func TestNextDeterministicForSeed(t *testing.T) {
	now := time.Date(2026, 1, 16, 14, 0, 0, 0, time.Local)
	run := func() []models.Reading {
		rng := rand.New(rand.NewSource(11))
		prev := models.ResetReading("1", "Bedroom", now)
		out := make([]models.Reading, 0, 50)
		for i := 0; i < 50; i++ {
			prev = Next(prev, now, regime.DefaultTable(), rng, DefaultProbabilities())
			out = append(out, prev)
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sequence diverged at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSubscribeDeliversCurrentImmediately(t *testing.T) {
	g := New(quietConfig(), WithClock(fixedClock(12)))

	var got []models.Reading
	unsubscribe := g.Subscribe(func(r models.Reading) { got = append(got, r) })
	defer unsubscribe()

	if len(got) != 1 {
		t.Fatalf("expected immediate delivery, got %d readings", len(got))
	}
	if got[0].Presence != models.PresenceAbsent || got[0].ActivityIndex != models.ActivityNone {
		t.Errorf("expected reset reading before first tick, got %+v", got[0])
	}

	tick := g.Tick()
	if len(got) != 2 || got[1] != tick {
		t.Errorf("expected tick to be delivered, got %v", got)
	}
	if g.Current() != tick {
		t.Error("Current should return the last emitted reading")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	g := New(quietConfig(), WithClock(fixedClock(12)))
	c := &collector{}
	g.Subscribe(c.add)

	g.Start(2 * time.Millisecond)
	g.Start(2 * time.Millisecond)
	if !g.Running() {
		t.Fatal("expected generator to be running")
	}
	time.Sleep(20 * time.Millisecond)

	before := len(c.snapshot())
	g.Stop()
	g.Stop()

	after := c.snapshot()
	if len(after) != before+1 {
		t.Fatalf("expected exactly one emission from Stop, got %d", len(after)-before)
	}
	last := after[len(after)-1]
	if last.Presence != models.PresenceAbsent || last.ActivityIndex != models.ActivityNone || last.Agitation != 0 {
		t.Errorf("expected reset reading, got %+v", last)
	}
	if g.Running() {
		t.Error("expected generator to be stopped")
	}

	time.Sleep(10 * time.Millisecond)
	if len(c.snapshot()) != len(after) {
		t.Error("no readings may be delivered after Stop returns")
	}
}

func TestStopWithoutStartEmitsNothing(t *testing.T) {
	g := New(quietConfig())
	c := &collector{}
	g.Subscribe(c.add)

	g.Stop()

	if n := len(c.snapshot()); n != 1 {
		t.Errorf("expected only the subscription delivery, got %d", n)
	}
}

func TestRestartAfterStop(t *testing.T) {
	g := New(quietConfig(), WithClock(fixedClock(12)))
	c := &collector{}
	g.Subscribe(c.add)

	g.Start(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	g.Stop()
	stopped := len(c.snapshot())

	g.Start(time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	g.Stop()

	if len(c.snapshot()) <= stopped+1 {
		t.Error("expected ticks after restarting")
	}
}

func TestUnsubscribeDuringDelivery(t *testing.T) {
	g := New(quietConfig(), WithClock(fixedClock(12)))

	var before, after, self int
	g.Subscribe(func(models.Reading) { before++ })

	var unsubscribeSelf func()
	unsubscribeSelf = g.Subscribe(func(models.Reading) {
		self++
		if unsubscribeSelf != nil {
			unsubscribeSelf()
		}
	})

	g.Subscribe(func(models.Reading) { after++ })

	g.Tick()
	g.Tick()

	// each counter includes the delivery on subscribe
	if before != 3 || after != 3 {
		t.Errorf("other subscribers missed ticks: before=%d after=%d", before, after)
	}
	if self != 2 {
		t.Errorf("expected self-unsubscribing callback to run once per tick until removed, got %d", self)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	g := New(quietConfig(), WithClock(fixedClock(12)))

	var a, b int
	unsubscribeA := g.Subscribe(func(models.Reading) { a++ })
	g.Subscribe(func(models.Reading) { b++ })

	unsubscribeA()
	unsubscribeA()
	g.Tick()

	if a != 1 || b != 2 {
		t.Errorf("unexpected counts a=%d b=%d", a, b)
	}
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	g := New(quietConfig(), WithClock(fixedClock(12)))

	var calls int
	g.Subscribe(func(r models.Reading) {
		if r.ActivityIndex != models.ActivityNone {
			panic("boom")
		}
	})
	g.Subscribe(func(models.Reading) { calls++ })

	g.Tick()
	g.Tick()

	if calls != 3 {
		t.Errorf("expected 3 deliveries, got %d", calls)
	}
}

func TestSubscribeWhileRunningIsSerialized(t *testing.T) {
	g := New(quietConfig(), WithClock(steppingClock()))
	g.Start(time.Millisecond)

	var inFlight, maxInFlight, calls int32
	var mu sync.Mutex
	var last time.Time
	outOfOrder := 0

	g.Subscribe(func(r models.Reading) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}

		mu.Lock()
		if r.Timestamp.Before(last) {
			outOfOrder++
		}
		last = r.Timestamp
		mu.Unlock()

		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(30 * time.Millisecond)
		}
	})

	time.Sleep(20 * time.Millisecond)
	g.Stop()

	if m := atomic.LoadInt32(&maxInFlight); m != 1 {
		t.Errorf("expected one callback in flight at a time, got %d", m)
	}
	mu.Lock()
	defer mu.Unlock()
	if outOfOrder != 0 {
		t.Errorf("expected readings in timestamp order, %d arrived out of order", outOfOrder)
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Error("expected ticks after the initial delivery")
	}
}

func TestSubscribeFromCallback(t *testing.T) {
	g := New(quietConfig(), WithClock(fixedClock(12)))

	inner := &collector{}
	var subscribed bool
	g.Subscribe(func(models.Reading) {
		if !subscribed {
			subscribed = true
			g.Subscribe(inner.add)
		}
	})
	if len(inner.snapshot()) != 1 {
		t.Fatalf("expected the nested subscriber to get the current reading, got %d", len(inner.snapshot()))
	}

	tick := g.Tick()
	got := inner.snapshot()
	if len(got) != 2 || got[1] != tick {
		t.Errorf("expected the nested subscriber to follow ticks, got %v", got)
	}
}

func TestSubscribeFromTickCallback(t *testing.T) {
	g := New(quietConfig(), WithClock(fixedClock(12)))

	inner := &collector{}
	ticks := 0
	g.Subscribe(func(models.Reading) {
		ticks++
		if ticks == 2 {
			g.Subscribe(inner.add)
		}
	})

	first := g.Tick()
	got := inner.snapshot()
	if len(got) != 1 || got[0] != first {
		t.Fatalf("expected the tick reading right after the delivery, got %v", got)
	}

	second := g.Tick()
	got = inner.snapshot()
	if len(got) != 2 || got[1] != second {
		t.Errorf("expected the next tick, got %v", got)
	}
}

func TestLoopSurvivesPanickingTick(t *testing.T) {
	base := fixedClock(12)
	var calls int32
	// the first call comes from New, the second from the first tick
	clock := func() time.Time {
		if atomic.AddInt32(&calls, 1) == 2 {
			panic("clock failure")
		}
		return base()
	}

	g := New(quietConfig(), WithClock(clock))
	c := &collector{}
	g.Subscribe(c.add)

	g.Start(time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for len(c.snapshot()) < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	g.Stop()

	if n := len(c.snapshot()); n < 4 {
		t.Fatalf("expected ticks after the panic, got %d readings", n)
	}
	if atomic.LoadInt32(&calls) < 3 {
		t.Error("expected the loop to keep ticking")
	}
}

func TestTrendSeries(t *testing.T) {
	now := time.Date(2026, 1, 16, 18, 0, 0, 0, time.UTC)
	trends := TrendSeries(now, rand.New(rand.NewSource(1)))

	if len(trends.Agitation) != models.HoursPerDay || len(trends.Presence) != models.HoursPerDay {
		t.Fatalf("expected %d points per series", models.HoursPerDay)
	}
	if !trends.Agitation[models.HoursPerDay-1].Timestamp.Equal(now) {
		t.Errorf("last point should be at now, got %v", trends.Agitation[models.HoursPerDay-1].Timestamp)
	}
	if !trends.Agitation[0].Timestamp.Equal(now.Add(-23 * time.Hour)) {
		t.Errorf("first point should be 23h before now, got %v", trends.Agitation[0].Timestamp)
	}
	for i := range trends.Agitation {
		if v := trends.Agitation[i].Value; v < 0 || v > 100 {
			t.Errorf("agitation point %d out of range: %v", i, v)
		}
		if v := trends.Presence[i].Value; v != 0 && v != 1 {
			t.Errorf("presence point %d should be 0 or 1, got %v", i, v)
		}
	}
}
