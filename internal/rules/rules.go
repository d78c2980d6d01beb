// Package rules contains the alerting rules evaluated on every reading.
//
// Each rule is a pure function of the current reading, the device's history
// window and the thresholds. A rule raises at most one alert per call and
// never mutates the window.
package rules

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/synheart/roomwatch/internal/history"
	"github.com/synheart/roomwatch/internal/models"
)

// ErrInvalidReading is returned when a rule cannot trust its input
var ErrInvalidReading = errors.New("invalid reading")

// Thresholds parameterize the rules
type Thresholds struct {
	Inactivity        time.Duration `mapstructure:"inactivity"`
	Agitation         float64       `mapstructure:"agitation"`
	AgitationLookback int           `mapstructure:"agitation_lookback"`
	BreathingCount    int           `mapstructure:"breathing_count"`
}

// DefaultThresholds returns the stock alerting thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		Inactivity:        30 * time.Minute,
		Agitation:         80,
		AgitationLookback: 5,
		BreathingCount:    5,
	}
}

// Func evaluates a single rule
type Func func(current models.Reading, w *history.Window, th Thresholds) (*models.Alert, error)

// Rule is a named alerting rule
type Rule struct {
	Name  string
	Check Func
}

// Default returns the four stock rules in evaluation order
func Default() []Rule {
	return []Rule{
		{Name: "inactivity", Check: Inactivity},
		{Name: "high_agitation", Check: HighAgitation},
		{Name: "breathing", Check: Breathing},
		{Name: "presence_change", Check: PresenceChange},
	}
}

// Inactivity fires when the room has shown no activity since the most
// recent active reading for at least th.Inactivity.
func Inactivity(current models.Reading, w *history.Window, th Thresholds) (*models.Alert, error) {
	if !current.ActivityIndex.Valid() || current.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: activity %d at %v", ErrInvalidReading, current.ActivityIndex, current.Timestamp)
	}
	if current.ActivityIndex != models.ActivityNone {
		return nil, nil
	}

	last, ok := w.LastMatching(func(r models.Reading) bool {
		return r.ActivityIndex > models.ActivityNone
	})
	if !ok {
		return nil, nil
	}

	elapsed := current.Timestamp.Sub(last.Timestamp)
	if elapsed < th.Inactivity {
		return nil, nil
	}

	minutes := int(math.Round(elapsed.Minutes()))
	alert := models.NewAlert(current,
		"Inactivity Alert",
		fmt.Sprintf("No movement detected in %s for %d minutes", current.RoomName, minutes),
		models.InactivityContext{Minutes: minutes},
	)
	return &alert, nil
}

// HighAgitation fires when the current agitation and the mean of the
// recent lookback both exceed the threshold. A single spike is not enough.
func HighAgitation(current models.Reading, w *history.Window, th Thresholds) (*models.Alert, error) {
	if err := checkAgitation(current); err != nil {
		return nil, err
	}
	if float64(current.Agitation) <= th.Agitation {
		return nil, nil
	}

	recent := w.Last(th.AgitationLookback)
	if len(recent) == 0 {
		recent = []models.Reading{current}
	}

	sum := 0
	for _, r := range recent {
		if err := checkAgitation(r); err != nil {
			return nil, err
		}
		sum += r.Agitation
	}
	average := float64(sum) / float64(len(recent))
	if average <= th.Agitation {
		return nil, nil
	}

	alert := models.NewAlert(current,
		"High Agitation Alert",
		fmt.Sprintf("Unusually high agitation detected in %s (average %.1f over the last %d readings)", current.RoomName, average, len(recent)),
		models.AgitationContext{Current: current.Agitation, Average: average},
	)
	return &alert, nil
}

// Breathing fires only when every one of the last th.BreathingCount
// readings shows an abnormal breathing pattern.
func Breathing(current models.Reading, w *history.Window, th Thresholds) (*models.Alert, error) {
	if !current.Breathing.Valid() {
		return nil, fmt.Errorf("%w: breathing %q", ErrInvalidReading, current.Breathing)
	}
	if !current.Breathing.IsAbnormal() {
		return nil, nil
	}

	abnormal := 0
	for _, r := range w.Last(th.BreathingCount) {
		if r.Breathing.IsAbnormal() {
			abnormal++
		}
	}
	if abnormal < th.BreathingCount {
		return nil, nil
	}

	alert := models.NewAlert(current,
		"Breathing Pattern Alert",
		fmt.Sprintf("Irregular breathing pattern detected in %s (%d consecutive abnormal readings, latest %s)", current.RoomName, abnormal, current.Breathing),
		models.BreathingContext{Pattern: current.Breathing, AbnormalCount: abnormal},
	)
	return &alert, nil
}

// PresenceChange fires on a present to absent transition between the
// previous reading and the current one.
func PresenceChange(current models.Reading, w *history.Window, th Thresholds) (*models.Alert, error) {
	if !current.Presence.Valid() {
		return nil, fmt.Errorf("%w: presence %q", ErrInvalidReading, current.Presence)
	}

	recent := w.Last(2)
	if len(recent) < 2 {
		return nil, nil
	}
	previous := recent[0]
	if previous.Presence != models.PresencePresent || current.Presence != models.PresenceAbsent {
		return nil, nil
	}

	alert := models.NewAlert(current,
		"Presence Update",
		fmt.Sprintf("No presence detected in %s (was %s)", current.RoomName, previous.Presence),
		models.PresenceContext{Previous: previous.Presence, Current: current.Presence},
	)
	return &alert, nil
}

func checkAgitation(r models.Reading) error {
	if r.Agitation < models.MinAgitation || r.Agitation > models.MaxAgitation {
		return fmt.Errorf("%w: agitation %d out of range", ErrInvalidReading, r.Agitation)
	}
	return nil
}
