package generator

import (
	"math"
	"math/rand"
	"time"

	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/regime"
)

// Probabilities controls the per-tick random events
type Probabilities struct {
	Presence  float64
	Emergency float64
	Offline   float64
}

// DefaultProbabilities returns the probabilities used by the live simulator
func DefaultProbabilities() Probabilities {
	return Probabilities{
		Presence:  0.9,
		Emergency: 0.01,
		Offline:   0.01,
	}
}

// emergencyAgitationBoost is added to agitation during an emergency excursion
const emergencyAgitationBoost = 40

// Next computes the reading that follows prev at time now.
// It draws from rng in a fixed order so a seeded rng yields a reproducible sequence.
func Next(prev models.Reading, now time.Time, table *regime.Table, rng *rand.Rand, p Probabilities) models.Reading {
	_, profile := table.ProfileAt(now.Hour())

	presence := models.PresenceAbsent
	if rng.Float64() < p.Presence {
		presence = models.PresencePresent
	}

	activity := profile.PickActivity(rng)
	breathing := profile.PickBreathing(rng)
	agitation := profile.StepAgitation(rng, float64(prev.Agitation))

	// Emergency excursions override whatever the regime produced.
	if rng.Float64() < p.Emergency {
		activity = models.ActivityHigh
		breathing = models.BreathingRapid
		agitation = math.Min(models.MaxAgitation, agitation+emergencyAgitationBoost)
	}

	online := rng.Float64() >= p.Offline

	return models.Reading{
		DeviceID:       prev.DeviceID,
		RoomName:       prev.RoomName,
		Timestamp:      now,
		Presence:       presence,
		ActivityIndex:  activity,
		Agitation:      clampAgitation(math.Round(agitation)),
		Breathing:      breathing,
		IsDeviceOnline: online,
	}
}

func clampAgitation(v float64) int {
	if v < models.MinAgitation {
		return models.MinAgitation
	}
	if v > models.MaxAgitation {
		return models.MaxAgitation
	}
	return int(v)
}
