package generator

import (
	"math/rand"
	"time"

	"github.com/synheart/roomwatch/internal/models"
)

// trendPresenceProbability is lower than the live simulator's to show gaps in the history chart
const trendPresenceProbability = 0.8

// TrendSeries synthesizes 24 hourly agitation and presence points ending at now.
// Presence points are 1 when someone was in the room and 0 otherwise.
func TrendSeries(now time.Time, rng *rand.Rand) models.Trends {
	trends := models.Trends{
		Agitation: make([]models.TrendPoint, 0, models.HoursPerDay),
		Presence:  make([]models.TrendPoint, 0, models.HoursPerDay),
	}

	for i := 0; i < models.HoursPerDay; i++ {
		ts := now.Add(-time.Duration(models.HoursPerDay-1-i) * time.Hour)

		base := 30 + rng.Float64()*20
		agitation := base + (rng.Float64()-0.5)*30
		if agitation < models.MinAgitation {
			agitation = models.MinAgitation
		}
		if agitation > models.MaxAgitation {
			agitation = models.MaxAgitation
		}
		trends.Agitation = append(trends.Agitation, models.TrendPoint{Timestamp: ts, Value: agitation})

		present := 0.0
		if rng.Float64() < trendPresenceProbability {
			present = 1
		}
		trends.Presence = append(trends.Presence, models.TrendPoint{Timestamp: ts, Value: present})
	}

	return trends
}
