// Package report aggregates a device's readings into a daily report.
package report

import (
	"time"

	"github.com/synheart/roomwatch/internal/models"
)

// Period is the span a daily report covers
const Period = 24 * time.Hour

// Select returns the readings for deviceID with timestamps in (now-Period, now]
func Select(deviceID string, readings []models.Reading, now time.Time) []models.Reading {
	from := now.Add(-Period)
	selected := make([]models.Reading, 0, len(readings))
	for _, r := range readings {
		if r.DeviceID != deviceID {
			continue
		}
		if !r.Timestamp.After(from) || r.Timestamp.After(now) {
			continue
		}
		selected = append(selected, r)
	}
	return selected
}

// BuildDaily summarizes the last 24 hours of readings for deviceID.
// It returns false when no readings fall in the period. Hours of the
// activity pattern are taken in now's location.
func BuildDaily(deviceID string, readings []models.Reading, now time.Time) (models.Report, bool) {
	selected := Select(deviceID, readings, now)
	if len(selected) == 0 {
		return models.Report{}, false
	}

	var (
		activitySum  int
		agitationSum int
		irregular    int
		present      int
		hourlySum    [models.HoursPerDay]int
		hourlyCount  [models.HoursPerDay]int
	)
	for _, r := range selected {
		activitySum += int(r.ActivityIndex)
		agitationSum += r.Agitation
		if r.Breathing.IsAbnormal() {
			irregular++
		}
		if r.Presence == models.PresencePresent {
			present++
		}

		hour := r.Timestamp.In(now.Location()).Hour()
		hourlySum[hour] += int(r.ActivityIndex)
		hourlyCount[hour]++
	}

	total := float64(len(selected))
	pattern := make([]models.HourlyActivity, models.HoursPerDay)
	for hour := range pattern {
		pattern[hour] = models.HourlyActivity{Hour: hour}
		if hourlyCount[hour] > 0 {
			pattern[hour].AverageActivity = float64(hourlySum[hour]) / float64(hourlyCount[hour])
		}
	}

	// Duty-cycle estimate assuming uniform sampling over the period.
	presenceHours := float64(present) * (float64(models.HoursPerDay) / total)

	return models.Report{
		Date:     now,
		DeviceID: deviceID,
		RoomName: selected[0].RoomName,
		Statistics: models.Statistics{
			AverageActivityIndex:     float64(activitySum) / total,
			AverageAgitation:         float64(agitationSum) / total,
			IrregularBreathingEvents: irregular,
			PresenceHours:            presenceHours,
			TotalReadings:            len(selected),
		},
		ActivityPattern: pattern,
	}, true
}
