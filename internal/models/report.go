package models

import (
	"fmt"
	"time"
)

// HoursPerDay is the number of buckets in an activity pattern
const HoursPerDay = 24

// Report is a derived 24-hour summary for one device
type Report struct {
	Date            time.Time        `json:"date"`
	DeviceID        string           `json:"deviceId"`
	RoomName        string           `json:"roomName"`
	Statistics      Statistics       `json:"statistics"`
	ActivityPattern []HourlyActivity `json:"activityPattern"`
}

// Statistics holds the aggregate values of a report
type Statistics struct {
	AverageActivityIndex     float64 `json:"averageActivityIndex"`
	AverageAgitation         float64 `json:"averageAgitation"`
	IrregularBreathingEvents int     `json:"irregularBreathingEvents"`
	PresenceHours            float64 `json:"presenceHours"`
	TotalReadings            int     `json:"totalReadings"`
}

// HourlyActivity is the mean activity index for one hour of the day
type HourlyActivity struct {
	Hour            int     `json:"hour"`
	AverageActivity float64 `json:"averageActivity"`
}

// TrendPoint is one sample of a report trend series
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Trends holds the hourly series shown next to a report
type Trends struct {
	Agitation []TrendPoint `json:"agitation"`
	Presence  []TrendPoint `json:"presence"`
}

// ReportView is the presentation form of a report: decimals are
// rendered with two fractional digits, counts stay integers.
type ReportView struct {
	Date            string               `json:"date"`
	DeviceID        string               `json:"deviceId"`
	RoomName        string               `json:"roomName"`
	Statistics      StatisticsView       `json:"statistics"`
	ActivityPattern []HourlyActivityView `json:"activityPattern"`
	Trends          *Trends              `json:"trends,omitempty"`
}

type StatisticsView struct {
	AverageActivityIndex     string `json:"averageActivityIndex"`
	AverageAgitation         string `json:"averageAgitation"`
	IrregularBreathingEvents int    `json:"irregularBreathingEvents"`
	PresenceHours            string `json:"presenceHours"`
	TotalReadings            int    `json:"totalReadings"`
}

type HourlyActivityView struct {
	Hour            int    `json:"hour"`
	AverageActivity string `json:"averageActivity"`
}

// View formats the report for a presentation layer
func (r Report) View() ReportView {
	pattern := make([]HourlyActivityView, len(r.ActivityPattern))
	for i, h := range r.ActivityPattern {
		pattern[i] = HourlyActivityView{Hour: h.Hour, AverageActivity: FormatDecimal(h.AverageActivity)}
	}

	return ReportView{
		Date:     r.Date.UTC().Format(time.RFC3339),
		DeviceID: r.DeviceID,
		RoomName: r.RoomName,
		Statistics: StatisticsView{
			AverageActivityIndex:     FormatDecimal(r.Statistics.AverageActivityIndex),
			AverageAgitation:         FormatDecimal(r.Statistics.AverageAgitation),
			IrregularBreathingEvents: r.Statistics.IrregularBreathingEvents,
			PresenceHours:            FormatDecimal(r.Statistics.PresenceHours),
			TotalReadings:            r.Statistics.TotalReadings,
		},
		ActivityPattern: pattern,
	}
}

// FormatDecimal renders v with exactly two fractional digits
func FormatDecimal(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
