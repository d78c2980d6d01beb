package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/synheart/roomwatch/internal/models"
)

var day = time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)

func hourlyReadings() []models.Reading {
	readings := make([]models.Reading, 0, 24)
	for hour := 0; hour < 24; hour++ {
		readings = append(readings, models.Reading{
			DeviceID:       "1",
			RoomName:       "Living Room",
			Timestamp:      day.Add(time.Duration(hour) * time.Hour),
			Presence:       models.PresencePresent,
			ActivityIndex:  models.ActivityLevel(hour % 4),
			Agitation:      hour,
			Breathing:      models.BreathingNormal,
			IsDeviceOnline: true,
		})
	}
	return readings
}

func TestBuildDailyHourlyPattern(t *testing.T) {
	now := day.Add(23*time.Hour + 30*time.Minute)

	report, ok := BuildDaily("1", hourlyReadings(), now)
	require.True(t, ok)

	require.Len(t, report.ActivityPattern, 24)
	for hour, entry := range report.ActivityPattern {
		assert.Equal(t, hour, entry.Hour)
		assert.Equal(t, float64(hour%4), entry.AverageActivity, "hour %d", hour)
	}
	assert.Equal(t, 24, report.Statistics.TotalReadings)
	assert.Equal(t, "Living Room", report.RoomName)
	assert.InDelta(t, 1.5, report.Statistics.AverageActivityIndex, 1e-9)
	assert.InDelta(t, 11.5, report.Statistics.AverageAgitation, 1e-9)
	assert.InDelta(t, 24.0, report.Statistics.PresenceHours, 1e-9)
	assert.Equal(t, now, report.Date)
}

func TestBuildDailyNoReadings(t *testing.T) {
	_, ok := BuildDaily("1", nil, day)
	assert.False(t, ok)

	_, ok = BuildDaily("2", hourlyReadings(), day.Add(12*time.Hour))
	assert.False(t, ok, "readings from another device must not count")

	_, ok = BuildDaily("1", hourlyReadings(), day.Add(72*time.Hour))
	assert.False(t, ok, "readings older than 24h must not count")
}

func TestBuildDailyStatistics(t *testing.T) {
	readings := hourlyReadings()[:4]
	readings[0].Presence = models.PresenceAbsent
	readings[1].Breathing = models.BreathingIrregular
	readings[2].Breathing = models.BreathingSlow

	report, ok := BuildDaily("1", readings, day.Add(4*time.Hour))
	require.True(t, ok)

	assert.Equal(t, 2, report.Statistics.IrregularBreathingEvents)
	assert.InDelta(t, 18.0, report.Statistics.PresenceHours, 1e-9, "3 of 4 readings present")
	assert.Equal(t, 0.0, report.ActivityPattern[12].AverageActivity, "empty bucket is zero")
}

func TestSelectBoundaries(t *testing.T) {
	now := day.Add(24 * time.Hour)
	readings := hourlyReadings()
	readings = append(readings, models.Reading{DeviceID: "1", Timestamp: now.Add(time.Minute)})

	selected := Select("1", readings, now)

	// the reading exactly 24h before now and the future one are excluded
	assert.Len(t, selected, 23)
	assert.Equal(t, day.Add(time.Hour), selected[0].Timestamp)
}

func TestBuildDailyUsesNowLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	readings := []models.Reading{{
		DeviceID:      "1",
		RoomName:      "Bedroom",
		Timestamp:     day.Add(5 * time.Hour),
		Presence:      models.PresencePresent,
		ActivityIndex: models.ActivityMedium,
		Breathing:     models.BreathingNormal,
	}}

	report, ok := BuildDaily("1", readings, day.Add(6*time.Hour).In(loc))
	require.True(t, ok)
	assert.Equal(t, 2.0, report.ActivityPattern[7].AverageActivity)
	assert.Equal(t, 0.0, report.ActivityPattern[5].AverageActivity)
}

func TestWriteXLSX(t *testing.T) {
	report, ok := BuildDaily("1", hourlyReadings(), day.Add(23*time.Hour))
	require.True(t, ok)
	trends := &models.Trends{
		Agitation: []models.TrendPoint{{Timestamp: day, Value: 42.5}},
		Presence:  []models.TrendPoint{{Timestamp: day, Value: 1}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, report, trends))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, patternSheet, trendsSheet}, f.GetSheetList())

	room, err := f.GetCellValue(summarySheet, "B4")
	require.NoError(t, err)
	assert.Equal(t, "Living Room", room)

	avg, err := f.GetCellValue(summarySheet, "B5")
	require.NoError(t, err)
	assert.Equal(t, "1.50", avg)

	rows, err := f.GetRows(patternSheet)
	require.NoError(t, err)
	require.Len(t, rows, 25)
	assert.Equal(t, []string{"3", "3.00"}, rows[4])

	agitation, err := f.GetCellValue(trendsSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "42.50", agitation)
}

func TestWriteXLSXWithoutTrends(t *testing.T) {
	report, ok := BuildDaily("1", hourlyReadings(), day.Add(23*time.Hour))
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, report, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{summarySheet, patternSheet}, f.GetSheetList())
}
