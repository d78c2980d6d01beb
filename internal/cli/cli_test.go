package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/synheart/roomwatch/internal/models"
)

// execute runs the root command with args and returns what it printed.
// Command flags are package variables, so tests pass every flag they rely on.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

// simulateSession records two hours of readings for the default devices
func simulateSession(t *testing.T) (string, simulationResult) {
	t.Helper()
	file := filepath.Join(t.TempDir(), "session.ndjson")
	out, err := execute(t, "simulate",
		"--hours", "2",
		"--step", "1m",
		"--seed", "7",
		"--start", "2026-01-16T08:00:00Z",
		"--out", file,
		"--format", "json",
		"--notify=false",
		"--reports=true",
	)
	require.NoError(t, err, out)

	var result simulationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	return file, result
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "██░░", renderBar(0.5, 4))
	assert.Equal(t, "████", renderBar(1.7, 4))
	assert.Equal(t, "░░░░", renderBar(-1, 4))
}

func TestParseTickRate(t *testing.T) {
	d, err := parseTickRate("2hz")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	_, err = parseTickRate("0hz")
	assert.Error(t, err)
	_, err = parseTickRate("fast")
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	r := models.Report{
		Date:     time.Date(2026, 1, 16, 8, 0, 0, 0, time.UTC),
		DeviceID: "1",
		RoomName: "Living Room",
		Statistics: models.Statistics{
			AverageActivityIndex: 1.5,
			AverageAgitation:     25,
			PresenceHours:        24,
			TotalReadings:        10,
		},
		ActivityPattern: []models.HourlyActivity{{Hour: 8, AverageActivity: 3}},
	}

	var buf bytes.Buffer
	printReport(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "Living Room (device 1)")
	assert.Contains(t, out, "Average activity:   1.50")
	assert.Contains(t, out, "08:00 "+renderBar(1, barWidth)+" 3.00")
}

func TestSimulateRecordsSession(t *testing.T) {
	file, result := simulateSession(t)

	assert.Equal(t, 120, result.Steps)
	assert.Equal(t, 242, result.Readings, "two devices, the initial reading plus one per step")
	assert.Equal(t, time.Date(2026, 1, 16, 10, 0, 0, 0, time.UTC), result.End.UTC())
	require.Len(t, result.Reports, 2)
	assert.Equal(t, "Living Room", result.Reports[0].RoomName)
	assert.Equal(t, 121, result.Reports[1].Statistics.TotalReadings)

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r models.Reading
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		require.NoError(t, r.Validate())
		lines++
	}
	assert.Equal(t, 242, lines)
}

func TestSimulateIsDeterministic(t *testing.T) {
	_, first := simulateSession(t)
	_, second := simulateSession(t)
	assert.Equal(t, first.Alerts, second.Alerts)
	assert.Equal(t, first.Reports, second.Reports)
}

func TestSimulateRejectsBadFlags(t *testing.T) {
	_, err := execute(t, "simulate", "--hours", "0", "--format", "text")
	assert.Error(t, err)

	_, err = execute(t, "simulate", "--hours", "1", "--format", "yaml")
	assert.Error(t, err)
}

func TestReportFromRecording(t *testing.T) {
	file, simulated := simulateSession(t)

	out, err := execute(t, "report", "--from", file, "--device", "", "--format", "json", "--out=", "--trends=true")
	require.NoError(t, err, out)

	var body struct {
		Reports []models.ReportView `json:"reports"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	require.Len(t, body.Reports, 2)
	assert.Equal(t, simulated.Reports[0].Statistics, body.Reports[0].Statistics)
	require.NotNil(t, body.Reports[0].Trends)
	assert.Len(t, body.Reports[0].Trends.Agitation, 24)

	out, err = execute(t, "report", "--from", file, "--device", "2", "--format", "text", "--out=", "--trends=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Daily report: Bedroom (device 2)")
	assert.Contains(t, out, "Hourly activity")
	assert.Equal(t, 1, strings.Count(out, "Daily report"))
}

func TestReportXLSX(t *testing.T) {
	file, _ := simulateSession(t)
	xlsx := filepath.Join(t.TempDir(), "report.xlsx")

	out, err := execute(t, "report", "--from", file, "--device", "1", "--format", "xlsx", "--out", xlsx, "--trends=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Wrote Living Room report")

	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary", "Activity Pattern", "Trends"}, f.GetSheetList())
}

func TestReportErrors(t *testing.T) {
	_, err := execute(t, "report", "--from", filepath.Join(t.TempDir(), "missing.ndjson"), "--format", "text", "--device", "", "--out=")
	assert.Error(t, err)

	file, _ := simulateSession(t)
	_, err = execute(t, "report", "--from", file, "--device", "99", "--format", "text", "--out=")
	assert.Error(t, err)

	_, err = execute(t, "report", "--from", file, "--format", "pdf", "--device", "")
	assert.Error(t, err)
}

func TestReplayPrintsSummary(t *testing.T) {
	file, _ := simulateSession(t)

	out, err := execute(t, "replay", file, "--speed", "0", "--loop=false", "--serve=false", "--notify=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Readings: 242")
	assert.Contains(t, out, "Replay complete, 242 readings processed")
	assert.Contains(t, out, "Living Room")
}

func TestRegimesCommands(t *testing.T) {
	out, err := execute(t, "regimes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "restless")
	assert.Contains(t, out, "sedentary")

	out, err = execute(t, "regimes", "describe", "default")
	require.NoError(t, err)
	assert.Contains(t, out, "NIGHT (22:00-06:00)")
	assert.Contains(t, out, "agitation 0-30, step ±5")

	_, err = execute(t, "regimes", "describe", "missing")
	assert.Error(t, err)
}

func TestNotifyPreviewDryRun(t *testing.T) {
	out, err := execute(t, "notify", "preview", "--dry-run")
	require.NoError(t, err)

	dec := json.NewDecoder(strings.NewReader(out))
	var titles []string
	for dec.More() {
		var payload models.NotificationPayload
		require.NoError(t, dec.Decode(&payload))
		titles = append(titles, payload.Title)
	}
	assert.Equal(t, []string{
		"Inactivity Alert",
		"Fall Detected",
		"Temperature Alert",
		"Device Offline",
		"Emergency Contact Update",
	}, titles)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "roomwatch v"+Version)
}
