package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/synheart/roomwatch/internal/models"
)

const barWidth = 24

func renderBar(score float64, width int) string {
	filled := int(score * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// printReport writes a daily report with an hourly activity chart
func printReport(w io.Writer, r models.Report) {
	v := r.View()
	fmt.Fprintf(w, "📊 Daily report: %s (device %s)\n", v.RoomName, v.DeviceID)
	fmt.Fprintf(w, "   Generated:          %s\n", v.Date)
	fmt.Fprintf(w, "   Readings:           %d\n", v.Statistics.TotalReadings)
	fmt.Fprintf(w, "   Average activity:   %s\n", v.Statistics.AverageActivityIndex)
	fmt.Fprintf(w, "   Average agitation:  %s\n", v.Statistics.AverageAgitation)
	fmt.Fprintf(w, "   Irregular breathing: %d\n", v.Statistics.IrregularBreathingEvents)
	fmt.Fprintf(w, "   Presence hours:     %s\n", v.Statistics.PresenceHours)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   Hourly activity")
	for _, h := range r.ActivityPattern {
		score := h.AverageActivity / float64(models.ActivityHigh)
		fmt.Fprintf(w, "   %02d:00 %s %s\n", h.Hour, renderBar(score, barWidth), models.FormatDecimal(h.AverageActivity))
	}
	fmt.Fprintln(w)
}

// printAlert writes a one-line alert summary
func printAlert(w io.Writer, a models.Alert) {
	fmt.Fprintf(w, "🚨 %s  %-16s %s: %s\n", a.Timestamp.Format("2006-01-02 15:04:05"), a.Kind, a.Title, a.Body)
}
