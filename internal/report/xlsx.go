package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/synheart/roomwatch/internal/models"
)

const (
	summarySheet = "Summary"
	patternSheet = "Activity Pattern"
	trendsSheet  = "Trends"
)

// WriteXLSX writes the report as an Excel workbook with a summary sheet and
// an hourly activity sheet. Trends are added on a third sheet when non-nil.
func WriteXLSX(w io.Writer, r models.Report, trends *models.Trends) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	view := r.View()
	summary := [][]any{
		{"Field", "Value"},
		{"Date", view.Date},
		{"Device ID", r.DeviceID},
		{"Room", r.RoomName},
		{"Average Activity Index", view.Statistics.AverageActivityIndex},
		{"Average Agitation", view.Statistics.AverageAgitation},
		{"Irregular Breathing Events", r.Statistics.IrregularBreathingEvents},
		{"Presence Hours", view.Statistics.PresenceHours},
		{"Total Readings", r.Statistics.TotalReadings},
	}
	if err := writeRows(f, summarySheet, summary, headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 28); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	if _, err := f.NewSheet(patternSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	pattern := [][]any{{"Hour", "Average Activity"}}
	for _, h := range view.ActivityPattern {
		pattern = append(pattern, []any{h.Hour, h.AverageActivity})
	}
	if err := writeRows(f, patternSheet, pattern, headerStyle); err != nil {
		return err
	}

	if trends != nil {
		if _, err := f.NewSheet(trendsSheet); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
		rows := [][]any{{"Timestamp", "Agitation", "Presence"}}
		for i, p := range trends.Agitation {
			presence := 0.0
			if i < len(trends.Presence) {
				presence = trends.Presence[i].Value
			}
			rows = append(rows, []any{p.Timestamp.UTC().Format("2006-01-02 15:04"), models.FormatDecimal(p.Value), presence})
		}
		if err := writeRows(f, trendsSheet, rows, headerStyle); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// writeRows writes rows starting at A1 and styles the first row as a header
func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d on %s: %w", i+1, sheet, err)
		}
	}

	if len(rows) > 0 {
		last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}
