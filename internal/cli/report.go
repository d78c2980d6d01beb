package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/synheart/roomwatch/internal/analysis"
	"github.com/synheart/roomwatch/internal/generator"
	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/notify"
	"github.com/synheart/roomwatch/internal/recorder"
	"github.com/synheart/roomwatch/internal/report"
)

var (
	reportFrom   string
	reportDevice string
	reportFormat string
	reportOut    string
	reportTrends bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build daily reports from a recorded session",
	Long: `Loads a recorded NDJSON session and builds the daily report for each
device, covering the 24 hours before the newest reading.

Examples:
  roomwatch report --from day.ndjson
  roomwatch report --from day.ndjson --device 1 --format json
  roomwatch report --from day.ndjson --device 1 --format xlsx --out living_room.xlsx`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "Recorded session to read (required)")
	reportCmd.Flags().StringVar(&reportDevice, "device", "", "Only report this device")
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "Output format: text|json|xlsx")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write to this file (xlsx defaults to roomwatch_report_<id>.xlsx)")
	reportCmd.Flags().BoolVar(&reportTrends, "trends", false, "Include the 24h trend series")
	reportCmd.MarkFlagRequired("from")
}

func runReport(cmd *cobra.Command, args []string) error {
	switch reportFormat {
	case "text", "json", "xlsx":
	default:
		return fmt.Errorf("unknown format %q (use text, json or xlsx)", reportFormat)
	}

	rep := recorder.NewReplayer(reportFrom, 0, false)
	_, last, err := rep.Span()
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	engine := analysis.NewEngine(analysis.Config{
		LiveRetention:    cfg.Analysis.LiveRetention,
		ArchiveRetention: cfg.Analysis.ArchiveRetention,
		Thresholds:       cfg.Analysis.Thresholds,
	},
		analysis.WithLogger(logger),
		analysis.WithNotifier(notify.Func(func(ctx context.Context, alert models.Alert) error { return nil })),
		analysis.WithClock(func() time.Time { return last }),
	)
	defer engine.Close()

	readings := make(chan models.Reading, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- rep.Replay(context.Background(), readings)
		close(readings)
	}()
	for r := range readings {
		engine.Process(context.Background(), r)
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	ids := []string{reportDevice}
	if reportDevice == "" {
		ids = ids[:0]
		for _, d := range engine.Devices() {
			ids = append(ids, d.ID)
		}
	}

	var reports []models.Report
	for _, id := range ids {
		r, err := engine.GenerateDailyReport(id)
		if errors.Is(err, analysis.ErrNoReadings) && reportDevice == "" {
			continue
		}
		if err != nil {
			return fmt.Errorf("device %s: %w", id, err)
		}
		reports = append(reports, r)
	}

	var trends *models.Trends
	if reportTrends || reportFormat == "xlsx" {
		t := generator.TrendSeries(last, rand.New(rand.NewSource(last.UnixNano())))
		trends = &t
	}

	switch reportFormat {
	case "xlsx":
		return writeXLSXReports(cmd.OutOrStdout(), reports, trends)
	case "json":
		return withOutput(cmd.OutOrStdout(), func(w io.Writer) error {
			views := make([]models.ReportView, 0, len(reports))
			for _, r := range reports {
				v := r.View()
				if reportTrends {
					v.Trends = trends
				}
				views = append(views, v)
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"reports": views})
		})
	default:
		return withOutput(cmd.OutOrStdout(), func(w io.Writer) error {
			for _, r := range reports {
				printReport(w, r)
			}
			return nil
		})
	}
}

// withOutput runs fn against --out when set, else against stdout
func withOutput(stdout io.Writer, fn func(io.Writer) error) error {
	if reportOut == "" {
		return fn(stdout)
	}
	f, err := os.Create(reportOut)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeXLSXReports(stdout io.Writer, reports []models.Report, trends *models.Trends) error {
	if reportOut != "" && len(reports) > 1 {
		return fmt.Errorf("--out with xlsx needs --device when the session holds %d devices", len(reports))
	}
	for _, r := range reports {
		name := reportOut
		if name == "" {
			name = fmt.Sprintf("roomwatch_report_%s_%s.xlsx", r.DeviceID, r.Date.Format("20060102"))
		}
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if err := report.WriteXLSX(f, r, trends); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		abs, _ := filepath.Abs(name)
		fmt.Fprintf(stdout, "📄 Wrote %s report to %s\n", r.RoomName, abs)
	}
	return nil
}
