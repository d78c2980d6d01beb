package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/notify"
	"github.com/synheart/roomwatch/internal/recorder"
)

var (
	simulateHours   float64
	simulateStep    time.Duration
	simulateStart   string
	simulateSeed    int64
	simulateOut     string
	simulateFormat  string
	simulateNotify  bool
	simulateReports bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a period of readings on a virtual clock",
	Long: `Runs the configured devices on a virtual clock, so a full day of
readings is produced in seconds. Every reading goes through the alerting
engine; the run ends with an alert summary and the daily reports.

Examples:
  roomwatch simulate --hours 24
  roomwatch simulate --hours 24 --step 30s --seed 42 --out day.ndjson
  roomwatch simulate --hours 2 --format json`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateHours, "hours", 24, "Simulated period in hours")
	simulateCmd.Flags().DurationVar(&simulateStep, "step", time.Minute, "Virtual time between readings")
	simulateCmd.Flags().StringVar(&simulateStart, "start", "", "Start time, RFC 3339 (default: now minus --hours)")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "Random seed (default from config, 0 picks one)")
	simulateCmd.Flags().StringVar(&simulateOut, "out", "", "Record readings to this NDJSON file")
	simulateCmd.Flags().StringVar(&simulateFormat, "format", "text", "Output format: text|json")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "Deliver alerts through the configured notifiers")
	simulateCmd.Flags().BoolVar(&simulateReports, "reports", true, "Print daily reports at the end")
}

// alertTally counts alerts by kind
type alertTally struct {
	mu     sync.Mutex
	counts map[models.AlertKind]int
	total  int
}

func newAlertTally() *alertTally {
	return &alertTally{counts: make(map[models.AlertKind]int)}
}

func (t *alertTally) Notify(ctx context.Context, alert models.Alert) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[alert.Kind]++
	t.total++
	return nil
}

func (t *alertTally) summary() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, n := range t.counts {
		out[string(k)] = n
	}
	return out
}

// simulationResult is the machine-readable outcome of a run
type simulationResult struct {
	Start    time.Time           `json:"start"`
	End      time.Time           `json:"end"`
	Steps    int                 `json:"steps"`
	Readings int                 `json:"readings"`
	Alerts   map[string]int      `json:"alerts"`
	Reports  []models.ReportView `json:"reports,omitempty"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simulateHours <= 0 {
		return fmt.Errorf("--hours must be positive")
	}
	if simulateStep <= 0 {
		return fmt.Errorf("--step must be positive")
	}
	if simulateFormat != "text" && simulateFormat != "json" {
		return fmt.Errorf("unknown format %q (use text or json)", simulateFormat)
	}

	period := time.Duration(simulateHours * float64(time.Hour))
	start, err := parseStart(simulateStart, time.Now().Truncate(time.Minute).Add(-period))
	if err != nil {
		return err
	}
	if simulateSeed != 0 {
		cfg.Simulation.Seed = simulateSeed
	}

	table, err := loadTable(cfg.Simulation.Regimes)
	if err != nil {
		return err
	}

	// single goroutine drives the clock, generators and engine
	clock := start
	now := func() time.Time { return clock }

	tally := newAlertTally()
	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger, appOptions{
		notifiers:    simulateNotify,
		clock:        now,
		backpressure: true,
		extra:        []notify.Named{{Name: "tally", Notifier: tally}},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	var rec *recorder.Recorder
	if simulateOut != "" {
		rec, err = recorder.NewRecorder(simulateOut)
		if err != nil {
			return err
		}
		defer rec.Close()
	}

	gens := buildGenerators(cfg, table, logger, now)
	for _, gen := range gens {
		if rec != nil {
			gen.Subscribe(rec.Subscriber())
		}
		a.engine.Attach(gen)
	}

	out := cmd.OutOrStdout()
	text := simulateFormat == "text"
	if text && !globalOpts.Quiet {
		fmt.Fprintf(out, "⏩ Simulating %s for %d device(s) from %s\n", period, len(gens), start.Format(time.RFC3339))
		fmt.Fprintf(out, "   Regime table: %s, step %s\n\n", table.Name, simulateStep)
	}

	steps := int(period / simulateStep)
	for i := 0; i < steps; i++ {
		clock = clock.Add(simulateStep)
		for _, gen := range gens {
			gen.Tick()
		}
	}

	a.engine.Flush()

	if rec != nil {
		if err := rec.Flush(); err != nil {
			return err
		}
		if err := rec.Err(); err != nil {
			return fmt.Errorf("recording failed: %w", err)
		}
	}

	result := simulationResult{
		Start:  start,
		End:    clock,
		Steps:  steps,
		Alerts: tally.summary(),
	}
	var reports []models.Report
	for _, d := range a.engine.Devices() {
		result.Readings += d.Readings
		if !simulateReports {
			continue
		}
		r, err := a.engine.GenerateDailyReport(d.ID)
		if err != nil {
			continue
		}
		reports = append(reports, r)
		result.Reports = append(result.Reports, r.View())
	}

	if !text {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "✅ Simulated %d steps, %d readings\n", result.Steps, result.Readings)
	if rec != nil {
		fmt.Fprintf(out, "   Recorded %d readings to %s\n", rec.Count(), simulateOut)
	}
	fmt.Fprintf(out, "   Alerts raised: %d\n", tally.total)
	kinds := make([]string, 0, len(result.Alerts))
	for k := range result.Alerts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(out, "     %-20s %d\n", k, result.Alerts[k])
	}
	fmt.Fprintln(out)

	for _, r := range reports {
		printReport(out, r)
	}
	return nil
}
