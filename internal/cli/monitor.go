package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/recorder"
	"github.com/synheart/roomwatch/internal/server"
)

var (
	monitorHost     string
	monitorPort     int
	monitorRate     string
	monitorDuration time.Duration
	monitorRecord   string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the simulator, alerting engine and HTTP API",
	Long: `Starts one simulated sensor per configured device, evaluates every
reading against the alerting rules and serves the HTTP API, the live
WebSocket/SSE feed and Prometheus metrics.

Examples:
  roomwatch monitor
  roomwatch monitor --rate 2hz --port 9000
  roomwatch monitor --duration 10m --record session.ndjson`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorHost, "host", "", "Host to bind to (default from config)")
	monitorCmd.Flags().IntVar(&monitorPort, "port", 0, "Port to listen on (default from config)")
	monitorCmd.Flags().StringVar(&monitorRate, "rate", "", "Sensor tick rate, e.g. 1hz (default from config interval)")
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	monitorCmd.Flags().StringVar(&monitorRecord, "record", "", "Also record readings to this NDJSON file")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorHost != "" {
		cfg.HTTP.Host = monitorHost
	}
	if monitorPort != 0 {
		cfg.HTTP.Port = monitorPort
	}
	interval := cfg.Simulation.Interval
	if monitorRate != "" {
		d, err := parseTickRate(monitorRate)
		if err != nil {
			return err
		}
		interval = d
	}

	table, err := loadTable(cfg.Simulation.Regimes)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if monitorDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, monitorDuration)
		defer cancel()
	}

	a, err := newApp(ctx, cfg, logger, appOptions{notifiers: true, live: cfg.Live.Enabled})
	if err != nil {
		return err
	}
	defer a.Close()

	var rec *recorder.Recorder
	if monitorRecord != "" {
		rec, err = recorder.NewRecorder(monitorRecord)
		if err != nil {
			return err
		}
		defer rec.Close()
	}

	gens := buildGenerators(cfg, table, logger, nil)
	publisher := a.readingPublisher()
	for _, gen := range gens {
		a.engine.Attach(gen)
		if a.live != nil {
			gen.Subscribe(a.live.Feed.PublishReading)
		}
		if publisher != nil {
			gen.Subscribe(publisher.Publish)
		}
		if rec != nil {
			gen.Subscribe(rec.Subscriber())
		}
	}

	serverOpts := []server.Option{server.WithLogger(logger), server.WithRegistry(a.registry)}
	if a.live != nil {
		serverOpts = append(serverOpts, server.WithLive(a.live))
	}
	srv := server.NewServer(cfg.HTTP, a.engine, serverOpts...)

	var wg sync.WaitGroup
	if a.live != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.live.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	out := cmd.OutOrStdout()
	if !globalOpts.Quiet {
		fmt.Fprintf(out, "🏠 roomwatch monitoring %d device(s)\n", len(gens))
		fmt.Fprintf(out, "   Regime table:  %s\n", table.Name)
		fmt.Fprintf(out, "   Tick interval: %s\n", interval)
		fmt.Fprintf(out, "   HTTP API:      http://%s/v1/devices\n", srv.Address())
		if a.live != nil {
			fmt.Fprintf(out, "   Live feed:     ws://%s/live (%s)\n", srv.Address(), cfg.Live.Encoding)
		}
		fmt.Fprintf(out, "   Notifiers:     %v\n", a.notifier.Names())
		if rec != nil {
			fmt.Fprintf(out, "   Recording to:  %s\n", monitorRecord)
		}
		fmt.Fprintln(out, "\nPress Ctrl+C to stop")
	}

	for _, gen := range gens {
		gen.Start(interval)
	}

	var serverErr error
	select {
	case <-ctx.Done():
		serverErr = <-errCh
	case serverErr = <-errCh:
		stop()
	}

	for _, gen := range gens {
		gen.Stop()
	}
	wg.Wait()

	if serverErr != nil {
		logger.Error("HTTP server stopped", zap.Error(serverErr))
	}

	if !globalOpts.Quiet {
		fmt.Fprintln(out, "\n✅ Monitoring stopped")
		for _, d := range a.engine.Devices() {
			fmt.Fprintf(out, "   %-4s %-16s %d readings\n", d.ID, d.RoomName, d.Readings)
		}
		stats := srv.Stats()
		fmt.Fprintf(out, "   Ingested readings: %d (%d duplicates, %d errors)\n", stats.TotalReceived, stats.TotalDuplicates, stats.TotalErrors)
		if a.live != nil {
			fmt.Fprintf(out, "   Live frames dropped: %d\n", a.live.Dropped())
		}
		if rec != nil {
			fmt.Fprintf(out, "   Recorded %d readings to %s\n", rec.Count(), monitorRecord)
		}
	}

	if rec != nil {
		if err := rec.Err(); err != nil {
			return fmt.Errorf("recording failed: %w", err)
		}
	}
	return serverErr
}
