package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/notify"
	"github.com/synheart/roomwatch/internal/recorder"
	"github.com/synheart/roomwatch/internal/server"
)

var (
	replaySpeed  float64
	replayLoop   bool
	replayNotify bool
	replayServe  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a recorded session through the alerting engine",
	Long: `Replays readings from a recorded NDJSON file through the alerting
engine, printing alerts as they are raised. With --serve the HTTP API
and live feed run while the session plays.

Examples:
  roomwatch replay day.ndjson --speed 0
  roomwatch replay day.ndjson --speed 60 --serve
  roomwatch replay day.ndjson --loop --serve --notify`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without waiting)")
	replayCmd.Flags().BoolVar(&replayLoop, "loop", false, "Loop playback continuously")
	replayCmd.Flags().BoolVar(&replayNotify, "notify", false, "Deliver alerts through the configured notifiers")
	replayCmd.Flags().BoolVar(&replayServe, "serve", false, "Serve the HTTP API and live feed during playback")
}

func runReplay(cmd *cobra.Command, args []string) error {
	file := args[0]
	if replaySpeed < 0 {
		return fmt.Errorf("--speed must not be negative")
	}

	rep := recorder.NewReplayer(file, replaySpeed, replayLoop)
	count, err := rep.CountReadings()
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}
	first, last, err := rep.Span()
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var printMu sync.Mutex
	printer := notify.Func(func(ctx context.Context, alert models.Alert) error {
		printMu.Lock()
		defer printMu.Unlock()
		printAlert(out, alert)
		return nil
	})

	// reports cover the 24h before the newest reading seen so far
	var clockMu sync.Mutex
	newest := first
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return newest
	}

	a, err := newApp(ctx, cfg, logger, appOptions{
		notifiers: replayNotify,
		live:      replayServe && cfg.Live.Enabled,
		clock:     clock,
		extra:     []notify.Named{{Name: "console", Notifier: printer}},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if !globalOpts.Quiet {
		fmt.Fprintf(out, "▶️  Replaying %s\n", file)
		fmt.Fprintf(out, "   Readings: %d\n", count)
		fmt.Fprintf(out, "   Span:     %s → %s (%s)\n", first.Format("2006-01-02 15:04:05"), last.Format("2006-01-02 15:04:05"), last.Sub(first))
		if replaySpeed > 0 {
			fmt.Fprintf(out, "   Speed:    %.1fx\n", replaySpeed)
		} else {
			fmt.Fprintln(out, "   Speed:    as fast as possible")
		}
		fmt.Fprintln(out)
	}

	var wg sync.WaitGroup
	var srv *server.Server
	serverErr := make(chan error, 1)
	if replayServe {
		opts := []server.Option{server.WithLogger(logger), server.WithRegistry(a.registry)}
		if a.live != nil {
			opts = append(opts, server.WithLive(a.live))
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.live.Run(ctx)
			}()
		}
		srv = server.NewServer(cfg.HTTP, a.engine, opts...)
		go func() {
			serverErr <- srv.Start(ctx)
		}()
		if !globalOpts.Quiet {
			fmt.Fprintf(out, "   HTTP API: http://%s/v1/devices\n\n", srv.Address())
		}
	}

	readings := make(chan models.Reading, 100)
	replayErr := make(chan error, 1)
	go func() {
		replayErr <- rep.Replay(ctx, readings)
		close(readings)
	}()

	processed := 0
	for r := range readings {
		clockMu.Lock()
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
		clockMu.Unlock()

		a.engine.Process(ctx, r)
		if a.live != nil {
			a.live.Feed.PublishReading(r)
		}
		processed++
	}

	err = <-replayErr
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("replay failed: %w", err)
	}
	a.engine.Flush()

	// keep serving the replayed state until interrupted
	if replayServe && ctx.Err() == nil {
		if !globalOpts.Quiet {
			fmt.Fprintln(out, "\nPlayback finished, still serving. Press Ctrl+C to stop")
		}
		select {
		case <-ctx.Done():
		case err := <-serverErr:
			if err != nil {
				logger.Error("HTTP server stopped", zap.Error(err))
			}
		}
		stop()
	}
	wg.Wait()

	if !globalOpts.Quiet {
		fmt.Fprintf(out, "\n✅ Replay complete, %d readings processed\n", processed)
		for _, d := range a.engine.Devices() {
			if d.Readings == 0 {
				continue
			}
			fmt.Fprintf(out, "   %-4s %-16s %d readings, last at %s\n", d.ID, d.RoomName, d.Readings, d.LastSeenAt.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}
