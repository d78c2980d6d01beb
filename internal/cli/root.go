package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/synheart/roomwatch/internal/config"
	logging "github.com/synheart/roomwatch/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "roomwatch",
	Short: "roomwatch - room telemetry simulator and alerting engine",
	Long: `roomwatch simulates presence, activity, breathing and agitation
readings for monitored rooms, evaluates alerting rules on a rolling
window of history and produces daily activity reports.

Readings can come from the built-in simulator, from recorded NDJSON
sessions, or from real sensors posting to the HTTP API.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalOpts.ConfigFile, "config", "", "Config file (default ./roomwatch.yaml)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.LogLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.LogFormat, "log-format", "", "Log format: console|json (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.Quiet, "quiet", "q", false, "Only print errors and final results")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(regimesCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(globalOpts.ConfigFile)
	if err != nil {
		return err
	}
	if globalOpts.LogLevel != "" {
		loaded.Logging.Level = globalOpts.LogLevel
	}
	if globalOpts.LogFormat != "" {
		loaded.Logging.Format = globalOpts.LogFormat
	}
	if globalOpts.Quiet && globalOpts.LogLevel == "" {
		loaded.Logging.Level = "error"
	}

	log, err := logging.NewLogger(loaded.Logging.Level, loaded.Logging.Format, "roomwatch")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	cfg, logger = loaded, log
	return nil
}
