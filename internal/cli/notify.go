package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/synheart/roomwatch/internal/notify"
)

var previewDryRun bool

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Work with alert delivery channels",
}

var notifyPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Send sample notifications through the configured notifiers",
	Long: `Sends one sample of each notification a caregiver can receive
(inactivity, fall, temperature, device offline, contact update) through
every notifier enabled in the config.

Examples:
  roomwatch notify preview --dry-run
  ROOMWATCH_NOTIFY_WEBHOOK_ENABLED=true roomwatch notify preview`,
	RunE: runNotifyPreview,
}

func init() {
	notifyPreviewCmd.Flags().BoolVar(&previewDryRun, "dry-run", false, "Print the payloads instead of sending them")
	notifyCmd.AddCommand(notifyPreviewCmd)
}

func runNotifyPreview(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	now := time.Now()

	if previewDryRun {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		for _, alert := range notify.PreviewAlerts(now) {
			if err := enc.Encode(alert.Payload()); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, appOptions{notifiers: true})
	if err != nil {
		return err
	}
	defer a.Close()

	names := a.notifier.Names()
	if len(names) == 0 {
		return fmt.Errorf("no notifiers enabled in the config")
	}
	fmt.Fprintf(out, "📨 Sending previews through %v\n", names)

	sent, err := notify.SendPreviews(ctx, a.notifier, now)
	fmt.Fprintf(out, "   Sent %d of %d previews\n", sent, len(notify.PreviewAlerts(now)))
	return err
}
