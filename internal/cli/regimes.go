package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/synheart/roomwatch/internal/regime"
)

var regimesCmd = &cobra.Command{
	Use:   "regimes",
	Short: "Inspect the regime tables that drive the simulator",
}

var regimesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available regime tables",
	Long:  `Lists the built-in regime tables and any tables found in ./regimes.`,
	RunE:  runRegimesList,
}

var regimesDescribeCmd = &cobra.Command{
	Use:   "describe <table|file.yaml>",
	Short: "Show the profiles of a regime table",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegimesDescribe,
}

func init() {
	regimesCmd.AddCommand(regimesListCmd)
	regimesCmd.AddCommand(regimesDescribeCmd)
}

func runRegimesList(cmd *cobra.Command, args []string) error {
	registry, err := tableRegistry()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	descriptions := registry.ListWithDescriptions()
	fmt.Fprintln(out, "Available regime tables:")
	fmt.Fprintln(out)
	for _, name := range registry.List() {
		marker := " "
		if name == cfg.Simulation.Regimes {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %-12s %s\n", marker, name, descriptions[name])
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Use 'roomwatch regimes describe <name>' for details")
	return nil
}

func runRegimesDescribe(cmd *cobra.Command, args []string) error {
	table, err := loadTable(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Regime table: %s\n", table.Name)
	if table.Description != "" {
		fmt.Fprintf(out, "Description:  %s\n", table.Description)
	}
	fmt.Fprintln(out)

	for _, r := range regime.All {
		p := table.Regimes[r]
		if p == nil {
			continue
		}
		fmt.Fprintf(out, "%s (%s)\n", strings.ToUpper(string(r)), regimeHours(r))

		total := 0.0
		for _, c := range p.Activity {
			total += c.Weight
		}
		for _, c := range p.Activity {
			share := 0.0
			if total > 0 {
				share = c.Weight / total
			}
			fmt.Fprintf(out, "  activity %-8s %s %3.0f%%\n", c.Level, renderBar(share, 20), share*100)
		}
		fmt.Fprintf(out, "  irregular breathing %.0f%%\n", p.IrregularBreathing*100)
		fmt.Fprintf(out, "  agitation %.0f-%.0f, step ±%.0f\n", p.Agitation.Min, p.Agitation.Max, p.Agitation.Step)
		fmt.Fprintln(out)
	}
	return nil
}

func regimeHours(r regime.Regime) string {
	switch r {
	case regime.Night:
		return "22:00-06:00"
	case regime.Morning:
		return "06:00-10:00"
	default:
		return "10:00-22:00"
	}
}
