package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/optkit/expreg/internal/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the results directory for completed experiments",
	Long: `Scan the results directory for completed experiment runs and register
any that are not yet known.

A run is considered complete when its directory contains a
.EXPERIMENT_COMPLETE marker or a results_summary.json. Already-registered
paths are skipped, so rescanning is always safe.`,
	Run: func(cmd *cobra.Command, args []string) {
		reg := loadRegistry()

		added, err := reg.ScanForNew(cfg.Objective)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: scan failed: %v\n", err)
			os.Exit(1)
		}
		saveRegistry(reg)

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		if added > 0 {
			fmt.Printf("%s Registered %d new experiment(s)\n", green("✓"), added)
		} else {
			fmt.Printf("%s No new experiments found\n", gray("○"))
		}

		counts := reg.CountByStatus()
		fmt.Printf("  Registry: %d total (%d discovered, %d analyzing, %d analyzed, %d failed)\n",
			reg.Len(),
			counts[types.StatusDiscovered],
			counts[types.StatusAnalyzing],
			counts[types.StatusAnalyzed],
			counts[types.StatusFailed])
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
