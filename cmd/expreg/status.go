package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/optkit/expreg/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registry status",
	Long:  `Display registry location, size, per-status counts, and the most recent experiments.`,
	Run: func(cmd *cobra.Command, args []string) {
		reg := loadRegistry()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== expreg Status ==="))
		fmt.Printf("  Registry: %s\n", cfg.RegistryPath)
		fmt.Printf("  Results:  %s\n", reg.ResultsRoot)
		if reg.LastScan != nil {
			fmt.Printf("  Last scan: %s\n", reg.LastScan.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Printf("  Last scan: %s\n", gray("never"))
		}
		fmt.Println()

		counts := reg.CountByStatus()
		fmt.Printf("%s\n", yellow("Experiments:"))
		fmt.Printf("  %s discovered: %d\n", gray("○"), counts[types.StatusDiscovered])
		fmt.Printf("  %s analyzing:  %d\n", yellow("◐"), counts[types.StatusAnalyzing])
		fmt.Printf("  %s analyzed:   %d\n", green("●"), counts[types.StatusAnalyzed])
		fmt.Printf("  %s failed:     %d\n", red("✗"), counts[types.StatusFailed])
		fmt.Printf("  Total: %d\n", reg.Len())

		// Most recent entries by completion time.
		entries := make([]*types.ExperimentEntry, 0, reg.Len())
		for _, e := range reg.Entries {
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].SortKey().After(entries[j].SortKey())
		})
		if len(entries) > 5 {
			entries = entries[:5]
		}

		if len(entries) > 0 {
			fmt.Printf("\n%s\n", yellow("Recent:"))
			for _, e := range entries {
				fmt.Printf("  [%s] %s\n", e.Status, e.Name)
			}
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
