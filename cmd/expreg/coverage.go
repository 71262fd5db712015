package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Show parameter-space coverage",
	Long: `Display the experiment count for every observed (grid size, domain)
cell, plus the degree ranges seen. Counts aggregate over degree range
and seed, so a cell shows how many runs cover that region of parameter
space regardless of how they were configured.`,
	Run: func(cmd *cobra.Command, args []string) {
		reg := loadRegistry()
		cov := reg.ComputeCoverage()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Parameter Coverage ==="))

		if len(cov.GNs) == 0 {
			fmt.Printf("  %s\n", gray("No experiments with parsed parameters"))
			return
		}

		// Header row: domains.
		fmt.Printf("  %8s", "GN")
		for _, d := range cov.Domains {
			fmt.Printf("  %12.3e", d)
		}
		fmt.Println()

		for i, gn := range cov.GNs {
			fmt.Printf("  %8d", gn)
			for j := range cov.Domains {
				count := cov.Counts[i][j]
				if count == 0 {
					fmt.Printf("  %12s", gray("-"))
				} else {
					fmt.Printf("  %12s", green(fmt.Sprintf("%d", count)))
				}
			}
			fmt.Println()
		}

		fmt.Printf("\n  Degree ranges observed: ")
		for i, dr := range cov.DegreeRanges {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Printf("%d-%d", dr.Min, dr.Max)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(coverageCmd)
}
