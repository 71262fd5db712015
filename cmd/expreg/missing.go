package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/optkit/expreg/internal/registry"
)

// targetsFile is the YAML grid of parameter combinations a study is
// expected to cover.
type targetsFile struct {
	GridSizes    []int     `yaml:"grid_sizes"`
	Domains      []float64 `yaml:"domains"`
	DegreeRanges []struct {
		Min int `yaml:"min"`
		Max int `yaml:"max"`
	} `yaml:"degree_ranges"`
}

var missingCmd = &cobra.Command{
	Use:   "missing",
	Short: "List parameter combinations with no experiment",
	Long: `Compare the registry against a target parameter grid and list every
combination that has no registered experiment. Existence is what
counts: one run covers a combination, repeats do not matter.

Targets come from a YAML file (--targets):

    grid_sizes: [8, 16, 32]
    domains: [0.1, 0.2]
    degree_ranges:
      - {min: 4, max: 12}

Without a targets file, the grid defaults to the cross product of every
value observed in the registry, which surfaces holes in an otherwise
regular sweep.`,
	Run: func(cmd *cobra.Command, args []string) {
		targetsPath, _ := cmd.Flags().GetString("targets")
		if targetsPath == "" {
			targetsPath = cfg.TargetsPath
		}

		reg := loadRegistry()

		var gns []int
		var domains []float64
		var ranges []registry.DegreeRange

		if targetsPath != "" {
			data, err := os.ReadFile(targetsPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to read targets file: %v\n", err)
				os.Exit(1)
			}
			var targets targetsFile
			if err := yaml.Unmarshal(data, &targets); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to parse targets file: %v\n", err)
				os.Exit(1)
			}
			gns = targets.GridSizes
			domains = targets.Domains
			for _, dr := range targets.DegreeRanges {
				ranges = append(ranges, registry.DegreeRange{Min: dr.Min, Max: dr.Max})
			}
		} else {
			cov := reg.ComputeCoverage()
			gns = cov.GNs
			domains = cov.Domains
			ranges = cov.DegreeRanges
		}

		missing := reg.FindMissing(gns, domains, ranges)

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		if len(missing) == 0 {
			fmt.Printf("%s Full coverage: all %d combination(s) present\n",
				green("✓"), len(gns)*len(domains)*len(ranges))
			return
		}

		fmt.Printf("%s %d missing combination(s):\n", yellow("⚠"), len(missing))
		for _, m := range missing {
			fmt.Printf("  GN=%-4d deg=%d-%-4d domain=%.3e\n", m.GN, m.DegMin, m.DegMax, m.Domain)
		}
	},
}

func init() {
	missingCmd.Flags().StringP("targets", "t", "", "YAML file with the target parameter grid")
	rootCmd.AddCommand(missingCmd)
}
