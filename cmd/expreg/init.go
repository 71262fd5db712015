package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/optkit/expreg/internal/registry"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the registry and journal",
	Long: `Create the registry file and transition journal at their configured
locations. An existing registry is left untouched, so init is always
safe to rerun.`,
	Run: func(cmd *cobra.Command, args []string) {
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		if _, err := os.Stat(cfg.RegistryPath); err == nil {
			reg := loadRegistry()
			fmt.Printf("%s Registry already exists: %s (%d experiments)\n",
				gray("○"), cfg.RegistryPath, reg.Len())
		} else {
			reg := registry.New(cfg.ResultsRoot)
			saveRegistry(reg)
			fmt.Printf("%s Created registry: %s\n", green("✓"), cfg.RegistryPath)
		}

		if journal := openJournal(); journal != nil {
			journal.Close()
			fmt.Printf("%s Journal ready: %s\n", green("✓"), cfg.JournalPath)
		}

		fmt.Printf("\nNext: expreg scan --results-root <dir>\n")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
