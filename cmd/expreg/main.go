// expreg is the experiment registry and analysis orchestrator for
// numerical optimization runs. It discovers completed experiment
// directories, tracks their analysis lifecycle in a JSON registry, and
// drives external analysis collaborators in batch or watch mode.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/optkit/expreg/internal/config"
	"github.com/optkit/expreg/internal/events"
	"github.com/optkit/expreg/internal/orchestrator"
	"github.com/optkit/expreg/internal/registry"
)

var cfg *config.Config

var (
	flagRegistry    string
	flagResultsRoot string
	flagObjective   string
)

var rootCmd = &cobra.Command{
	Use:   "expreg",
	Short: "Experiment registry and analysis orchestrator",
	Long: `expreg tracks completed numerical-optimization experiments and drives
their post-processing.

It scans a results directory for completed experiment runs, extracts
typed parameters from directory names, records everything in a JSON
registry, and dispatches pending experiments to an external analysis
command, either as a one-shot batch or as a continuous watch loop.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if flagRegistry != "" {
			cfg.RegistryPath = flagRegistry
		}
		if flagResultsRoot != "" {
			cfg.ResultsRoot = flagResultsRoot
		}
		if flagObjective != "" {
			cfg.Objective = flagObjective
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRegistry, "registry", "", "Registry file path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagResultsRoot, "results-root", "", "Results directory to scan (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagObjective, "objective", "", "Objective family filter: lotka_volterra_4d, deuflhard, fitzhugh_nagumo, or auto")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadRegistry opens the registry at the configured path. Load never
// fails; a missing or unreadable file yields a fresh registry.
func loadRegistry() *registry.Registry {
	return registry.Load(cfg.RegistryPath, cfg.ResultsRoot)
}

func saveRegistry(reg *registry.Registry) {
	if err := reg.Save(cfg.RegistryPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save registry: %v\n", err)
		os.Exit(1)
	}
}

// openJournal opens the transition journal. Journal failures are never
// fatal to the pipeline, so callers get nil on error plus a warning.
func openJournal() *events.Journal {
	if cfg.JournalPath == "" {
		return nil
	}
	journal, err := events.Open(cfg.JournalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: transition journal unavailable: %v\n", err)
		return nil
	}
	return journal
}

// buildAnalyzers wires the configured analysis command to every
// experiment kind. An empty command means no collaborator is available
// and every analysis attempt will fail loudly.
func buildAnalyzers(command string) map[string]orchestrator.Analyzer {
	if command == "" {
		command = cfg.AnalyzeCmd
	}
	if command == "" {
		return nil
	}
	analyzer := &orchestrator.CommandAnalyzer{Command: command}
	return map[string]orchestrator.Analyzer{
		orchestrator.KindParameterRecovery: analyzer,
		orchestrator.KindLandscape:         analyzer,
		orchestrator.KindGeneric:           analyzer,
	}
}
