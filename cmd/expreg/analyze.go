package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/optkit/expreg/internal/orchestrator"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze pending experiments",
	Long: `Run the analysis collaborator over every pending (discovered)
experiment, oldest first. Each experiment is moved through analyzing to
analyzed or failed, and the registry is persisted after every
transition. One experiment's failure never blocks the rest of the
batch.`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		retryFailed, _ := cmd.Flags().GetBool("retry-failed")
		command, _ := cmd.Flags().GetString("cmd")
		maxInFlight, _ := cmd.Flags().GetInt("max-in-flight")
		if maxInFlight == 0 {
			maxInFlight = cfg.MaxInFlight
		}

		reg := loadRegistry()
		journal := openJournal()
		if journal != nil {
			defer journal.Close()
		}

		orch, err := orchestrator.New(&orchestrator.Config{
			Registry:     reg,
			RegistryPath: cfg.RegistryPath,
			Objective:    cfg.Objective,
			Analyzers:    buildAnalyzers(command),
			Journal:      journal,
			MaxInFlight:  maxInFlight,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if retryFailed {
			requeued, err := orch.RetryFailed(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to requeue: %v\n", err)
				os.Exit(1)
			}
			if requeued > 0 {
				fmt.Printf("Requeued %d failed experiment(s)\n", requeued)
			}
		}

		summary, err := orch.AnalyzePending(ctx, limit)
		if err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		if summary.Total == 0 {
			fmt.Printf("%s Nothing pending\n", gray("○"))
			return
		}
		fmt.Printf("%s %d analyzed, %s %d failed (of %d pending)\n",
			green("✓"), summary.Analyzed,
			red("✗"), summary.Failed,
			summary.Total)
		if summary.Failed > 0 {
			fmt.Printf("  Run 'expreg analyze --retry-failed' to requeue failures\n")
		}
	},
}

func init() {
	analyzeCmd.Flags().IntP("limit", "n", 0, "Analyze at most N experiments (0 = all pending)")
	analyzeCmd.Flags().Bool("retry-failed", false, "Requeue failed experiments before analyzing")
	analyzeCmd.Flags().String("cmd", "", "Analysis command to run (overrides config)")
	analyzeCmd.Flags().Int("max-in-flight", 0, "Concurrent analyses (default from config, 1 = sequential)")
	rootCmd.AddCommand(analyzeCmd)
}
