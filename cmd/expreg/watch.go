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
	"github.com/optkit/expreg/internal/registry"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously discover and analyze experiments",
	Long: `Run the continuous pipeline: scan for newly completed experiments,
analyze everything pending, persist, sleep, repeat.

Only one watcher may run against a registry at a time; a lock file next
to the registry enforces this, and stale locks from dead processes are
reclaimed automatically. Ctrl-C stops the loop cleanly; state is
persisted after every step, so there is nothing to flush on exit.`,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		maxIterations, _ := cmd.Flags().GetInt("max-iterations")
		maxPerMinute, _ := cmd.Flags().GetInt("max-per-minute")
		maxInFlight, _ := cmd.Flags().GetInt("max-in-flight")
		command, _ := cmd.Flags().GetString("cmd")
		noNotify, _ := cmd.Flags().GetBool("no-fsnotify")

		if interval <= 0 {
			interval = cfg.PollInterval
		}
		if maxPerMinute == 0 {
			maxPerMinute = cfg.MaxPerMinute
		}
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
			MaxPerMinute: maxPerMinute,
			MaxInFlight:  maxInFlight,
			WatchFS:      !noNotify,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		lockPath, err := registry.AcquireWatchLock(cfg.RegistryPath, orch.InstanceID())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer registry.ReleaseWatchLock(lockPath)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("%s\n", cyan("=== expreg watch ==="))
		fmt.Printf("  Results:  %s\n", cfg.ResultsRoot)
		fmt.Printf("  Registry: %s\n", cfg.RegistryPath)
		fmt.Printf("  Interval: %v\n", interval)
		fmt.Println()

		if err := orch.Watch(ctx, interval, maxIterations); err != nil {
			fmt.Fprintf(os.Stderr, "Error: watch loop failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Watch stopped")
	},
}

func init() {
	watchCmd.Flags().DurationP("interval", "i", 0, "Poll interval between scans (default from config, 30s)")
	watchCmd.Flags().Int("max-iterations", 0, "Stop after N loop iterations (0 = run until interrupted)")
	watchCmd.Flags().Int("max-per-minute", 0, "Throttle analyses per minute (0 = unlimited)")
	watchCmd.Flags().Int("max-in-flight", 0, "Concurrent analyses (default from config, 1 = sequential)")
	watchCmd.Flags().String("cmd", "", "Analysis command to run (overrides config)")
	watchCmd.Flags().Bool("no-fsnotify", false, "Disable filesystem-event wakeups, poll only")
	rootCmd.AddCommand(watchCmd)
}
