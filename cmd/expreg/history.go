package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/optkit/expreg/internal/events"
)

var historyCmd = &cobra.Command{
	Use:   "history <experiment>",
	Short: "Show the transition history of one experiment",
	Long: `Display the recorded lifecycle transitions for an experiment, newest
first. The argument is an experiment path, or a directory name that is
resolved against the registry.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		path := args[0]

		// Resolve a bare name to its registered path.
		reg := loadRegistry()
		if _, ok := reg.Get(path); !ok {
			for _, e := range reg.Entries {
				if e.Name == path {
					path = e.Path
					break
				}
			}
		}

		journal, err := events.Open(cfg.JournalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open journal: %v\n", err)
			os.Exit(1)
		}
		defer journal.Close()

		transitions, err := journal.History(context.Background(), path, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read history: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		if len(transitions) == 0 {
			fmt.Printf("%s No recorded transitions for %s\n", gray("○"), path)
			return
		}

		for _, tr := range transitions {
			fmt.Printf("%s  %s → %s",
				tr.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				tr.OldStatus, tr.NewStatus)
			if tr.Error != "" {
				fmt.Printf("  %s", red(tr.Error))
			}
			if id := tr.InstanceID; id != "" {
				if len(id) > 8 {
					id = id[:8]
				}
				fmt.Printf("  %s", gray(id))
			}
			fmt.Println()
		}
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 0, "Show at most N transitions (0 = all)")
	rootCmd.AddCommand(historyCmd)
}
