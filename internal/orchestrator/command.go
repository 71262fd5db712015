package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandAnalyzer runs an external analysis program with the experiment
// directory appended as the final argument. This is the normal production
// collaborator: the numerical post-processing lives in a separate tool
// and the orchestrator only cares about its exit status.
type CommandAnalyzer struct {
	Command string
	Args    []string
	Timeout time.Duration // 0 means no deadline beyond the caller's context
}

// Analyze runs the configured command against experimentPath. The
// command's combined output is captured and folded into the error on
// failure so the registry records why the collaborator rejected the run.
func (a *CommandAnalyzer) Analyze(ctx context.Context, experimentPath string) error {
	if a.Command == "" {
		return fmt.Errorf("no analysis command configured")
	}

	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, a.Args...), experimentPath)
	cmd := exec.CommandContext(ctx, a.Command, args...)
	cmd.Dir = experimentPath

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		tail := lastLines(output.String(), 5)
		if tail != "" {
			return fmt.Errorf("%s failed: %w: %s", a.Command, err, tail)
		}
		return fmt.Errorf("%s failed: %w", a.Command, err)
	}
	return nil
}

// lastLines returns up to n trailing non-empty lines of s, joined with
// "; " so they fit in a single error string.
func lastLines(s string, n int) string {
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "; ")
}
