package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/optkit/expreg/internal/extract"
	"github.com/optkit/expreg/internal/marker"
)

// FindCompletedExperiments lists completed experiment directories under
// resultsRoot, newest first by modification time. When the root has a
// subdirectory named after the objective family, only that subdirectory
// is searched; otherwise the root itself is.
func FindCompletedExperiments(resultsRoot, objective string) ([]string, error) {
	searchDir := resultsRoot
	if objective != "" && objective != extract.ObjectiveAuto {
		familyDir := filepath.Join(resultsRoot, objective)
		if info, err := os.Stat(familyDir); err == nil && info.IsDir() {
			searchDir = familyDir
		}
	}

	entries, err := os.ReadDir(searchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory %s: %w", searchDir, err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var completed []candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(searchDir, entry.Name())
		if !marker.IsComplete(dir) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stat %s: %v (skipping)\n", dir, err)
			continue
		}
		completed = append(completed, candidate{path: dir, modTime: info.ModTime()})
	}

	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].modTime.After(completed[j].modTime)
	})

	paths := make([]string, len(completed))
	for i, c := range completed {
		paths[i] = c.path
	}
	return paths, nil
}

// ScanForNew discovers completed experiments under the registry's results
// root and adds the ones not yet tracked. The scan is idempotent by path:
// entries already present are never re-added or overwritten, whatever
// their on-disk state. Returns the number of newly added entries.
func (r *Registry) ScanForNew(objective string) (int, error) {
	paths, err := FindCompletedExperiments(r.ResultsRoot, objective)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, path := range paths {
		if _, exists := r.Entries[path]; exists {
			continue
		}

		name := filepath.Base(path)
		meta := marker.ParseCompletionMetadata(path)

		var completedAt *time.Time
		if ts, ok := meta[marker.CompletedAtKey].AsTime(); ok {
			completedAt = &ts
		} else if info, err := os.Stat(path); err == nil {
			mt := info.ModTime()
			completedAt = &mt
		}

		params, _ := extract.Extract(name, objectiveHint(objective))
		r.AddExperiment(path, name, completedAt, params)
		added++
	}

	now := time.Now()
	r.LastScan = &now
	return added, nil
}

// objectiveHint maps an empty objective to auto-detection.
func objectiveHint(objective string) string {
	if objective == "" {
		return extract.ObjectiveAuto
	}
	return objective
}
