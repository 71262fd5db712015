package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/optkit/expreg/internal/types"
)

// SchemaVersion tags the registry file format. Loading tolerates any
// version with the same major; anything else starts fresh with a warning.
const SchemaVersion = "v1.0.0"

// document is the on-disk shape of the registry file.
type document struct {
	Experiments map[string]*types.ExperimentEntry `json:"experiments"`
	ResultsRoot string                            `json:"results_root"`
	LastScan    *time.Time                        `json:"last_scan"`
	Config      map[string]types.Value            `json:"config"`
	Version     string                            `json:"version"`
}

// Load reads a registry from path. A missing, malformed or incompatible
// file yields a fresh empty registry rooted at defaultRoot — a corrupt
// cache must never prevent the tool from starting. Indices are always
// rebuilt from the loaded entries, never trusted from the file.
func Load(path, defaultRoot string) *Registry {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to read registry %s: %v (starting fresh)\n", path, err)
		}
		return New(defaultRoot)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: malformed registry %s: %v (starting fresh)\n", path, err)
		return New(defaultRoot)
	}

	if !versionCompatible(doc.Version) {
		fmt.Fprintf(os.Stderr, "Warning: registry %s has incompatible version %q (want %s major, starting fresh)\n",
			path, doc.Version, semver.Major(SchemaVersion))
		return New(defaultRoot)
	}

	// A null entry value is well-formed JSON but useless; dropping it
	// beats refusing to start over one damaged record.
	for p, e := range doc.Experiments {
		if e == nil {
			fmt.Fprintf(os.Stderr, "Warning: registry %s has a null entry for %s (dropping)\n", path, p)
			delete(doc.Experiments, p)
		}
	}

	r := &Registry{
		Entries:     doc.Experiments,
		ResultsRoot: doc.ResultsRoot,
		LastScan:    doc.LastScan,
		Config:      doc.Config,
	}
	if r.Entries == nil {
		r.Entries = make(map[string]*types.ExperimentEntry)
	}
	if r.Config == nil {
		r.Config = make(map[string]types.Value)
	}
	if r.ResultsRoot == "" {
		r.ResultsRoot = defaultRoot
	}
	r.rebuildIndices()
	return r
}

// Save serializes the registry to path as a whole-document write: the
// JSON is written to a temporary file in the same directory and renamed
// into place, so a crash mid-save never leaves a half-written registry.
func (r *Registry) Save(path string) error {
	doc := document{
		Experiments: r.Entries,
		ResultsRoot: r.ResultsRoot,
		LastScan:    r.LastScan,
		Config:      r.Config,
		Version:     SchemaVersion,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary registry file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close registry file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace registry file: %w", err)
	}
	return nil
}

// versionCompatible accepts version tags with the same semver major as
// SchemaVersion. Tags written without a leading "v" are normalized first.
func versionCompatible(version string) bool {
	if version == "" {
		return false
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return false
	}
	return semver.Major(version) == semver.Major(SchemaVersion)
}
