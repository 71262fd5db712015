// Package registry is the persistent, indexed collection of experiment
// entries: the canonical source of truth for what has been discovered on
// disk and how far each run has progressed through analysis.
//
// The registry assumes a single writer process. It performs no file
// locking on ordinary load/save; two concurrent instances saving the same
// registry path can clobber each other's updates. Watch mode additionally
// takes an exclusive lock file, see lock.go.
package registry

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/optkit/expreg/internal/extract"
	"github.com/optkit/expreg/internal/types"
)

// domainRelTol is the relative tolerance for domain equality in partial
// queries, absorbing round-trip precision loss.
const domainRelTol = 1e-6

// Registry holds all known experiment entries keyed by path, plus derived
// indices over the parameter dimensions. The indices are always exactly
// the partition of entries with non-nil params by the respective key, and
// are rebuilt from entries alone after every load.
type Registry struct {
	Entries     map[string]*types.ExperimentEntry
	ResultsRoot string
	LastScan    *time.Time
	Config      map[string]types.Value

	byHash   map[string]map[string]struct{}
	byGN     map[int]map[string]struct{}
	byDomain map[string]map[string]struct{}
}

// New creates an empty registry rooted at resultsRoot.
func New(resultsRoot string) *Registry {
	r := &Registry{
		Entries:     make(map[string]*types.ExperimentEntry),
		ResultsRoot: resultsRoot,
		Config:      make(map[string]types.Value),
	}
	r.rebuildIndices()
	return r
}

// Len returns the number of tracked experiments.
func (r *Registry) Len() int {
	return len(r.Entries)
}

// Get returns the entry at path, if tracked.
func (r *Registry) Get(path string) (*types.ExperimentEntry, bool) {
	e, ok := r.Entries[path]
	return e, ok
}

// AddExperiment inserts an experiment entry, deriving params from the
// directory name when none are supplied. If an entry already exists at
// path its index memberships are removed first and the entry is replaced,
// making this safe to use as add-or-replace.
func (r *Registry) AddExperiment(path, name string, completedAt *time.Time, params *types.ExperimentParams) *types.ExperimentEntry {
	if params == nil {
		params, _ = extract.Extract(name, extract.ObjectiveAuto)
	}

	hash := ""
	if params != nil {
		hash = params.Hash()
	}

	if old, ok := r.Entries[path]; ok {
		r.removeFromIndices(old)
	}

	entry := &types.ExperimentEntry{
		Path:         path,
		Name:         name,
		DiscoveredAt: time.Now(),
		CompletedAt:  completedAt,
		Status:       types.StatusDiscovered,
		Params:       params,
		ParamsHash:   hash,
	}
	r.Entries[path] = entry
	r.addToIndices(entry)
	return entry
}

// UpdateStatus sets the status of an existing entry. An unknown path is a
// caller bookkeeping error and fails loudly; the registry is left
// unmodified. AnalyzedAt is set only on the transition into analyzed,
// defaulting to now.
func (r *Registry) UpdateStatus(path string, status types.Status, analyzedAt *time.Time) error {
	entry, ok := r.Entries[path]
	if !ok {
		return fmt.Errorf("cannot update status of unknown experiment path %s", path)
	}
	if !status.IsValid() {
		return fmt.Errorf("invalid status %d for %s", int(status), path)
	}

	entry.Status = status
	if status == types.StatusAnalyzed {
		if analyzedAt == nil {
			now := time.Now()
			analyzedAt = &now
		}
		entry.AnalyzedAt = analyzedAt
	}
	return nil
}

// Requeue moves a failed entry back to discovered so the orchestrator
// picks it up again. This is the only path out of the failed status and
// is deliberately explicit rather than part of the forward state machine.
func (r *Registry) Requeue(path string) error {
	entry, ok := r.Entries[path]
	if !ok {
		return fmt.Errorf("cannot requeue unknown experiment path %s", path)
	}
	if entry.Status != types.StatusFailed {
		return fmt.Errorf("cannot requeue %s: status is %s, not failed", path, entry.Status)
	}
	entry.Status = types.StatusDiscovered
	entry.AnalyzedAt = nil
	return nil
}

// GetByExactParams returns all entries in the parameter cell identified
// by the four cell dimensions. O(1) via the hash index.
func (r *Registry) GetByExactParams(gn, degMin, degMax int, domain float64) []*types.ExperimentEntry {
	hash := types.ComputeHash(gn, degMin, degMax, domain)
	paths := r.byHash[hash]
	entries := make([]*types.ExperimentEntry, 0, len(paths))
	for path := range paths {
		entries = append(entries, r.Entries[path])
	}
	sortByPath(entries)
	return entries
}

// Filter selects entries by any subset of parameter dimensions. Nil
// fields match everything. Domain comparisons use a relative tolerance.
type Filter struct {
	GN          *int
	Domain      *float64
	DomainRange *[2]float64 // inclusive [min, max]
	DegMin      *int
	DegMax      *int
}

// GetByFilter returns all entries with params matching the filter. When
// GN is given the GN index narrows the candidates; otherwise all entries
// are scanned.
func (r *Registry) GetByFilter(f Filter) []*types.ExperimentEntry {
	var candidates []*types.ExperimentEntry
	if f.GN != nil {
		for path := range r.byGN[*f.GN] {
			candidates = append(candidates, r.Entries[path])
		}
	} else {
		for _, e := range r.Entries {
			if e.Params != nil {
				candidates = append(candidates, e)
			}
		}
	}

	matched := make([]*types.ExperimentEntry, 0, len(candidates))
	for _, e := range candidates {
		p := e.Params
		if f.GN != nil && p.GN != *f.GN {
			continue
		}
		if f.Domain != nil && !domainEqual(p.Domain, *f.Domain) {
			continue
		}
		if f.DomainRange != nil && (p.Domain < f.DomainRange[0] || p.Domain > f.DomainRange[1]) {
			continue
		}
		if f.DegMin != nil && p.DegMin != *f.DegMin {
			continue
		}
		if f.DegMax != nil && p.DegMax != *f.DegMax {
			continue
		}
		matched = append(matched, e)
	}
	sortByPath(matched)
	return matched
}

// ListPending returns entries awaiting analysis, oldest work first
// (completion time when known, discovery time otherwise).
func (r *Registry) ListPending() []*types.ExperimentEntry {
	var pending []*types.ExperimentEntry
	for _, e := range r.Entries {
		if e.Status == types.StatusDiscovered {
			pending = append(pending, e)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		ki, kj := pending[i].SortKey(), pending[j].SortKey()
		if ki.Equal(kj) {
			return pending[i].Path < pending[j].Path
		}
		return ki.Before(kj)
	})
	return pending
}

// ListAnalyzed returns all successfully analyzed entries.
func (r *Registry) ListAnalyzed() []*types.ExperimentEntry {
	var analyzed []*types.ExperimentEntry
	for _, e := range r.Entries {
		if e.Status == types.StatusAnalyzed {
			analyzed = append(analyzed, e)
		}
	}
	sortByPath(analyzed)
	return analyzed
}

// CountByStatus tallies entries per lifecycle status.
func (r *Registry) CountByStatus() map[types.Status]int {
	counts := make(map[types.Status]int)
	for _, e := range r.Entries {
		counts[e.Status]++
	}
	return counts
}

// rebuildIndices reconstructs the three indices from Entries alone.
// Called after every load so indices are never trusted from the file.
func (r *Registry) rebuildIndices() {
	r.byHash = make(map[string]map[string]struct{})
	r.byGN = make(map[int]map[string]struct{})
	r.byDomain = make(map[string]map[string]struct{})
	for _, e := range r.Entries {
		r.addToIndices(e)
	}
}

func (r *Registry) addToIndices(e *types.ExperimentEntry) {
	if e.Params == nil {
		return
	}
	addMember(r.byHash, e.ParamsHash, e.Path)
	addMember(r.byGN, e.Params.GN, e.Path)
	addMember(r.byDomain, types.DomainKey(e.Params.Domain), e.Path)
}

func (r *Registry) removeFromIndices(e *types.ExperimentEntry) {
	if e.Params == nil {
		return
	}
	removeMember(r.byHash, e.ParamsHash, e.Path)
	removeMember(r.byGN, e.Params.GN, e.Path)
	removeMember(r.byDomain, types.DomainKey(e.Params.Domain), e.Path)
}

func addMember[K comparable](index map[K]map[string]struct{}, key K, path string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[path] = struct{}{}
}

func removeMember[K comparable](index map[K]map[string]struct{}, key K, path string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, path)
	if len(set) == 0 {
		delete(index, key)
	}
}

// domainEqual compares domains with a relative tolerance instead of exact
// float equality.
func domainEqual(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= domainRelTol*scale
}

func sortByPath(entries []*types.ExperimentEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}
