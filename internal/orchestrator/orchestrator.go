// Package orchestrator drives analysis over pending experiments: one-shot
// batches and the continuous watch loop. The actual analysis is delegated
// to external collaborators dispatched by experiment kind; this package
// only owns lifecycle state, persistence and failure isolation.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/optkit/expreg/internal/events"
	"github.com/optkit/expreg/internal/registry"
	"github.com/optkit/expreg/internal/types"
)

// Analyzer is the external analysis collaborator. It receives the
// experiment directory and writes its summary artifacts there; the
// orchestrator never inspects what it produced, only whether it errored.
type Analyzer interface {
	Analyze(ctx context.Context, experimentPath string) error
}

// Config holds orchestrator configuration.
type Config struct {
	Registry     *registry.Registry
	RegistryPath string              // where lifecycle transitions are persisted
	Objective    string              // family filter for scans, "" for auto
	Analyzers    map[string]Analyzer // collaborators keyed by experiment kind
	Journal      *events.Journal     // optional transition journal
	MaxPerMinute int                 // watch-mode analysis throttle, 0 = unlimited
	MaxInFlight  int                 // concurrent collaborator invocations, <= 1 runs batches sequentially
	WatchFS      bool                // wake the watch loop early on filesystem events
}

// Orchestrator owns the analysis lifecycle of registry entries.
type Orchestrator struct {
	reg          *registry.Registry
	registryPath string
	objective    string
	analyzers    map[string]Analyzer
	journal      *events.Journal
	instanceID   string
	limiter      *rate.Limiter
	maxInFlight  int
	inflight     *semaphore.Weighted
	watchFS      bool

	// mu serializes registry mutation and persistence; the collaborators
	// themselves run outside it.
	mu sync.Mutex
}

// New creates an orchestrator. Registry and RegistryPath are required.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.RegistryPath == "" {
		return nil, fmt.Errorf("registry path is required")
	}

	maxInFlight := cfg.MaxInFlight
	if maxInFlight < 1 {
		maxInFlight = 1
	}

	o := &Orchestrator{
		reg:          cfg.Registry,
		registryPath: cfg.RegistryPath,
		objective:    cfg.Objective,
		analyzers:    cfg.Analyzers,
		journal:      cfg.Journal,
		instanceID:   uuid.New().String(),
		maxInFlight:  maxInFlight,
		inflight:     semaphore.NewWeighted(int64(maxInFlight)),
		watchFS:      cfg.WatchFS,
	}
	if o.analyzers == nil {
		o.analyzers = map[string]Analyzer{}
	}
	if cfg.MaxPerMinute > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(float64(cfg.MaxPerMinute)/60.0), 1)
	}
	return o, nil
}

// InstanceID identifies this orchestrator run in the transition journal.
func (o *Orchestrator) InstanceID() string {
	return o.instanceID
}

// AnalyzeOne runs the analysis collaborator for a single entry. The entry
// is moved to analyzing and persisted before dispatch, so a crash mid-
// analysis leaves a durable in-progress record. Collaborator failures are
// swallowed: the entry is marked failed, the error is reported, and false
// is returned. The returned error is reserved for registry invariant
// violations (unknown path), which indicate a caller bug.
//
// Safe for concurrent use; registry access is serialized internally.
func (o *Orchestrator) AnalyzeOne(ctx context.Context, entry *types.ExperimentEntry) (bool, error) {
	if err := o.transition(ctx, entry.Path, types.StatusAnalyzing, ""); err != nil {
		return false, err
	}

	kind := DetectKind(entry.Name)
	if err := o.dispatch(ctx, kind, entry.Path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: analysis failed for %s (kind %s): %v\n", entry.Name, kind, err)
		if terr := o.transition(ctx, entry.Path, types.StatusFailed, err.Error()); terr != nil {
			return false, terr
		}
		return false, nil
	}

	if err := o.transition(ctx, entry.Path, types.StatusAnalyzed, ""); err != nil {
		return false, err
	}
	return true, nil
}

// dispatch invokes the collaborator for the detected kind, paced by the
// optional rate limiter. A panicking collaborator is converted to an
// error rather than taking the batch down.
func (o *Orchestrator) dispatch(ctx context.Context, kind, path string) (err error) {
	analyzer, ok := o.analyzers[kind]
	if !ok {
		return fmt.Errorf("no analyzer registered for kind %q", kind)
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzer panicked: %v", r)
		}
	}()
	return analyzer.Analyze(ctx, path)
}

// transition applies one status change, persists the registry, and
// journals the change. Persistence and journaling failures degrade to
// warnings; only an unknown path propagates.
func (o *Orchestrator) transition(ctx context.Context, path string, status types.Status, errMsg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.reg.Get(path)
	var old types.Status
	if ok {
		old = entry.Status
	}

	if err := o.reg.UpdateStatus(path, status, nil); err != nil {
		return err
	}
	if err := o.reg.Save(o.registryPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to persist registry: %v\n", err)
	}
	if o.journal != nil {
		if err := o.journal.Record(ctx, path, old, status, errMsg, o.instanceID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to journal transition: %v\n", err)
		}
	}
	return nil
}

// Summary reports the outcome of one batch.
type Summary struct {
	Analyzed int
	Failed   int
	Total    int
}

// AnalyzePending analyzes the currently pending entries, oldest first.
// The pending list is snapshotted once; Total is the pre-analysis pending
// count. A limit > 0 truncates the batch. One item's failure never
// prevents subsequent items from being attempted.
//
// With MaxInFlight > 1 collaborators run concurrently, bounded by the
// in-flight semaphore; entries are still started oldest first, but
// completion order is not defined.
func (o *Orchestrator) AnalyzePending(ctx context.Context, limit int) (Summary, error) {
	pending := o.reg.ListPending()
	summary := Summary{Total: len(pending)}
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	if o.maxInFlight <= 1 {
		for _, entry := range pending {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			ok, err := o.AnalyzeOne(ctx, entry)
			if err != nil {
				return summary, err
			}
			if ok {
				summary.Analyzed++
			} else {
				summary.Failed++
			}
		}
		return summary, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for _, entry := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := o.inflight.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(e *types.ExperimentEntry) {
			defer wg.Done()
			defer o.inflight.Release(1)

			ok, err := o.AnalyzeOne(ctx, e)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if firstErr == nil {
					firstErr = err
				}
			case ok:
				summary.Analyzed++
			default:
				summary.Failed++
			}
		}(entry)
	}
	wg.Wait()

	if firstErr != nil {
		return summary, firstErr
	}
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// RetryFailed requeues every failed entry back to discovered and persists
// the registry. Returns the number of requeued entries.
func (o *Orchestrator) RetryFailed(ctx context.Context) (int, error) {
	requeued := 0
	for _, entry := range o.reg.Entries {
		if entry.Status != types.StatusFailed {
			continue
		}
		if err := o.reg.Requeue(entry.Path); err != nil {
			return requeued, err
		}
		if o.journal != nil {
			if err := o.journal.Record(ctx, entry.Path, types.StatusFailed, types.StatusDiscovered, "requeued", o.instanceID); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to journal requeue: %v\n", err)
			}
		}
		requeued++
	}
	if requeued > 0 {
		if err := o.reg.Save(o.registryPath); err != nil {
			return requeued, fmt.Errorf("failed to persist registry: %w", err)
		}
	}
	return requeued, nil
}

// Watch runs the continuous discovery/analysis loop: scan for new
// experiments, persist, analyze everything pending, persist, then sleep
// until the interval elapses, a filesystem event arrives, or the context
// is cancelled. Every mutating step persists immediately, so cancellation
// needs no separate flush; the loop simply exits cleanly.
//
// maxIterations > 0 bounds the loop for testability; 0 runs until
// cancelled.
func (o *Orchestrator) Watch(ctx context.Context, interval time.Duration, maxIterations int) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	wake := make(chan struct{}, 1)
	if o.watchFS {
		if stop, err := o.startFSWatcher(ctx, wake); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: filesystem watcher unavailable: %v (polling only)\n", err)
		} else {
			defer stop()
		}
	}

	for iteration := 0; maxIterations <= 0 || iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			return nil
		}

		added, err := o.reg.ScanForNew(o.objective)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: scan failed: %v\n", err)
		} else {
			if added > 0 {
				fmt.Printf("Discovered %d new experiment(s)\n", added)
			}
			if err := o.reg.Save(o.registryPath); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to persist registry: %v\n", err)
			}
		}

		summary, err := o.AnalyzePending(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if summary.Total > 0 {
			fmt.Printf("Batch complete: %d analyzed, %d failed (of %d pending)\n",
				summary.Analyzed, summary.Failed, summary.Total)
		}
		if err := o.reg.Save(o.registryPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to persist registry: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		case <-wake:
		}
	}
	return nil
}

// startFSWatcher wires fsnotify events on the results root to the wake
// channel. Polling remains the correctness mechanism; events only shorten
// the wait.
func (o *Orchestrator) startFSWatcher(ctx context.Context, wake chan<- struct{}) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := o.reg.ResultsRoot
	if o.objective != "" {
		familyDir := filepath.Join(dir, o.objective)
		if info, serr := os.Stat(familyDir); serr == nil && info.IsDir() {
			dir = familyDir
		}
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fmt.Fprintf(os.Stderr, "Warning: filesystem watcher error: %v\n", werr)
			}
		}
	}()
	return func() { watcher.Close() }, nil
}
