package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optkit/expreg/internal/marker"
	"github.com/optkit/expreg/internal/registry"
	"github.com/optkit/expreg/internal/types"
)

// fakeAnalyzer records calls and fails for paths listed in failOn.
type fakeAnalyzer struct {
	calls     []string
	failOn    map[string]bool
	panicking bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, path string) error {
	f.calls = append(f.calls, path)
	if f.panicking {
		panic("analyzer blew up")
	}
	if f.failOn[path] {
		return errors.New("simulated analysis failure")
	}
	return nil
}

func newTestOrchestrator(t *testing.T, fake *fakeAnalyzer) (*Orchestrator, *registry.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New(filepath.Join(dir, "results"))
	regPath := filepath.Join(dir, "registry.json")

	analyzers := map[string]Analyzer{
		KindParameterRecovery: fake,
		KindGeneric:           fake,
	}
	o, err := New(&Config{Registry: reg, RegistryPath: regPath, Analyzers: analyzers})
	require.NoError(t, err)
	return o, reg, regPath
}

func addPending(t *testing.T, reg *registry.Registry, i int) *types.ExperimentEntry {
	t.Helper()
	name := fmt.Sprintf("lv4d_GN8_deg4-12_dom0.1_seed%d_20250101_00000%d", i, i)
	path := filepath.Join(reg.ResultsRoot, name)
	completedAt := time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC)
	reg.AddExperiment(path, name, &completedAt, nil)
	entry, ok := reg.Get(path)
	require.True(t, ok)
	return entry
}

func TestNew_RequiresRegistryAndPath(t *testing.T) {
	_, err := New(&Config{RegistryPath: "/tmp/r.json"})
	assert.Error(t, err)

	_, err = New(&Config{Registry: registry.New("/results")})
	assert.Error(t, err)
}

func TestAnalyzeOne_Success(t *testing.T) {
	fake := &fakeAnalyzer{}
	o, reg, regPath := newTestOrchestrator(t, fake)
	entry := addPending(t, reg, 1)

	ok, err := o.AnalyzeOne(context.Background(), entry)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{entry.Path}, fake.calls)

	got, _ := reg.Get(entry.Path)
	assert.Equal(t, types.StatusAnalyzed, got.Status)
	require.NotNil(t, got.AnalyzedAt)

	// Transitions were persisted.
	loaded := registry.Load(regPath, reg.ResultsRoot)
	persisted, found := loaded.Get(entry.Path)
	require.True(t, found)
	assert.Equal(t, types.StatusAnalyzed, persisted.Status)
}

func TestAnalyzeOne_FailureMarksFailed(t *testing.T) {
	fake := &fakeAnalyzer{failOn: map[string]bool{}}
	o, reg, _ := newTestOrchestrator(t, fake)
	entry := addPending(t, reg, 1)
	fake.failOn[entry.Path] = true

	ok, err := o.AnalyzeOne(context.Background(), entry)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := reg.Get(entry.Path)
	assert.Equal(t, types.StatusFailed, got.Status)
}

func TestAnalyzeOne_PanicIsIsolated(t *testing.T) {
	fake := &fakeAnalyzer{panicking: true}
	o, reg, _ := newTestOrchestrator(t, fake)
	entry := addPending(t, reg, 1)

	ok, err := o.AnalyzeOne(context.Background(), entry)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := reg.Get(entry.Path)
	assert.Equal(t, types.StatusFailed, got.Status)
}

func TestAnalyzeOne_NoAnalyzerForKind(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New(filepath.Join(dir, "results"))
	o, err := New(&Config{Registry: reg, RegistryPath: filepath.Join(dir, "registry.json")})
	require.NoError(t, err)
	entry := addPending(t, reg, 1)

	ok, aerr := o.AnalyzeOne(context.Background(), entry)
	require.NoError(t, aerr)
	assert.False(t, ok)

	got, _ := reg.Get(entry.Path)
	assert.Equal(t, types.StatusFailed, got.Status)
}

func TestAnalyzeOne_UnknownPath(t *testing.T) {
	fake := &fakeAnalyzer{}
	o, _, _ := newTestOrchestrator(t, fake)

	phantom := &types.ExperimentEntry{Path: "/results/nope", Name: "nope"}
	_, err := o.AnalyzeOne(context.Background(), phantom)
	assert.Error(t, err)
	assert.Empty(t, fake.calls)
}

func TestAnalyzePending_FailureIsolation(t *testing.T) {
	fake := &fakeAnalyzer{failOn: map[string]bool{}}
	o, reg, _ := newTestOrchestrator(t, fake)

	addPending(t, reg, 1)
	bad := addPending(t, reg, 2)
	addPending(t, reg, 3)
	fake.failOn[bad.Path] = true

	summary, err := o.AnalyzePending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, Summary{Analyzed: 2, Failed: 1, Total: 3}, summary)

	// Nothing is left in analyzing, and all three were attempted.
	assert.Len(t, fake.calls, 3)
	counts := reg.CountByStatus()
	assert.Equal(t, 0, counts[types.StatusAnalyzing])
	assert.Equal(t, 2, counts[types.StatusAnalyzed])
	assert.Equal(t, 1, counts[types.StatusFailed])
}

func TestAnalyzePending_OldestFirst(t *testing.T) {
	fake := &fakeAnalyzer{}
	o, reg, _ := newTestOrchestrator(t, fake)

	e3 := addPending(t, reg, 3)
	e1 := addPending(t, reg, 1)
	e2 := addPending(t, reg, 2)

	_, err := o.AnalyzePending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{e1.Path, e2.Path, e3.Path}, fake.calls)
}

func TestAnalyzePending_Limit(t *testing.T) {
	fake := &fakeAnalyzer{}
	o, reg, _ := newTestOrchestrator(t, fake)

	for i := 1; i <= 4; i++ {
		addPending(t, reg, i)
	}

	summary, err := o.AnalyzePending(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Analyzed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 4, summary.Total)
	assert.Len(t, fake.calls, 2)
}

func TestAnalyzePending_Empty(t *testing.T) {
	fake := &fakeAnalyzer{}
	o, _, _ := newTestOrchestrator(t, fake)

	summary, err := o.AnalyzePending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}

// rendezvousAnalyzer blocks every invocation until released, so a test
// can observe how many collaborators are in flight at once.
type rendezvousAnalyzer struct {
	arrived chan string
	release chan struct{}
}

func (r *rendezvousAnalyzer) Analyze(ctx context.Context, path string) error {
	r.arrived <- path
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestAnalyzePending_BoundedConcurrency(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New(filepath.Join(dir, "results"))
	blocking := &rendezvousAnalyzer{arrived: make(chan string, 2), release: make(chan struct{})}
	o, err := New(&Config{
		Registry:     reg,
		RegistryPath: filepath.Join(dir, "registry.json"),
		Analyzers:    map[string]Analyzer{KindParameterRecovery: blocking},
		MaxInFlight:  2,
	})
	require.NoError(t, err)
	addPending(t, reg, 1)
	addPending(t, reg, 2)

	done := make(chan Summary, 1)
	go func() {
		summary, perr := o.AnalyzePending(context.Background(), 0)
		assert.NoError(t, perr)
		done <- summary
	}()

	// Both collaborators enter before either is released.
	for i := 0; i < 2; i++ {
		select {
		case <-blocking.arrived:
		case <-time.After(5 * time.Second):
			t.Fatal("collaborators did not run concurrently")
		}
	}
	close(blocking.release)

	summary := <-done
	assert.Equal(t, Summary{Analyzed: 2, Failed: 0, Total: 2}, summary)
	counts := reg.CountByStatus()
	assert.Equal(t, 2, counts[types.StatusAnalyzed])
	assert.Equal(t, 0, counts[types.StatusAnalyzing])
}

func TestRetryFailed(t *testing.T) {
	fake := &fakeAnalyzer{failOn: map[string]bool{}}
	o, reg, _ := newTestOrchestrator(t, fake)

	bad := addPending(t, reg, 1)
	fake.failOn[bad.Path] = true
	addPending(t, reg, 2)

	_, err := o.AnalyzePending(context.Background(), 0)
	require.NoError(t, err)

	n, err := o.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := reg.Get(bad.Path)
	assert.Equal(t, types.StatusDiscovered, got.Status)
	assert.Nil(t, got.AnalyzedAt)
}

func TestWatch_SingleIteration(t *testing.T) {
	fake := &fakeAnalyzer{}
	o, reg, regPath := newTestOrchestrator(t, fake)

	name := "lv4d_GN8_deg4-12_dom2.000000e-01_seed7_20251009_153430"
	expDir := filepath.Join(reg.ResultsRoot, name)
	require.NoError(t, os.MkdirAll(expDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(expDir, marker.MarkerFile), []byte("completed_at=2025-10-09T15:40:00Z\n"), 0644))

	err := o.Watch(context.Background(), time.Millisecond, 1)
	require.NoError(t, err)

	entry, ok := reg.Get(expDir)
	require.True(t, ok)
	assert.Equal(t, types.StatusAnalyzed, entry.Status)
	assert.Equal(t, []string{expDir}, fake.calls)

	_, serr := os.Stat(regPath)
	assert.NoError(t, serr)
}

func TestWatch_CancelledContextExitsCleanly(t *testing.T) {
	fake := &fakeAnalyzer{}
	o, _, _ := newTestOrchestrator(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Watch(ctx, time.Millisecond, 0)
	assert.NoError(t, err)
	assert.Empty(t, fake.calls)
}

func TestDetectKind(t *testing.T) {
	assert.Equal(t, KindParameterRecovery, DetectKind("lv4d_GN8_deg4-12_dom0.1_20250101_000000"))
	assert.Equal(t, KindParameterRecovery, DetectKind("fhn_GN16_deg4-12_dom0.1_20250101_000000"))
	assert.Equal(t, KindLandscape, DetectKind("landscape_sweep_GN8"))
	assert.Equal(t, KindGeneric, DetectKind("mystery_run_42"))
}

func TestCommandAnalyzer(t *testing.T) {
	dir := t.TempDir()

	ok := &CommandAnalyzer{Command: "sh", Args: []string{"-c", "exit 0"}}
	assert.NoError(t, ok.Analyze(context.Background(), dir))

	bad := &CommandAnalyzer{Command: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}}
	err := bad.Analyze(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	unset := &CommandAnalyzer{}
	assert.Error(t, unset.Analyze(context.Background(), dir))
}
