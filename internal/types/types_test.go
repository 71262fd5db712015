package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash_ExactFormat(t *testing.T) {
	assert.Equal(t, "GN16_deg4-12_dom1.000000e-01", ComputeHash(16, 4, 12, 0.1))
	assert.Equal(t, "GN8_deg4-12_dom2.000000e-01", ComputeHash(8, 4, 12, 0.2))
}

func TestComputeHash_IgnoresRunIdentity(t *testing.T) {
	now := time.Now()
	seed := &Seed{Value: 42}
	a := &ExperimentParams{GN: 16, DegMin: 4, DegMax: 12, Domain: 0.1, Seed: seed, Basis: "chebyshev", Timestamp: &now, Objective: "lotka_volterra_4d"}
	b := &ExperimentParams{GN: 16, DegMin: 4, DegMax: 12, Domain: 0.1, Seed: &Seed{Random: true}, Basis: "legendre", Objective: "unknown"}

	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, ComputeHash(16, 4, 12, 0.1), a.Hash())
}

func TestComputeHash_RoundTripStability(t *testing.T) {
	// A domain that survives a JSON round trip must land in the same cell.
	p := &ExperimentParams{GN: 32, DegMin: 2, DegMax: 8, Domain: 0.30000000000000004}
	q := &ExperimentParams{GN: 32, DegMin: 2, DegMax: 8, Domain: 0.3}
	assert.Equal(t, p.Hash(), q.Hash())
}

func TestStatus_Ordinals(t *testing.T) {
	// Ordinals are part of the persisted file format.
	assert.Equal(t, 0, int(StatusDiscovered))
	assert.Equal(t, 1, int(StatusAnalyzing))
	assert.Equal(t, 2, int(StatusAnalyzed))
	assert.Equal(t, 3, int(StatusFailed))
}

func TestStatus_Transitions(t *testing.T) {
	assert.True(t, StatusDiscovered.CanTransitionTo(StatusAnalyzing))
	assert.True(t, StatusAnalyzing.CanTransitionTo(StatusAnalyzed))
	assert.True(t, StatusAnalyzing.CanTransitionTo(StatusFailed))

	assert.False(t, StatusDiscovered.CanTransitionTo(StatusAnalyzed))
	assert.False(t, StatusFailed.CanTransitionTo(StatusDiscovered))
	assert.False(t, StatusAnalyzed.CanTransitionTo(StatusAnalyzing))

	assert.True(t, StatusAnalyzed.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusAnalyzing.IsTerminal())
}

func TestSeed_JSON(t *testing.T) {
	data, err := json.Marshal(Seed{Value: 42})
	require.NoError(t, err)
	assert.Equal(t, "42", string(data))

	data, err = json.Marshal(Seed{Random: true})
	require.NoError(t, err)
	assert.Equal(t, `"random"`, string(data))

	var s Seed
	require.NoError(t, json.Unmarshal([]byte(`"random"`), &s))
	assert.True(t, s.Random)

	require.NoError(t, json.Unmarshal([]byte("7"), &s))
	assert.False(t, s.Random)
	assert.Equal(t, int64(7), s.Value)

	assert.Error(t, json.Unmarshal([]byte(`"lucky"`), &s))
}

func TestEntry_Validate(t *testing.T) {
	now := time.Now()
	params := &ExperimentParams{GN: 16, DegMin: 4, DegMax: 12, Domain: 0.1, Basis: DefaultBasis, Objective: "lotka_volterra_4d"}

	entry := &ExperimentEntry{
		Path:         "/results/lv4d_x",
		Name:         "lv4d_x",
		DiscoveredAt: now,
		Status:       StatusDiscovered,
		Params:       params,
		ParamsHash:   params.Hash(),
	}
	assert.NoError(t, entry.Validate())

	// Hash must match the params.
	entry.ParamsHash = "GN1_deg1-1_dom1.000000e+00"
	assert.Error(t, entry.Validate())

	// Absent params require an empty hash.
	entry.Params = nil
	assert.Error(t, entry.Validate())
	entry.ParamsHash = ""
	assert.NoError(t, entry.Validate())

	entry.Path = ""
	assert.Error(t, entry.Validate())
}

func TestEntry_SortKey(t *testing.T) {
	discovered := time.Date(2025, 10, 9, 16, 0, 0, 0, time.UTC)
	completed := time.Date(2025, 10, 9, 15, 34, 30, 0, time.UTC)

	e := &ExperimentEntry{DiscoveredAt: discovered}
	assert.Equal(t, discovered, e.SortKey())

	e.CompletedAt = &completed
	assert.Equal(t, completed, e.SortKey())
}

func TestValue_Union(t *testing.T) {
	ts := time.Date(2025, 10, 9, 15, 34, 30, 0, time.UTC)

	cases := []struct {
		name string
		v    Value
		want string
	}{
		{"string", StringValue("chebyshev"), "chebyshev"},
		{"bool", BoolValue(true), "true"},
		{"int", IntValue(-3), "-3"},
		{"float", FloatValue(0.25), "0.25"},
		{"time", TimeValue(ts), "2025-10-09T15:34:30Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.v.String())
		})
	}
}

func TestValue_JSONRoundTrip(t *testing.T) {
	ts := time.Date(2025, 10, 9, 15, 34, 30, 0, time.UTC)
	in := map[string]Value{
		"basis":        StringValue("chebyshev"),
		"legacy":       BoolValue(true),
		"GN":           IntValue(16),
		"domain":       FloatValue(0.1),
		"completed_at": TimeValue(ts),
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out map[string]Value
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, KindString, out["basis"].Kind)
	assert.Equal(t, "chebyshev", out["basis"].Str)
	assert.Equal(t, KindBool, out["legacy"].Kind)
	assert.True(t, out["legacy"].Bool)
	assert.Equal(t, KindInt, out["GN"].Kind)
	assert.Equal(t, int64(16), out["GN"].Int)
	assert.Equal(t, KindFloat, out["domain"].Kind)
	assert.InDelta(t, 0.1, out["domain"].Float, 1e-12)
	assert.Equal(t, KindTime, out["completed_at"].Kind)
	assert.True(t, out["completed_at"].Time.Equal(ts))
}
