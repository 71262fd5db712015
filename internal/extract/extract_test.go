package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optkit/expreg/internal/types"
)

func TestExtract_LotkaVolterra(t *testing.T) {
	params, ok := Extract("lv4d_GN16_deg4-12_dom1.000000e-01_seed42_20251009_153430", ObjectiveAuto)
	require.True(t, ok)

	assert.Equal(t, 16, params.GN)
	assert.Equal(t, 4, params.DegMin)
	assert.Equal(t, 12, params.DegMax)
	assert.InDelta(t, 0.1, params.Domain, 1e-12)
	require.NotNil(t, params.Seed)
	assert.Equal(t, int64(42), params.Seed.Value)
	assert.Equal(t, "lotka_volterra_4d", params.Objective)
	assert.Equal(t, types.DefaultBasis, params.Basis)

	require.NotNil(t, params.Timestamp)
	want := time.Date(2025, 10, 9, 15, 34, 30, 0, time.UTC)
	assert.True(t, params.Timestamp.Equal(want))
}

func TestExtract_NoMatch(t *testing.T) {
	for _, name := range []string{
		"not_a_valid_name",
		"",
		"lv4d_GN16",
		"lv4d_GNx_deg4-12_dom0.1_20251009_153430",
		"lv4d_GN16_deg4-12_dom0.1_20251009", // timestamp missing seconds
	} {
		_, ok := Extract(name, ObjectiveAuto)
		assert.False(t, ok, "expected no match for %q", name)
	}
}

func TestExtract_Families(t *testing.T) {
	cases := []struct {
		name   string
		family string
	}{
		{"lv4d_GN8_deg2-6_dom0.5_20250101_000000", "lotka_volterra_4d"},
		{"deuflhard_GN8_deg2-6_domain0.5_seedrandom_20250101_000000", "deuflhard"},
		{"fhn_GN8_deg2-6_dom5e-02_20250101_000000", "fitzhugh_nagumo"},
		{"fitzhugh_GN8_deg2-6_dom5e-02_20250101_000000", "fitzhugh_nagumo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params, ok := Extract(tc.name, ObjectiveAuto)
			require.True(t, ok)
			assert.Equal(t, tc.family, params.Objective)
		})
	}
}

func TestExtract_SeedForms(t *testing.T) {
	params, ok := Extract("lv4d_GN8_deg2-6_dom0.5_seedrandom_20250101_000000", ObjectiveAuto)
	require.True(t, ok)
	require.NotNil(t, params.Seed)
	assert.True(t, params.Seed.Random)

	params, ok = Extract("lv4d_GN8_deg2-6_dom0.5_20250101_000000", ObjectiveAuto)
	require.True(t, ok)
	assert.Nil(t, params.Seed)
}

func TestExtract_DomainSpellings(t *testing.T) {
	a, ok := Extract("lv4d_GN8_deg2-6_dom0.2_20250101_000000", ObjectiveAuto)
	require.True(t, ok)
	b, ok := Extract("lv4d_GN8_deg2-6_domain2.000000e-01_20250101_000000", ObjectiveAuto)
	require.True(t, ok)
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestExtract_HintSelectsFamily(t *testing.T) {
	// A hinted family only tries its own pattern.
	_, ok := Extract("lv4d_GN8_deg2-6_dom0.5_20250101_000000", "deuflhard")
	assert.False(t, ok)

	params, ok := Extract("lv4d_GN8_deg2-6_dom0.5_20250101_000000", "lotka_volterra_4d")
	require.True(t, ok)
	assert.Equal(t, "lotka_volterra_4d", params.Objective)
}

func TestFamily(t *testing.T) {
	assert.Equal(t, "lotka_volterra_4d", Family("lv4d_anything"))
	assert.Equal(t, "fitzhugh_nagumo", Family("fhn_run"))
	assert.Equal(t, ObjectiveUnknown, Family("mystery_run"))
}
