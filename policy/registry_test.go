package policy_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus/compliance-engine/policy"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func configAt(version string, effective time.Time) policy.Config {
	cfg := policy.Default()
	cfg.Version = version
	cfg.EffectiveAt = effective
	return cfg
}

func jan(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// RESOLUTION
// =============================================================================

func TestResolve_LatestEffectiveVersionWins(t *testing.T) {
	// GIVEN: Versions effective 2025-01-01 and 2026-01-01
	// WHEN: Resolving various instants
	// THEN: The latest version not after the instant governs

	reg, err := policy.NewRegistry(
		configAt("2025.1", jan(2025)),
		configAt("2026.1", jan(2026)),
	)
	require.NoError(t, err)

	mid2025, err := reg.Resolve(time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025.1", mid2025.Version)

	exactBoundary, err := reg.Resolve(jan(2026))
	require.NoError(t, err)
	assert.Equal(t, "2026.1", exactBoundary.Version)

	future, err := reg.Resolve(jan(2030))
	require.NoError(t, err)
	assert.Equal(t, "2026.1", future.Version)
}

func TestResolve_BeforeFirstVersionFails(t *testing.T) {
	reg, err := policy.NewRegistry(configAt("2025.1", jan(2025)))
	require.NoError(t, err)

	_, err = reg.Resolve(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrNoEffectivePolicy)

	var resErr *policy.ResolutionError
	assert.ErrorAs(t, err, &resErr)
}

func TestRegister_DuplicateVersionRejected(t *testing.T) {
	reg, err := policy.NewRegistry(configAt("2025.1", jan(2025)))
	require.NoError(t, err)

	err = reg.Register(configAt("2025.1", jan(2026)))
	assert.ErrorIs(t, err, policy.ErrVersionExists)
}

func TestGet_ByVersionForReplay(t *testing.T) {
	reg, err := policy.NewRegistry(
		configAt("2025.1", jan(2025)),
		configAt("2026.1", jan(2026)),
	)
	require.NoError(t, err)

	cfg, err := reg.Get("2025.1")
	require.NoError(t, err)
	assert.Equal(t, "2025.1", cfg.Version)

	_, err = reg.Get("1999.1")
	assert.ErrorIs(t, err, policy.ErrNoEffectivePolicy)
}

func TestResolve_ReturnsCopy(t *testing.T) {
	// Mutating a resolved config must not leak into the registry.

	reg, err := policy.NewRegistry(configAt("2025.1", jan(2025)))
	require.NoError(t, err)

	cfg, err := reg.Resolve(jan(2025))
	require.NoError(t, err)
	cfg.ETSRampByYear[2025] = decimal.NewFromInt(999)

	again, err := reg.Resolve(jan(2025))
	require.NoError(t, err)
	assert.True(t, again.ETSRampByYear[2025].Equal(decimal.NewFromInt(40)))
}

// =============================================================================
// FILE LOADING
// =============================================================================

func TestParse_PolicyFile(t *testing.T) {
	data := []byte(`
versions:
  - version: "2026.1"
    effective_at: "2026-01-01"
    ets_ramp_by_year:
      2025: "40"
      2026: "70"
      2027: "100"
    fueleu_penalty_per_gj: "58.5"
    borrow_cap_pct: "0.02"
    max_consecutive_borrowing: 2
    indifference_band_pct: "5"
    currency: EUR
`)

	configs, err := policy.Parse(data)
	require.NoError(t, err)
	require.Len(t, configs, 1)

	cfg := configs[0]
	assert.Equal(t, "2026.1", cfg.Version)
	assert.Equal(t, jan(2026), cfg.EffectiveAt)
	assert.True(t, cfg.FuelEUPenaltyPerGJ.Equal(decimal.NewFromFloat(58.5)))
	assert.True(t, cfg.BorrowCapPct.Equal(decimal.NewFromFloat(0.02)))
	assert.Equal(t, 2, cfg.MaxConsecutiveBorrowing)
	assert.Equal(t, "EUR", cfg.Currency)
}

func TestParse_DefaultsApplied(t *testing.T) {
	data := []byte(`
versions:
  - version: "2026.1"
    effective_at: "2026-01-01"
    ets_ramp_by_year:
      2026: "70"
    fueleu_penalty_per_gj: "60"
    borrow_cap_pct: "0.02"
`)

	configs, err := policy.Parse(data)
	require.NoError(t, err)
	require.Len(t, configs, 1)

	cfg := configs[0]
	assert.True(t, cfg.IndifferenceBandPct.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, 2, cfg.MaxConsecutiveBorrowing)
}

func TestParse_RejectsMalformedVersions(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing version id", `
versions:
  - effective_at: "2026-01-01"
    ets_ramp_by_year: {2026: "70"}
    fueleu_penalty_per_gj: "60"
    borrow_cap_pct: "0.02"
`},
		{"bad effective date", `
versions:
  - version: "x"
    effective_at: "January 2026"
    ets_ramp_by_year: {2026: "70"}
    fueleu_penalty_per_gj: "60"
    borrow_cap_pct: "0.02"
`},
		{"empty ramp", `
versions:
  - version: "x"
    effective_at: "2026-01-01"
    fueleu_penalty_per_gj: "60"
    borrow_cap_pct: "0.02"
`},
		{"non-decimal penalty", `
versions:
  - version: "x"
    effective_at: "2026-01-01"
    ets_ramp_by_year: {2026: "70"}
    fueleu_penalty_per_gj: "sixty"
    borrow_cap_pct: "0.02"
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := policy.Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}
