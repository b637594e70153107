package optimization

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/domain"
)

const presetsDoc = `{"portfolios": [
  {"name": "Cautious", "risk_aversion": 10, "allocations": [
    {"fund": "US Equity", "weight": 0.2}, {"fund": "Bonds", "weight": 0.8}
  ]},
  {"name": "Balanced", "risk_aversion": 4, "allocations": [
    {"fund": "US Equity", "weight": 0.4}, {"fund": "Bonds", "weight": 0.4}, {"fund": "REIT", "weight": 0.2}
  ]},
  {"name": "Bold", "risk_aversion": 2, "allocations": [
    {"fund": "US Equity", "weight": 0.5}, {"fund": "Intl Equity", "weight": 0.3}, {"fund": "Gold", "weight": 0.2}
  ]}
]}`

func testPresets(t *testing.T) *PresetSet {
	t.Helper()
	ps, err := ParsePresets([]byte(presetsDoc))
	require.NoError(t, err)
	return ps
}

func TestPresetSet_Nearest(t *testing.T) {
	ps := testPresets(t)

	tests := []struct {
		a    float64
		want string
	}{
		{12, "Cautious"},
		{7.5, "Cautious"},
		// equidistant from Balanced and Bold: the first listed wins
		{3, "Balanced"},
		{2.9, "Bold"},
		{0.5, "Bold"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ps.Nearest(tt.a).Name, "A=%v", tt.a)
	}
}

func TestParsePresets_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid json", `{"portfolios": [`},
		{"empty", `{"portfolios": []}`},
		{"unnamed", `{"portfolios": [{"risk_aversion": 2, "allocations": [{"fund": "A", "weight": 1}]}]}`},
		{"no aversion", `{"portfolios": [{"name": "P", "allocations": [{"fund": "A", "weight": 1}]}]}`},
		{"negative weight", `{"portfolios": [{"name": "P", "risk_aversion": 2, "allocations": [{"fund": "A", "weight": 1.2}, {"fund": "B", "weight": -0.2}]}]}`},
		{"not invested", `{"portfolios": [{"name": "P", "risk_aversion": 2, "allocations": [{"fund": "A", "weight": 0.9}]}]}`},
		{"duplicate fund", `{"portfolios": [{"name": "P", "risk_aversion": 2, "allocations": [{"fund": "A", "weight": 0.5}, {"fund": "A", "weight": 0.5}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePresets([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
		})
	}
}

func TestPresetSet_CheckFunds(t *testing.T) {
	ps := testPresets(t)
	require.NoError(t, ps.CheckFunds([]string{"US Equity", "Bonds", "Intl Equity", "REIT", "Gold"}))

	err := ps.CheckFunds([]string{"US Equity", "Bonds", "Intl Equity", "REIT"})
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestSolver_Preset(t *testing.T) {
	in := fourFundInput()
	s := NewSolver(zerolog.Nop()).WithPresets(testPresets(t))

	p, err := s.Optimize(in, Constraints{}, MethodPreset, 9)
	require.NoError(t, err)
	assert.Equal(t, MethodPreset, p.Method)
	assert.Equal(t, "Cautious", p.Preset)
	assert.InDelta(t, 0.2, p.Weights["US Equity"], 1e-12)
	assert.InDelta(t, 0.8, p.Weights["Bonds"], 1e-12)
	require.NotNil(t, p.Utility)
	assertFullyInvested(t, p, true)

	w := in.Vector(p.Weights)
	assert.InDelta(t, in.ExpectedReturn(w), p.Return, 1e-12)
	assert.Positive(t, p.Volatility)
}

func TestSolver_PresetRescalesMissingFunds(t *testing.T) {
	// Gold is not in the input universe
	p, err := NewSolver(zerolog.Nop()).WithPresets(testPresets(t)).Preset(fourFundInput(), 1.5)
	require.NoError(t, err)
	assert.Equal(t, "Bold", p.Preset)
	assert.NotContains(t, p.Weights, "Gold")
	assert.InDelta(t, 0.625, p.Weights["US Equity"], 1e-12)
	assert.InDelta(t, 0.375, p.Weights["Intl Equity"], 1e-12)
	assert.InDelta(t, 1.0, p.Sum(), WeightTolerance)
}

func TestSolver_PresetErrors(t *testing.T) {
	in := fourFundInput()

	_, err := NewSolver(zerolog.Nop()).Optimize(in, Constraints{}, MethodPreset, 3)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err), "no presets configured")

	s := NewSolver(zerolog.Nop()).WithPresets(testPresets(t))
	_, err = s.Preset(in, 0)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	other, err := ParsePresets([]byte(`{"portfolios": [{"name": "Elsewhere", "risk_aversion": 3, "allocations": [{"fund": "Crypto", "weight": 1}]}]}`))
	require.NoError(t, err)
	_, err = NewSolver(zerolog.Nop()).WithPresets(other).Preset(in, 3)
	assert.Equal(t, domain.KindOptimization, domain.KindOf(err))

	assert.True(t, ValidMethod(MethodPreset))
}
