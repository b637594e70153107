package optimization

import (
	"encoding/json"
	"math"

	"github.com/aristath/advisor/internal/domain"
)

// PresetAllocation is one fund's share of a preset portfolio.
type PresetAllocation struct {
	Fund   string  `json:"fund"`
	Weight float64 `json:"weight"`
}

// Preset is a fixed model portfolio tagged with the risk aversion it suits.
type Preset struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	RiskAversion float64            `json:"risk_aversion"`
	Allocations  []PresetAllocation `json:"allocations"`
}

// PresetSet is the preset portfolios document.
type PresetSet struct {
	Portfolios []Preset `json:"portfolios"`
}

// ParsePresets decodes and validates a preset portfolios document.
func ParsePresets(data []byte) (*PresetSet, error) {
	var ps PresetSet
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, &domain.ConfigurationError{Source: "presets", Msg: "invalid JSON", Err: err}
	}
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	return &ps, nil
}

// Validate checks every preset is a long-only, fully-invested allocation.
func (ps *PresetSet) Validate() error {
	if len(ps.Portfolios) == 0 {
		return domain.ConfigErrorf("presets", "no preset portfolios configured")
	}
	names := make(map[string]bool, len(ps.Portfolios))
	for i, p := range ps.Portfolios {
		if p.Name == "" {
			return domain.ConfigErrorf("presets", "preset %d has no name", i)
		}
		if names[p.Name] {
			return domain.ConfigErrorf("presets", "duplicate preset %q", p.Name)
		}
		names[p.Name] = true
		if p.RiskAversion <= 0 || math.IsNaN(p.RiskAversion) {
			return domain.ConfigErrorf("presets", "preset %q risk_aversion must be positive", p.Name)
		}
		if len(p.Allocations) == 0 {
			return domain.ConfigErrorf("presets", "preset %q has no allocations", p.Name)
		}

		funds := make(map[string]bool, len(p.Allocations))
		var sum float64
		for _, a := range p.Allocations {
			if funds[a.Fund] {
				return domain.ConfigErrorf("presets", "preset %q lists %q twice", p.Name, a.Fund)
			}
			funds[a.Fund] = true
			if a.Weight < 0 || math.IsNaN(a.Weight) {
				return domain.ConfigErrorf("presets", "preset %q weight for %q must not be negative", p.Name, a.Fund)
			}
			sum += a.Weight
		}
		if math.Abs(sum-1) > WeightTolerance {
			return domain.ConfigErrorf("presets", "preset %q weights sum to %v, not 1", p.Name, sum)
		}
	}
	return nil
}

// CheckFunds verifies every allocated fund is part of the universe.
func (ps *PresetSet) CheckFunds(funds []string) error {
	known := make(map[string]bool, len(funds))
	for _, f := range funds {
		known[f] = true
	}
	for _, p := range ps.Portfolios {
		for _, a := range p.Allocations {
			if !known[a.Fund] {
				return domain.ConfigErrorf("presets", "preset %q allocates to unknown fund %q", p.Name, a.Fund)
			}
		}
	}
	return nil
}

// Nearest returns the preset whose risk aversion is closest to a.
// Ties go to the preset listed first.
func (ps *PresetSet) Nearest(a float64) Preset {
	best := ps.Portfolios[0]
	for _, p := range ps.Portfolios[1:] {
		if math.Abs(p.RiskAversion-a) < math.Abs(best.RiskAversion-a) {
			best = p
		}
	}
	return best
}

// Preset returns the model portfolio nearest to riskAversion, restricted to
// the funds in the input and rescaled to be fully invested.
func (s *Solver) Preset(in Input, riskAversion float64) (*Portfolio, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if s.presets == nil {
		return nil, domain.ConfigErrorf("presets", "method %q needs a preset portfolios document", MethodPreset)
	}
	if riskAversion <= 0 || math.IsNaN(riskAversion) || math.IsInf(riskAversion, 0) {
		return nil, domain.ValidationErrorf("risk_aversion", "must be a positive number, got %v", riskAversion)
	}

	preset := s.presets.Nearest(riskAversion)
	index := make(map[string]int, len(in.Funds))
	for i, f := range in.Funds {
		index[f] = i
	}

	w := make([]float64, len(in.Funds))
	var kept float64
	for _, a := range preset.Allocations {
		if i, ok := index[a.Fund]; ok {
			w[i] = a.Weight
			kept += a.Weight
		}
	}
	if kept <= 0 {
		return nil, &domain.OptimizationError{Problem: "preset", Msg: "no fund of preset " + preset.Name + " has price data"}
	}
	if kept < 1 {
		s.log.Warn().
			Str("preset", preset.Name).
			Float64("kept_weight", kept).
			Msg("Preset funds missing, rescaling the remaining allocation")
	}
	for i := range w {
		w[i] /= kept
	}

	p := newPortfolio(in, w, MethodPreset)
	p.Preset = preset.Name
	return p.withUtility(in, riskAversion), nil
}
