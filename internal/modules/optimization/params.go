package optimization

import (
	"encoding/json"
	"sort"

	"github.com/aristath/advisor/internal/domain"
)

// Defaults for the optimization document.
const (
	DefaultMinAllocation = 0.01
	DefaultRiskFreeRate  = 0.03
	MaxFrontierPoints    = 500
)

// Params is the optimization parameters document.
// EquityBounds are keyed by risk profile name and bound the combined weight of EquityCategories.
type Params struct {
	MinAllocationThreshold float64          `json:"min_allocation_threshold"`
	MaxAllocationPerAsset  float64          `json:"max_allocation_per_asset"`
	RiskFreeRate           float64          `json:"risk_free_rate"`
	Method                 string           `json:"method"`
	RebalancingFrequency   string           `json:"rebalancing_frequency,omitempty"`
	AllowShort             bool             `json:"allow_short"`
	FrontierPoints         int              `json:"frontier_points,omitempty"`
	EquityBounds           map[string]Bound `json:"equity_bounds,omitempty"`
	EquityCategories       []string         `json:"equity_categories,omitempty"`
	CategoryBounds         map[string]Bound `json:"category_bounds,omitempty"`
	AssetBounds            map[string]Bound `json:"asset_bounds,omitempty"`
}

// DefaultParams is a long-only mean-variance setup with a 1% threshold.
func DefaultParams() Params {
	return Params{
		MinAllocationThreshold: DefaultMinAllocation,
		MaxAllocationPerAsset:  1,
		RiskFreeRate:           DefaultRiskFreeRate,
		Method:                 MethodMeanVariance,
		FrontierPoints:         DefaultFrontierPoints,
	}
}

// ParseParams decodes and validates an optimization document.
// Omitted fields keep their defaults.
func ParseParams(data []byte) (*Params, error) {
	p := DefaultParams()
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &domain.ConfigurationError{Source: "optimization", Msg: "invalid JSON", Err: err}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks ranges and that every bound is well formed.
func (p Params) Validate() error {
	if p.Method != "" && !ValidMethod(p.Method) {
		return domain.ConfigErrorf("optimization", "unknown method %q", p.Method)
	}
	if p.RiskFreeRate < -0.05 || p.RiskFreeRate > 0.5 {
		return domain.ConfigErrorf("optimization", "risk_free_rate %v is implausible", p.RiskFreeRate)
	}
	if p.FrontierPoints < 0 || p.FrontierPoints > MaxFrontierPoints {
		return domain.ConfigErrorf("optimization", "frontier_points must be in [0, %d]", MaxFrontierPoints)
	}
	if len(p.EquityBounds) > 0 && len(p.EquityCategories) == 0 {
		return domain.ConfigErrorf("optimization", "equity_bounds need equity_categories")
	}
	for profile, b := range p.EquityBounds {
		if b.Min < 0 || b.Max > 1 || b.Min > b.Max {
			return domain.ConfigErrorf("optimization", "equity bound for profile %q must satisfy 0 <= min <= max <= 1", profile)
		}
	}
	for category, b := range p.CategoryBounds {
		if b.Min < 0 || b.Max > 1 || b.Min > b.Max {
			return domain.ConfigErrorf("optimization", "category bound for %q must satisfy 0 <= min <= max <= 1", category)
		}
	}
	return p.ConstraintsFor("").Validate()
}

// CheckProfiles rejects equity bounds keyed by unknown profile names.
func (p Params) CheckProfiles(names []string) error {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for profile := range p.EquityBounds {
		if !known[profile] {
			return domain.ConfigErrorf("optimization", "equity_bounds reference unknown profile %q", profile)
		}
	}
	return nil
}

// CheckCategories rejects bounds on categories no fund belongs to.
func (p Params) CheckCategories(categories []string) error {
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c] = true
	}
	for _, c := range p.EquityCategories {
		if !known[c] {
			return domain.ConfigErrorf("optimization", "equity category %q has no funds", c)
		}
	}
	for c := range p.CategoryBounds {
		if !known[c] {
			return domain.ConfigErrorf("optimization", "category_bounds reference unknown category %q", c)
		}
	}
	return nil
}

// Points is the configured frontier resolution.
func (p Params) Points() int {
	if p.FrontierPoints <= 0 {
		return DefaultFrontierPoints
	}
	return p.FrontierPoints
}

// ConstraintsFor resolves the document into solver constraints for a risk profile.
// An empty or unknown profile gets no equity bound.
func (p Params) ConstraintsFor(profile string) Constraints {
	c := Constraints{
		AllowShort:    p.AllowShort,
		ShortLimit:    DefaultShortLimit,
		MaxPerAsset:   p.MaxAllocationPerAsset,
		MinAllocation: p.MinAllocationThreshold,
	}
	if len(p.AssetBounds) > 0 {
		c.AssetBounds = make(map[string]Bound, len(p.AssetBounds))
		for k, v := range p.AssetBounds {
			c.AssetBounds[k] = v
		}
	}

	if b, ok := p.EquityBounds[profile]; ok && len(p.EquityCategories) > 0 {
		c.Groups = append(c.Groups, GroupBound{
			Name:       "equity",
			Categories: append([]string(nil), p.EquityCategories...),
			Bound:      b,
		})
	}

	categories := make([]string, 0, len(p.CategoryBounds))
	for cat := range p.CategoryBounds {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	for _, cat := range categories {
		c.Groups = append(c.Groups, GroupBound{
			Name:       cat,
			Categories: []string{cat},
			Bound:      p.CategoryBounds[cat],
		})
	}
	return c
}
