package scoring

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/questionnaire"
)

// DefaultScoreStep is the largest allowed distance between adjacent bands.
// Integer-scored bands such as 10-16 and 17-20 are contiguous.
const DefaultScoreStep = 1.0

// RiskProfile is a named score band with its risk-aversion coefficient.
type RiskProfile struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	MinScore     float64 `json:"min_score"`
	MaxScore     float64 `json:"max_score"`
	RiskAversion float64 `json:"risk_aversion"`
}

// ProfileSet partitions the achievable score range into profiles.
// Profile i covers [MinScore_i, MinScore_i+1); the last profile covers [MinScore, MaxScore].
type ProfileSet struct {
	Name      string        `json:"name,omitempty"`
	ScoreStep float64       `json:"score_step,omitempty"`
	Profiles  []RiskProfile `json:"profiles"`
}

// ParseProfiles decodes and validates a profile document.
func ParseProfiles(data []byte) (*ProfileSet, error) {
	var ps ProfileSet
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, &domain.ConfigurationError{Source: "risk_profiles", Msg: "invalid JSON", Err: err}
	}
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	return &ps, nil
}

// NewProfileSet sorts and validates profiles.
func NewProfileSet(profiles []RiskProfile) (*ProfileSet, error) {
	ps := &ProfileSet{Profiles: append([]RiskProfile(nil), profiles...)}
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	return ps, nil
}

// Validate sorts profiles by MinScore and checks the bands partition the range.
func (ps *ProfileSet) Validate() error {
	if len(ps.Profiles) == 0 {
		return domain.ConfigErrorf("risk_profiles", "no profiles configured")
	}
	if ps.ScoreStep < 0 {
		return domain.ConfigErrorf("risk_profiles", "score_step must not be negative")
	}

	sort.SliceStable(ps.Profiles, func(i, j int) bool {
		return ps.Profiles[i].MinScore < ps.Profiles[j].MinScore
	})

	names := make(map[string]bool, len(ps.Profiles))
	step := ps.step()
	for i, p := range ps.Profiles {
		if p.Name == "" {
			return domain.ConfigErrorf("risk_profiles", "profile %d has no name", i)
		}
		if names[p.Name] {
			return domain.ConfigErrorf("risk_profiles", "duplicate profile %q", p.Name)
		}
		names[p.Name] = true

		if p.MinScore > p.MaxScore || math.IsNaN(p.MinScore) || math.IsNaN(p.MaxScore) {
			return domain.ConfigErrorf("risk_profiles", "profile %q has an invalid band [%v, %v]", p.Name, p.MinScore, p.MaxScore)
		}
		if p.RiskAversion <= 0 {
			return domain.ConfigErrorf("risk_profiles", "profile %q risk_aversion must be positive", p.Name)
		}
		if i == 0 {
			continue
		}

		prev := ps.Profiles[i-1]
		if p.MinScore < prev.MaxScore || p.MinScore == prev.MinScore {
			return domain.ConfigErrorf("risk_profiles", "profiles %q and %q overlap", prev.Name, p.Name)
		}
		if p.MinScore-prev.MaxScore > step {
			return domain.ConfigErrorf("risk_profiles", "gap between %q (max %v) and %q (min %v)", prev.Name, prev.MaxScore, p.Name, p.MinScore)
		}
	}

	return nil
}

func (ps *ProfileSet) step() float64 {
	if ps.ScoreStep == 0 {
		return DefaultScoreStep
	}
	return ps.ScoreStep
}

// Range returns the lowest and highest classifiable score.
func (ps *ProfileSet) Range() (float64, float64) {
	return ps.Profiles[0].MinScore, ps.Profiles[len(ps.Profiles)-1].MaxScore
}

// Classify returns the unique profile whose band contains rawScore.
// A score outside every band is a configuration gap, never a silent default.
func (ps *ProfileSet) Classify(rawScore float64) (RiskProfile, error) {
	lo, hi := ps.Range()
	if math.IsNaN(rawScore) || rawScore < lo || rawScore > hi {
		return RiskProfile{}, domain.ConfigErrorf("risk_profiles", "score %v is outside every profile band [%v, %v]", rawScore, lo, hi)
	}

	for i := len(ps.Profiles) - 1; i >= 0; i-- {
		if rawScore >= ps.Profiles[i].MinScore {
			return ps.Profiles[i], nil
		}
	}
	return RiskProfile{}, domain.ConfigErrorf("risk_profiles", "no band for score %v", rawScore)
}

// CheckCoverage verifies every achievable section-weighted score is classifiable.
func (ps *ProfileSet) CheckCoverage(q *questionnaire.Questionnaire) error {
	return ps.CheckCoverageFor(q, MethodSection)
}

// CheckCoverageFor verifies every raw score m can produce for q is classifiable.
func (ps *ProfileSet) CheckCoverageFor(q *questionnaire.Questionnaire, m Method) error {
	minScore, maxScore := m.Range(q)
	lo, hi := ps.Range()
	if minScore < lo || maxScore > hi {
		return domain.ConfigErrorf("risk_profiles", "questionnaire %q %s scores [%v, %v] are not covered by bands [%v, %v]", q.ID, methodName(m), minScore, maxScore, lo, hi)
	}
	return nil
}

// Names lists the profile names in band order.
func (ps *ProfileSet) Names() []string {
	names := make([]string, len(ps.Profiles))
	for i, p := range ps.Profiles {
		names[i] = p.Name
	}
	return names
}

func methodName(m Method) string {
	if m == "" {
		return string(DefaultMethod)
	}
	return string(m)
}

// ByName finds a profile by its name.
func (ps *ProfileSet) ByName(name string) (RiskProfile, bool) {
	for _, p := range ps.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return RiskProfile{}, false
}

// NearestByRiskAversion returns the profile whose coefficient is closest to a.
func (ps *ProfileSet) NearestByRiskAversion(a float64) RiskProfile {
	best := ps.Profiles[0]
	for _, p := range ps.Profiles[1:] {
		if math.Abs(p.RiskAversion-a) < math.Abs(best.RiskAversion-a) {
			best = p
		}
	}
	return best
}
