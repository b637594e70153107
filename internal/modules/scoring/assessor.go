package scoring

import (
	"sort"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/questionnaire"
)

// Assessment is the outcome of scoring one submission.
type Assessment struct {
	Profile  RiskProfile `json:"profile"`
	RawScore float64     `json:"raw_score"`
	Method   Method      `json:"method"`
}

// Assessor binds a questionnaire to the profile sets that classify its scores,
// one set per scoring method.
type Assessor struct {
	questionnaire *questionnaire.Questionnaire
	profiles      map[Method]*ProfileSet
	method        Method
}

// NewAssessor registers profiles for the section method and makes it the default.
// The profiles must cover the questionnaire's score range.
func NewAssessor(q *questionnaire.Questionnaire, profiles *ProfileSet) (*Assessor, error) {
	a := &Assessor{questionnaire: q, profiles: map[Method]*ProfileSet{}, method: MethodSection}
	if err := a.AddMethod(MethodSection, profiles); err != nil {
		return nil, err
	}
	return a, nil
}

// AddMethod registers the profile set classifying m's raw scores.
func (a *Assessor) AddMethod(m Method, profiles *ProfileSet) error {
	if m == "" {
		m = DefaultMethod
	}
	if _, err := ParseMethod(string(m)); err != nil {
		return domain.ConfigErrorf("scoring", "unknown scoring method %q", string(m))
	}
	if err := profiles.CheckCoverageFor(a.questionnaire, m); err != nil {
		return err
	}
	a.profiles[m] = profiles
	return nil
}

// SetDefaultMethod picks the method used when a request names none.
func (a *Assessor) SetDefaultMethod(m Method) error {
	if m == "" {
		m = DefaultMethod
	}
	if _, ok := a.profiles[m]; !ok {
		return domain.ConfigErrorf("scoring", "default scoring method %q has no profile set", string(m))
	}
	a.method = m
	return nil
}

// DefaultMethod is the method used when a request names none.
func (a *Assessor) DefaultMethod() Method { return a.method }

// Methods lists the registered methods in name order.
func (a *Assessor) Methods() []Method {
	out := make([]Method, 0, len(a.profiles))
	for m := range a.profiles {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Assess scores responses with the default method and classifies the result.
func (a *Assessor) Assess(rs ResponseSet) (Assessment, error) {
	return a.AssessWith("", rs)
}

// AssessWith scores responses with m; empty means the default method.
func (a *Assessor) AssessWith(m Method, rs ResponseSet) (Assessment, error) {
	if m == "" {
		m = a.method
	}
	profiles, ok := a.profiles[m]
	if !ok {
		return Assessment{}, domain.ValidationErrorf("engine_type", "scoring method %q is not configured", string(m))
	}
	raw, err := m.Score(rs, a.questionnaire)
	if err != nil {
		return Assessment{}, err
	}
	profile, err := profiles.Classify(raw)
	if err != nil {
		return Assessment{}, err
	}
	return Assessment{Profile: profile, RawScore: raw, Method: m}, nil
}

// AssessList is Assess for an ordered list submission.
func (a *Assessor) AssessList(scores []float64) (Assessment, error) {
	rs, err := ResponsesFromList(scores, a.questionnaire)
	if err != nil {
		return Assessment{}, err
	}
	return a.Assess(rs)
}

// Profiles returns the default method's profile set.
func (a *Assessor) Profiles() *ProfileSet { return a.profiles[a.method] }

// ProfilesFor returns the profile set of m, if registered.
func (a *Assessor) ProfilesFor(m Method) (*ProfileSet, bool) {
	ps, ok := a.profiles[m]
	return ps, ok
}

// Questionnaire returns the bound questionnaire.
func (a *Assessor) Questionnaire() *questionnaire.Questionnaire { return a.questionnaire }
