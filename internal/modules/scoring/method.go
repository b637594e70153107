package scoring

import (
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/questionnaire"
)

// Method selects how responses are turned into a raw score.
type Method string

const (
	// MethodSection weights each answer by its section weight.
	MethodSection Method = "section"
	// MethodSimple sums the chosen option scores.
	MethodSimple Method = "simple"
	// MethodWeighted reverse-scores the unweighted sum, so the most cautious
	// answers give the highest raw score.
	MethodWeighted Method = "weighted"
)

// DefaultMethod is used when neither the request nor the configuration names one.
const DefaultMethod = MethodSection

// ParseMethod accepts a method name; empty means the default of the caller.
func ParseMethod(name string) (Method, error) {
	switch m := Method(name); m {
	case "", MethodSection, MethodSimple, MethodWeighted:
		return m, nil
	}
	return "", domain.ValidationErrorf("engine_type", "unknown scoring method %q", name)
}

// Score computes the raw score of rs under m.
func (m Method) Score(rs ResponseSet, q *questionnaire.Questionnaire) (float64, error) {
	switch m {
	case "", MethodSection:
		return Score(rs, q)
	case MethodSimple:
		return SumScore(rs, q)
	case MethodWeighted:
		total, err := SumScore(rs, q)
		if err != nil {
			return 0, err
		}
		lo, hi := sumRange(q)
		return lo + hi - total, nil
	}
	return 0, domain.ValidationErrorf("engine_type", "unknown scoring method %q", string(m))
}

// Range returns the lowest and highest raw score achievable under m.
func (m Method) Range(q *questionnaire.Questionnaire) (float64, float64) {
	if m == "" || m == MethodSection {
		return ScoreRange(q)
	}
	// reverse scoring maps [lo, hi] onto itself
	return sumRange(q)
}

// SumScore is the unweighted sum of the chosen option scores.
func SumScore(rs ResponseSet, q *questionnaire.Questionnaire) (float64, error) {
	if err := rs.Validate(q); err != nil {
		return 0, err
	}
	var total float64
	for _, question := range q.Questions {
		total += rs[question.ID]
	}
	return total, nil
}

func sumRange(q *questionnaire.Questionnaire) (float64, float64) {
	var lo, hi float64
	for _, question := range q.Questions {
		qlo, qhi := question.ScoreBounds()
		lo += qlo
		hi += qhi
	}
	return lo, hi
}
