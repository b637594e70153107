// Package scoring turns questionnaire responses into a weighted score and a risk profile.
package scoring

import (
	"sort"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/questionnaire"
)

// ResponseSet maps question id to the chosen option's score.
type ResponseSet map[string]float64

// ResponsesFromList aligns an ordered list of scores to the questionnaire's question order.
func ResponsesFromList(scores []float64, q *questionnaire.Questionnaire) (ResponseSet, error) {
	if len(scores) != len(q.Questions) {
		return nil, domain.ValidationErrorf("responses", "expected %d scores, got %d", len(q.Questions), len(scores))
	}
	rs := make(ResponseSet, len(scores))
	for i, question := range q.Questions {
		rs[question.ID] = scores[i]
	}
	return rs, nil
}

// Validate checks the responses cover the questionnaire exactly with offered scores.
func (rs ResponseSet) Validate(q *questionnaire.Questionnaire) error {
	for _, question := range q.Questions {
		score, ok := rs[question.ID]
		if !ok {
			return domain.ValidationErrorf(question.ID, "missing response")
		}
		if !question.HasOptionScore(score) {
			return domain.ValidationErrorf(question.ID, "score %v is not one of the offered options", score)
		}
	}

	if len(rs) != len(q.Questions) {
		unknown := make([]string, 0)
		for id := range rs {
			if _, ok := q.Question(id); !ok {
				unknown = append(unknown, id)
			}
		}
		sort.Strings(unknown)
		return domain.ValidationErrorf(unknown[0], "unknown question")
	}

	return nil
}

// Score is the sum over questions of chosen score times section weight.
func Score(rs ResponseSet, q *questionnaire.Questionnaire) (float64, error) {
	if err := rs.Validate(q); err != nil {
		return 0, err
	}

	var total float64
	for _, question := range q.Questions {
		weight, err := q.SectionWeight(question.ID)
		if err != nil {
			return 0, &domain.ConfigurationError{Source: "questionnaire", Err: err}
		}
		total += rs[question.ID] * weight
	}
	return total, nil
}

// ScoreList scores an ordered list submission.
func ScoreList(scores []float64, q *questionnaire.Questionnaire) (float64, error) {
	rs, err := ResponsesFromList(scores, q)
	if err != nil {
		return 0, err
	}
	return Score(rs, q)
}

// ScoreRange returns the lowest and highest achievable weighted score.
func ScoreRange(q *questionnaire.Questionnaire) (float64, float64) {
	var lo, hi float64
	for _, question := range q.Questions {
		weight, _ := q.SectionWeight(question.ID)
		qlo, qhi := question.ScoreBounds()
		lo += qlo * weight
		hi += qhi * weight
	}
	return lo, hi
}
