package scoring

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/questionnaire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleQuestionnaire(t *testing.T, n int) *questionnaire.Questionnaire {
	t.Helper()
	questions := make([]questionnaire.Question, n)
	for i := range questions {
		questions[i] = questionnaire.Question{
			ID:      fmt.Sprintf("q%d", i+1),
			Text:    "question",
			Section: "all",
			Options: []questionnaire.Option{{Text: "low", Score: 1}, {Text: "mid", Score: 2}, {Text: "high", Score: 3}},
		}
	}
	q, err := questionnaire.New("simple", "Simple", "", []questionnaire.Section{{ID: "all", Title: "All", Weight: 1}}, questions)
	require.NoError(t, err)
	return q
}

func simpleProfiles(t *testing.T) *ProfileSet {
	t.Helper()
	ps, err := NewProfileSet([]RiskProfile{
		{Name: "Aggressive", MinScore: 27, MaxScore: 30, RiskAversion: 1.5},
		{Name: "Very Conservative", MinScore: 10, MaxScore: 16, RiskAversion: 12.0},
		{Name: "Conservative", MinScore: 17, MaxScore: 20, RiskAversion: 6.0},
		{Name: "Moderate", MinScore: 20, MaxScore: 23, RiskAversion: 3.5},
		{Name: "Growth-Oriented", MinScore: 24, MaxScore: 26, RiskAversion: 2.5},
	})
	require.NoError(t, err)
	return ps
}

func uniform(q *questionnaire.Questionnaire, score float64) ResponseSet {
	rs := ResponseSet{}
	for _, question := range q.Questions {
		rs[question.ID] = score
	}
	return rs
}

func TestScore_Weighted(t *testing.T) {
	q, err := questionnaire.New("w", "W", "", []questionnaire.Section{
		{ID: "goals", Weight: 1.2},
		{ID: "attitude", Weight: 1.8},
	}, []questionnaire.Question{
		{ID: "q1", Section: "goals", Options: []questionnaire.Option{{Score: 1}, {Score: 2}, {Score: 3}}},
		{ID: "q2", Section: "attitude", Options: []questionnaire.Option{{Score: 1}, {Score: 2}, {Score: 3}}},
	})
	require.NoError(t, err)

	score, err := Score(ResponseSet{"q1": 2, "q2": 3}, q)
	require.NoError(t, err)
	assert.InDelta(t, 2*1.2+3*1.8, score, 1e-12)

	lo, hi := ScoreRange(q)
	assert.InDelta(t, 3.0, lo, 1e-12)
	assert.InDelta(t, 9.0, hi, 1e-12)
}

func TestScore_ValidationErrors(t *testing.T) {
	q := simpleQuestionnaire(t, 3)

	tests := []struct {
		name      string
		responses ResponseSet
	}{
		{"missing question", ResponseSet{"q1": 1, "q2": 1}},
		{"out of range score", ResponseSet{"q1": 1, "q2": 1, "q3": 7}},
		{"unknown question", ResponseSet{"q1": 1, "q2": 1, "q3": 1, "q9": 2}},
		{"empty", ResponseSet{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Score(tt.responses, q)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestScoreList(t *testing.T) {
	q := simpleQuestionnaire(t, 3)

	score, err := ScoreList([]float64{1, 2, 3}, q)
	require.NoError(t, err)
	assert.Equal(t, 6.0, score)

	_, err = ScoreList([]float64{1, 2}, q)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestClassify_Scenarios(t *testing.T) {
	ps := simpleProfiles(t)

	tests := []struct {
		score    float64
		expected string
		aversion float64
	}{
		{10, "Very Conservative", 12.0},
		{16, "Very Conservative", 12.0},
		{16.5, "Very Conservative", 12.0},
		{17, "Conservative", 6.0},
		{20, "Moderate", 3.5},
		{25, "Growth-Oriented", 2.5},
		{30, "Aggressive", 1.5},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("score_%v", tt.score), func(t *testing.T) {
			p, err := ps.Classify(tt.score)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p.Name)
			assert.Equal(t, tt.aversion, p.RiskAversion)
		})
	}
}

func TestClassify_OutsideBands(t *testing.T) {
	ps := simpleProfiles(t)

	for _, score := range []float64{9.99, 30.01} {
		_, err := ps.Classify(score)
		require.Error(t, err)
		assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	}
}

func TestProfileSet_Validation(t *testing.T) {
	tests := []struct {
		name     string
		profiles []RiskProfile
	}{
		{"empty", nil},
		{"overlap", []RiskProfile{
			{Name: "a", MinScore: 10, MaxScore: 18, RiskAversion: 2},
			{Name: "b", MinScore: 17, MaxScore: 20, RiskAversion: 1},
		}},
		{"gap", []RiskProfile{
			{Name: "a", MinScore: 10, MaxScore: 14, RiskAversion: 2},
			{Name: "b", MinScore: 17, MaxScore: 20, RiskAversion: 1},
		}},
		{"inverted band", []RiskProfile{{Name: "a", MinScore: 20, MaxScore: 10, RiskAversion: 2}}},
		{"non-positive aversion", []RiskProfile{{Name: "a", MinScore: 10, MaxScore: 20, RiskAversion: 0}}},
		{"duplicate name", []RiskProfile{
			{Name: "a", MinScore: 10, MaxScore: 15, RiskAversion: 2},
			{Name: "a", MinScore: 16, MaxScore: 20, RiskAversion: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProfileSet(tt.profiles)
			require.Error(t, err)
			assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
		})
	}
}

func TestProfileSet_RoundTrip(t *testing.T) {
	ps := simpleProfiles(t)
	data, err := json.Marshal(ps)
	require.NoError(t, err)

	again, err := ParseProfiles(data)
	require.NoError(t, err)
	assert.Equal(t, ps, again)
}

func TestProfileSet_Lookup(t *testing.T) {
	ps := simpleProfiles(t)

	p, ok := ps.ByName("Moderate")
	require.True(t, ok)
	assert.Equal(t, 3.5, p.RiskAversion)

	_, ok = ps.ByName("Reckless")
	assert.False(t, ok)

	assert.Equal(t, "Conservative", ps.NearestByRiskAversion(5).Name)
	assert.Equal(t, "Aggressive", ps.NearestByRiskAversion(0.1).Name)
}

func TestCheckCoverage(t *testing.T) {
	ps := simpleProfiles(t)

	require.NoError(t, ps.CheckCoverage(simpleQuestionnaire(t, 10)))

	err := ps.CheckCoverage(simpleQuestionnaire(t, 12))
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))

	_, err = NewAssessor(simpleQuestionnaire(t, 12), ps)
	assert.Error(t, err)
}

func TestAssessor_EveryResponseSetClassifies(t *testing.T) {
	q := simpleQuestionnaire(t, 10)
	a, err := NewAssessor(q, simpleProfiles(t))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		rs := ResponseSet{}
		for _, question := range q.Questions {
			rs[question.ID] = float64(1 + rng.Intn(3))
		}
		assessment, err := a.Assess(rs)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, assessment.RawScore, 10.0)
		assert.LessOrEqual(t, assessment.RawScore, 30.0)
	}
}

func TestAssessor_Extremes(t *testing.T) {
	q := simpleQuestionnaire(t, 10)
	a, err := NewAssessor(q, simpleProfiles(t))
	require.NoError(t, err)

	low, err := a.Assess(uniform(q, 1))
	require.NoError(t, err)
	assert.Equal(t, "Very Conservative", low.Profile.Name)
	assert.Equal(t, 10.0, low.RawScore)

	high, err := a.AssessList([]float64{3, 3, 3, 3, 3, 3, 3, 3, 3, 3})
	require.NoError(t, err)
	assert.Equal(t, "Aggressive", high.Profile.Name)
	assert.Equal(t, 1.5, high.Profile.RiskAversion)
}
