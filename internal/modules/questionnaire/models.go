// Package questionnaire defines the risk assessment questionnaire document.
package questionnaire

import (
	"encoding/json"
	"fmt"

	"github.com/aristath/advisor/internal/domain"
)

// DefaultSectionWeight applies when a section omits its weight
const DefaultSectionWeight = 1.0

// Option is one selectable answer
type Option struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Question is a single question with its scored options
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
	Section string   `json:"section"`
}

// Section groups questions and scales their contribution
type Section struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight"`
}

// Questionnaire is the full document served to the UI
type Questionnaire struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Sections    []Section  `json:"sections"`
	Questions   []Question `json:"questions"`

	sectionIndex  map[string]int
	questionIndex map[string]int
}

// Parse decodes and validates a questionnaire document
func Parse(data []byte) (*Questionnaire, error) {
	var q Questionnaire
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, &domain.ConfigurationError{Source: "questionnaire", Msg: "invalid JSON", Err: err}
	}
	if err := q.init(); err != nil {
		return nil, err
	}
	return &q, nil
}

// New validates sections and questions and builds a questionnaire
func New(id, title, description string, sections []Section, questions []Question) (*Questionnaire, error) {
	q := &Questionnaire{
		ID:          id,
		Title:       title,
		Description: description,
		Sections:    append([]Section(nil), sections...),
		Questions:   append([]Question(nil), questions...),
	}
	if err := q.init(); err != nil {
		return nil, err
	}
	return q, nil
}

// UnmarshalJSON applies the section weight default; validation happens in Parse/New
func (s *Section) UnmarshalJSON(data []byte) error {
	type rawSection Section
	raw := rawSection{Weight: DefaultSectionWeight}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Section(raw)
	return nil
}

func (q *Questionnaire) init() error {
	if q.ID == "" {
		return domain.ConfigErrorf("questionnaire", "missing id")
	}
	if len(q.Questions) == 0 {
		return domain.ConfigErrorf("questionnaire", "%s has no questions", q.ID)
	}

	q.sectionIndex = make(map[string]int, len(q.Sections))
	for i, s := range q.Sections {
		if s.ID == "" {
			return domain.ConfigErrorf("questionnaire", "section %d has no id", i)
		}
		if _, dup := q.sectionIndex[s.ID]; dup {
			return domain.ConfigErrorf("questionnaire", "duplicate section id %q", s.ID)
		}
		if s.Weight <= 0 {
			return domain.ConfigErrorf("questionnaire", "section %q weight must be positive, got %v", s.ID, s.Weight)
		}
		q.sectionIndex[s.ID] = i
	}

	q.questionIndex = make(map[string]int, len(q.Questions))
	for i, question := range q.Questions {
		if question.ID == "" {
			return domain.ConfigErrorf("questionnaire", "question %d has no id", i)
		}
		if _, dup := q.questionIndex[question.ID]; dup {
			return domain.ConfigErrorf("questionnaire", "duplicate question id %q", question.ID)
		}
		if len(question.Options) == 0 {
			return domain.ConfigErrorf("questionnaire", "question %q has no options", question.ID)
		}
		if _, ok := q.sectionIndex[question.Section]; !ok {
			return domain.ConfigErrorf("questionnaire", "question %q references unknown section %q", question.ID, question.Section)
		}
		q.questionIndex[question.ID] = i
	}

	return nil
}

// Question returns the question with the given id
func (q *Questionnaire) Question(id string) (Question, bool) {
	i, ok := q.questionIndex[id]
	if !ok {
		return Question{}, false
	}
	return q.Questions[i], true
}

// Section returns the section with the given id
func (q *Questionnaire) Section(id string) (Section, bool) {
	i, ok := q.sectionIndex[id]
	if !ok {
		return Section{}, false
	}
	return q.Sections[i], true
}

// SectionWeight returns the weight applied to a question's score
func (q *Questionnaire) SectionWeight(questionID string) (float64, error) {
	question, ok := q.Question(questionID)
	if !ok {
		return 0, fmt.Errorf("unknown question %q", questionID)
	}
	s, _ := q.Section(question.Section)
	return s.Weight, nil
}

// QuestionsInSection returns the questions of a section in document order
func (q *Questionnaire) QuestionsInSection(sectionID string) []Question {
	var out []Question
	for _, question := range q.Questions {
		if question.Section == sectionID {
			out = append(out, question)
		}
	}
	return out
}

// HasOptionScore reports whether score is one of the question's option scores
func (question Question) HasOptionScore(score float64) bool {
	for _, o := range question.Options {
		if o.Score == score {
			return true
		}
	}
	return false
}

// ScoreBounds returns the lowest and highest option score
func (question Question) ScoreBounds() (min, max float64) {
	min, max = question.Options[0].Score, question.Options[0].Score
	for _, o := range question.Options[1:] {
		if o.Score < min {
			min = o.Score
		}
		if o.Score > max {
			max = o.Score
		}
	}
	return min, max
}
