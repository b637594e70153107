package questionnaire

import (
	"io/fs"
	"path"
	"sort"

	"github.com/aristath/advisor/internal/domain"
)

// Library holds the questionnaires that can be served by id
type Library struct {
	byID map[string]*Questionnaire
}

// NewLibrary indexes questionnaires by id; duplicate ids are a configuration error
func NewLibrary(qs ...*Questionnaire) (*Library, error) {
	l := &Library{byID: make(map[string]*Questionnaire, len(qs))}
	for _, q := range qs {
		if _, dup := l.byID[q.ID]; dup {
			return nil, domain.ConfigErrorf("questionnaire", "duplicate questionnaire id %q", q.ID)
		}
		l.byID[q.ID] = q
	}
	return l, nil
}

// LoadLibrary parses every *.json document in dir of fsys.
// The file name does not matter; documents are keyed by their id.
func LoadLibrary(fsys fs.FS, dir string) (*Library, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.json"))
	if err != nil {
		return nil, &domain.ConfigurationError{Source: "questionnaire", Msg: "cannot list " + dir, Err: err}
	}
	sort.Strings(names)

	qs := make([]*Questionnaire, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, &domain.ConfigurationError{Source: "questionnaire", Msg: "cannot read " + name, Err: err}
		}
		q, err := Parse(data)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return NewLibrary(qs...)
}

// Overlay adds other's questionnaires, replacing those with the same id
func (l *Library) Overlay(other *Library) {
	for id, q := range other.byID {
		l.byID[id] = q
	}
}

// Add registers q, replacing any questionnaire with the same id
func (l *Library) Add(q *Questionnaire) {
	l.byID[q.ID] = q
}

// Get returns the questionnaire with the given id
func (l *Library) Get(id string) (*Questionnaire, error) {
	q, ok := l.byID[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "questionnaire", ID: id}
	}
	return q, nil
}

// IDs lists the available questionnaire ids in order
func (l *Library) IDs() []string {
	ids := make([]string, 0, len(l.byID))
	for id := range l.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len is the number of questionnaires
func (l *Library) Len() int { return len(l.byID) }
