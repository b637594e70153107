// Package universe loads the fixed set of funds the advisor allocates across.
package universe

import (
	"encoding/json"
	"sort"

	"github.com/aristath/advisor/internal/domain"
)

// Fund is re-exported for callers that only deal with the universe
type Fund = domain.Fund

// Universe is the validated, ordered fund list
type Universe struct {
	Funds []Fund `json:"funds"`

	index map[string]int
}

// Parse decodes and validates a fund universe document
func Parse(data []byte) (*Universe, error) {
	var u Universe
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, &domain.ConfigurationError{Source: "funds", Msg: "invalid JSON", Err: err}
	}
	if err := u.init(); err != nil {
		return nil, err
	}
	return &u, nil
}

// New builds a universe from funds
func New(funds []Fund) (*Universe, error) {
	u := &Universe{Funds: append([]Fund(nil), funds...)}
	if err := u.init(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Universe) init() error {
	if len(u.Funds) == 0 {
		return domain.ConfigErrorf("funds", "fund universe is empty")
	}
	u.index = make(map[string]int, len(u.Funds))
	for i, f := range u.Funds {
		switch {
		case f.Name == "":
			return domain.ConfigErrorf("funds", "fund %d has no name", i)
		case f.Ticker == "":
			return domain.ConfigErrorf("funds", "fund %q has no ticker", f.Name)
		case f.Category == "":
			return domain.ConfigErrorf("funds", "fund %q has no category", f.Name)
		}
		if _, dup := u.index[f.Name]; dup {
			return domain.ConfigErrorf("funds", "duplicate fund %q", f.Name)
		}
		u.index[f.Name] = i
	}
	return nil
}

// Fund looks a fund up by name
func (u *Universe) Fund(name string) (Fund, bool) {
	i, ok := u.index[name]
	if !ok {
		return Fund{}, false
	}
	return u.Funds[i], true
}

// Names returns fund names in document order
func (u *Universe) Names() []string {
	names := make([]string, len(u.Funds))
	for i, f := range u.Funds {
		names[i] = f.Name
	}
	return names
}

// Categories returns the distinct categories, sorted
func (u *Universe) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range u.Funds {
		if !seen[f.Category] {
			seen[f.Category] = true
			out = append(out, f.Category)
		}
	}
	sort.Strings(out)
	return out
}

// CategoryOf maps fund name to category
func (u *Universe) CategoryOf() map[string]string {
	m := make(map[string]string, len(u.Funds))
	for _, f := range u.Funds {
		m[f.Name] = f.Category
	}
	return m
}
