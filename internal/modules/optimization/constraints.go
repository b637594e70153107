// Package optimization builds mean-variance portfolios over the fund universe.
package optimization

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/advisor/internal/domain"
)

// DefaultShortLimit is the most negative weight allowed when shorting.
const DefaultShortLimit = 1.0

// Bound is an inclusive [Min, Max] weight range.
type Bound struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// GroupBound bounds the combined weight of every fund in the listed categories.
type GroupBound struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
	Bound
}

// Constraints describe the feasible set shared by every portfolio problem.
type Constraints struct {
	AllowShort    bool
	ShortLimit    float64
	MaxPerAsset   float64
	AssetBounds   map[string]Bound
	Groups        []GroupBound
	MinAllocation float64
}

// Validate rejects inconsistent settings.
func (c Constraints) Validate() error {
	switch {
	case c.MinAllocation < 0 || c.MinAllocation >= 1:
		return domain.ConfigErrorf("optimization", "min_allocation_threshold must be in [0, 1), got %v", c.MinAllocation)
	case c.MaxPerAsset < 0 || c.MaxPerAsset > 1:
		return domain.ConfigErrorf("optimization", "max_allocation_per_asset must be in [0, 1], got %v", c.MaxPerAsset)
	case c.ShortLimit < 0:
		return domain.ConfigErrorf("optimization", "short limit must not be negative")
	}
	for name, b := range c.AssetBounds {
		if b.Min > b.Max {
			return domain.ConfigErrorf("optimization", "asset bound for %q has min > max", name)
		}
	}
	for _, g := range c.Groups {
		if g.Min < 0 || g.Max > 1 || g.Min > g.Max {
			return domain.ConfigErrorf("optimization", "group bound %q must satisfy 0 <= min <= max <= 1", g.Name)
		}
	}
	return nil
}

// WithoutShorts returns a copy with short selling disabled.
func (c Constraints) WithoutShorts() Constraints {
	c.AllowShort = false
	return c
}

// WithShorts returns a copy with short selling enabled.
func (c Constraints) WithShorts() Constraints {
	c.AllowShort = true
	return c
}

// WithoutThreshold returns a copy with the minimum-allocation filter disabled.
func (c Constraints) WithoutThreshold() Constraints {
	c.MinAllocation = 0
	return c
}

// assetBounds resolves per-fund [lo, hi].
func (c Constraints) assetBounds(funds []string) ([]float64, []float64) {
	lo := make([]float64, len(funds))
	hi := make([]float64, len(funds))
	for i, f := range funds {
		lo[i], hi[i] = 0, 1
		if c.AllowShort {
			limit := c.ShortLimit
			if limit == 0 {
				limit = DefaultShortLimit
			}
			lo[i] = -limit
		}
		if c.MaxPerAsset > 0 {
			hi[i] = c.MaxPerAsset
		}
		if b, ok := c.AssetBounds[f]; ok {
			lo[i] = math.Max(lo[i], b.Min)
			hi[i] = math.Min(hi[i], b.Max)
		}
	}
	return lo, hi
}

// groupMembers resolves each group to fund indices; groups with no members are dropped
// unless they require a positive allocation, which makes the problem infeasible.
func (c Constraints) groupMembers(funds []string, categories map[string]string) ([]resolvedGroup, error) {
	var out []resolvedGroup
	for _, g := range c.Groups {
		member := make(map[string]bool, len(g.Categories))
		for _, cat := range g.Categories {
			member[cat] = true
		}
		rg := resolvedGroup{name: g.Name, bound: g.Bound}
		for i, f := range funds {
			if member[categories[f]] {
				rg.idx = append(rg.idx, i)
			}
		}
		if len(rg.idx) == 0 {
			if g.Min > 0 {
				return nil, &domain.OptimizationError{Problem: "constraints", Msg: "group " + g.Name + " requires an allocation but has no funds"}
			}
			continue
		}
		out = append(out, rg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

type resolvedGroup struct {
	name  string
	idx   []int
	bound Bound
}

func (g resolvedGroup) weight(w []float64) float64 {
	var sum float64
	for _, i := range g.idx {
		sum += w[i]
	}
	return sum
}

// linearSystem accumulates rows of l <= a·w <= u.
type linearSystem struct {
	n    int
	rows [][]float64
	lo   []float64
	hi   []float64
}

func newLinearSystem(n int) *linearSystem {
	return &linearSystem{n: n}
}

func (ls *linearSystem) add(row []float64, lo, hi float64) {
	ls.rows = append(ls.rows, row)
	ls.lo = append(ls.lo, lo)
	ls.hi = append(ls.hi, hi)
}

func (ls *linearSystem) clone() *linearSystem {
	out := newLinearSystem(ls.n)
	for i, r := range ls.rows {
		out.add(r, ls.lo[i], ls.hi[i])
	}
	return out
}

func (ls *linearSystem) matrix() (*mat.Dense, []float64, []float64) {
	a := mat.NewDense(len(ls.rows), ls.n, nil)
	for i, r := range ls.rows {
		a.SetRow(i, r)
	}
	return a, append([]float64(nil), ls.lo...), append([]float64(nil), ls.hi...)
}

func unitRow(n, i int) []float64 {
	r := make([]float64, n)
	r[i] = 1
	return r
}

func onesRow(n int) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = 1
	}
	return r
}

// feasibleSet is the constraint set resolved against a concrete fund list.
type feasibleSet struct {
	lo, hi []float64
	groups []resolvedGroup
}

func (c Constraints) resolve(funds []string, categories map[string]string) (*feasibleSet, error) {
	lo, hi := c.assetBounds(funds)
	var sumLo, sumHi float64
	for i := range funds {
		if lo[i] > hi[i] {
			return nil, &domain.OptimizationError{Problem: "constraints", Msg: "asset bounds for " + funds[i] + " are empty"}
		}
		sumLo += lo[i]
		sumHi += hi[i]
	}
	if sumLo > 1+1e-9 || sumHi < 1-1e-9 {
		return nil, &domain.OptimizationError{Problem: "constraints", Msg: "per-asset bounds cannot sum to one"}
	}
	groups, err := c.groupMembers(funds, categories)
	if err != nil {
		return nil, err
	}
	return &feasibleSet{lo: lo, hi: hi, groups: groups}, nil
}

// system expresses the feasible set as rows: budget first, then boxes, then groups.
func (fs *feasibleSet) system() *linearSystem {
	n := len(fs.lo)
	ls := newLinearSystem(n)
	ls.add(onesRow(n), 1, 1)
	for i := 0; i < n; i++ {
		ls.add(unitRow(n, i), fs.lo[i], fs.hi[i])
	}
	for _, g := range fs.groups {
		row := make([]float64, n)
		for _, i := range g.idx {
			row[i] = 1
		}
		ls.add(row, g.bound.Min, g.bound.Max)
	}
	return ls
}

// homogenized rewrites the system for y = κw with κ = Σy > 0: the budget row
// disappears and every bound b on r·w becomes a sign constraint on (r - b·1)·y.
func (fs *feasibleSet) homogenized() *linearSystem {
	base := fs.system()
	n := base.n
	ones := onesRow(n)
	ls := newLinearSystem(n)
	for k := 1; k < len(base.rows); k++ {
		r := base.rows[k]
		if !math.IsInf(base.lo[k], -1) {
			ls.add(axpy(r, -base.lo[k], ones), 0, math.Inf(1))
		}
		if !math.IsInf(base.hi[k], 1) {
			ls.add(axpy(r, -base.hi[k], ones), math.Inf(-1), 0)
		}
	}
	ls.add(ones, 0, math.Inf(1))
	return ls
}

// contains reports whether w satisfies the feasible set within tol.
func (fs *feasibleSet) contains(w []float64, tol float64) bool {
	var sum float64
	for i, v := range w {
		if v < fs.lo[i]-tol || v > fs.hi[i]+tol {
			return false
		}
		sum += v
	}
	if math.Abs(sum-1) > tol {
		return false
	}
	for _, g := range fs.groups {
		gw := g.weight(w)
		if gw < g.bound.Min-tol || gw > g.bound.Max+tol {
			return false
		}
	}
	return true
}

func axpy(x []float64, alpha float64, y []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + alpha*y[i]
	}
	return out
}
