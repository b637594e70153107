package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/pkg/formulas"
)

// WeightTolerance bounds |Σw - 1| for every returned portfolio.
const WeightTolerance = 1e-6

// Input is the estimated market the solver allocates across.
// Returns and Covariance are indexed like Funds.
type Input struct {
	Funds        []string
	Categories   map[string]string
	Returns      *mat.VecDense
	Covariance   *mat.SymDense
	RiskFreeRate float64
}

func (in Input) validate() error {
	n := len(in.Funds)
	if n == 0 {
		return &domain.DataUnavailableError{Msg: "no funds to optimize over"}
	}
	if in.Returns == nil || in.Covariance == nil || in.Returns.Len() != n || in.Covariance.SymmetricDim() != n {
		return &domain.OptimizationError{Problem: "input", Msg: "return vector and covariance do not match the fund list"}
	}
	return nil
}

// Variance is wᵀΣw.
func (in Input) Variance(w []float64) float64 {
	wv := mat.NewVecDense(len(w), append([]float64(nil), w...))
	return math.Max(0, mat.Inner(wv, in.Covariance, wv))
}

// ExpectedReturn is wᵀμ.
func (in Input) ExpectedReturn(w []float64) float64 {
	var r float64
	for i, v := range w {
		r += v * in.Returns.AtVec(i)
	}
	return r
}

// Utility is wᵀμ - (A/2)·wᵀΣw.
func (in Input) Utility(w []float64, riskAversion float64) float64 {
	return in.ExpectedReturn(w) - riskAversion/2*in.Variance(w)
}

// Vector orders a weight map like Funds; missing funds weigh zero.
func (in Input) Vector(weights map[string]float64) []float64 {
	w := make([]float64, len(in.Funds))
	for i, f := range in.Funds {
		w[i] = weights[f]
	}
	return w
}

// Portfolio is a fully-invested allocation with its statistics.
type Portfolio struct {
	Weights     map[string]float64 `json:"weights"`
	Return      float64            `json:"return"`
	Volatility  float64            `json:"volatility"`
	Sharpe      float64            `json:"sharpe_ratio"`
	Utility     *float64           `json:"utility,omitempty"`
	Method      string             `json:"method,omitempty"`
	Preset      string             `json:"preset,omitempty"`
	Fallback    bool               `json:"fallback,omitempty"`
	FullWeights map[string]float64 `json:"full_weights,omitempty"`
}

// newPortfolio computes statistics for w; zero weights are omitted from the map.
func newPortfolio(in Input, w []float64, method string) *Portfolio {
	p := &Portfolio{
		Weights: weightMap(in.Funds, w),
		Return:  in.ExpectedReturn(w),
		Method:  method,
	}
	p.Volatility = math.Sqrt(in.Variance(w))
	p.Sharpe = formulas.SharpeRatio(p.Return, p.Volatility, in.RiskFreeRate)
	return p
}

func (p *Portfolio) withUtility(in Input, riskAversion float64) *Portfolio {
	u := in.Utility(in.Vector(p.Weights), riskAversion)
	p.Utility = &u
	return p
}

// Sum returns the sum of the weights.
func (p *Portfolio) Sum() float64 {
	var s float64
	for _, w := range p.Weights {
		s += w
	}
	return s
}

func weightMap(funds []string, w []float64) map[string]float64 {
	m := make(map[string]float64, len(funds))
	for i, f := range funds {
		if w[i] != 0 {
			m[f] = w[i]
		}
	}
	return m
}

// cleanWeights snaps numerical dust to the bounds and restores Σw = 1 exactly.
func cleanWeights(w []float64, fs *feasibleSet) []float64 {
	out := make([]float64, len(w))
	var sum float64
	for i, v := range w {
		if math.Abs(v) < 1e-10 {
			v = 0
		}
		v = clamp(v, fs.lo[i], fs.hi[i])
		out[i] = v
		sum += v
	}
	if sum != 0 && math.Abs(sum-1) > 0 {
		residual := 1 - sum
		// Spread the residual over the funds with room, largest first.
		for _, i := range orderByMagnitude(out) {
			room := fs.hi[i] - out[i]
			if residual < 0 {
				room = fs.lo[i] - out[i]
			}
			step := residual
			if math.Abs(step) > math.Abs(room) {
				step = room
			}
			out[i] += step
			residual -= step
			if math.Abs(residual) < 1e-15 {
				break
			}
		}
	}
	return out
}

func orderByMagnitude(w []float64) []int {
	idx := make([]int, len(w))
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && math.Abs(w[idx[j]]) > math.Abs(w[idx[j-1]]); j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}
