package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/advisor/internal/domain"
)

// RiskParity allocates so every fund contributes equal risk.
// It minimizes ½yᵀΣy - (1/n)Σln(y) over y = exp(x), normalizes w = y/Σy and
// then caps weights at their upper bounds. Zero-variance funds carry no risk
// budget and receive no weight.
func (s *Solver) RiskParity(in Input, c Constraints, riskAversion float64) (*Portfolio, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	fs, err := c.WithoutShorts().resolve(in.Funds, in.Categories)
	if err != nil {
		return nil, err
	}

	var risky []int
	for i := range in.Funds {
		if in.Covariance.At(i, i) > 1e-12 {
			risky = append(risky, i)
		}
	}
	if len(risky) == 0 {
		return nil, &domain.OptimizationError{Problem: "risk_parity", Msg: "no fund carries risk"}
	}

	k := len(risky)
	sub := mat.NewSymDense(k, nil)
	for a, i := range risky {
		for b := a; b < k; b++ {
			sub.SetSym(a, b, in.Covariance.At(i, risky[b]))
		}
	}
	budget := 1 / float64(k)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			y := expVec(x)
			var logSum float64
			for _, v := range x {
				logSum += v
			}
			return 0.5*mat.Inner(y, sub, y) - budget*logSum
		},
		Grad: func(grad, x []float64) {
			y := expVec(x)
			var sy mat.VecDense
			sy.MulVec(sub, y)
			for i := range grad {
				grad[i] = y.AtVec(i)*sy.AtVec(i) - budget
			}
		},
	}

	initial := make([]float64, k)
	for a := range initial {
		initial[a] = -0.5 * math.Log(sub.At(a, a))
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, &domain.OptimizationError{Problem: "risk_parity", Msg: "optimization failed", Err: err}
		}
	}
	if result.Status != optimize.Success && result.Status != optimize.GradientThreshold && result.Status != optimize.FunctionConvergence {
		return nil, &domain.OptimizationError{Problem: "risk_parity", Msg: fmt.Sprintf("did not converge: status=%v", result.Status)}
	}

	w := make([]float64, len(in.Funds))
	y := expVec(result.X)
	total := mat.Sum(y)
	for a, i := range risky {
		w[i] = y.AtVec(a) / total
	}

	w, ok := capToBounds(w, fs)
	if !ok || !fs.contains(w, 1e-8) {
		return nil, &domain.OptimizationError{Problem: "risk_parity", Msg: "equal-risk allocation cannot satisfy the allocation bounds"}
	}

	p := s.finish(in, c.WithoutShorts(), fs, w, MethodRiskParity)
	return p.withUtility(in, riskAversion), nil
}

// RiskContributions returns each fund's share of portfolio variance.
func RiskContributions(in Input, w []float64) []float64 {
	wv := mat.NewVecDense(len(w), append([]float64(nil), w...))
	var sw mat.VecDense
	sw.MulVec(in.Covariance, wv)
	variance := mat.Dot(wv, &sw)
	out := make([]float64, len(w))
	if variance <= 0 {
		return out
	}
	for i := range w {
		out[i] = w[i] * sw.AtVec(i) / variance
	}
	return out
}

// capToBounds water-fills weights above their upper bound onto funds with room.
func capToBounds(w []float64, fs *feasibleSet) ([]float64, bool) {
	out := append([]float64(nil), w...)
	capped := make([]bool, len(w))
	for round := 0; round <= len(w); round++ {
		var excess float64
		for i, v := range out {
			if !capped[i] && v > fs.hi[i]+thresholdTol {
				excess += v - fs.hi[i]
				out[i] = fs.hi[i]
				capped[i] = true
			}
		}
		if excess <= thresholdTol {
			return out, true
		}
		var free float64
		var open []int
		for i := range out {
			if !capped[i] && out[i] < fs.hi[i] {
				open = append(open, i)
				free += out[i]
			}
		}
		if len(open) == 0 {
			return w, false
		}
		for _, i := range open {
			if free > 0 {
				out[i] += excess * out[i] / free
			} else {
				out[i] += excess / float64(len(open))
			}
		}
	}
	return out, true
}

func expVec(x []float64) *mat.VecDense {
	y := mat.NewVecDense(len(x), nil)
	for i, v := range x {
		y.SetVec(i, math.Exp(v))
	}
	return y
}
