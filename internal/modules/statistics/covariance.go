package statistics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/advisor/internal/domain"
)

const psdTolerance = 1e-12

// shrinkToConstantCorrelation blends the sample covariance with the constant
// correlation target: Σ = (1-δ)·S + δ·F where F keeps the sample variances and
// uses the average pairwise correlation off the diagonal.
func shrinkToConstantCorrelation(sample *mat.SymDense, delta float64) *mat.SymDense {
	n := sample.SymmetricDim()
	if n < 2 || delta <= 0 {
		return sample
	}

	sd := make([]float64, n)
	for i := range sd {
		sd[i] = math.Sqrt(math.Max(0, sample.At(i, i)))
	}

	var sumCorr float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sd[i] == 0 || sd[j] == 0 {
				continue
			}
			sumCorr += sample.At(i, j) / (sd[i] * sd[j])
			pairs++
		}
	}
	var avgCorr float64
	if pairs > 0 {
		avgCorr = sumCorr / float64(pairs)
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, sample.At(i, i))
		for j := i + 1; j < n; j++ {
			target := avgCorr * sd[i] * sd[j]
			out.SetSym(i, j, (1-delta)*sample.At(i, j)+delta*target)
		}
	}
	return out
}

// nearestPSD clips negative eigenvalues to zero and rebuilds the matrix.
// The second result reports whether a correction was needed. A matrix with
// non-finite entries or one that cannot be decomposed is rejected.
func nearestPSD(cov *mat.SymDense) (*mat.SymDense, bool, error) {
	n := cov.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := cov.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, false, &domain.DataUnavailableError{Msg: "covariance has non-finite entries"}
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, false, &domain.OptimizationError{Problem: "covariance", Msg: "eigendecomposition failed"}
	}
	values := eig.Values(nil)

	var largest float64
	for _, v := range values {
		largest = math.Max(largest, math.Abs(v))
	}
	tol := psdTolerance * math.Max(1, largest)

	repaired := false
	for i, v := range values {
		if v < -tol {
			values[i] = 0
			repaired = true
		}
	}
	if !repaired {
		return cov, false, nil
	}

	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var v float64
			for k := 0; k < n; k++ {
				v += vectors.At(i, k) * values[k] * vectors.At(j, k)
			}
			out.SetSym(i, j, v)
		}
	}
	return out, true, nil
}
