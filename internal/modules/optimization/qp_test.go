package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSolveQP_EqualityConstrainedLeastSquares(t *testing.T) {
	// min (x1-1)² + (x2-2)² s.t. x1 + x2 = 1, 0 <= x <= 1  ->  x = (0, 1)
	prob := QPProblem{
		P: mat.NewSymDense(2, []float64{2, 0, 0, 2}),
		Q: []float64{-2, -4},
		A: mat.NewDense(3, 2, []float64{
			1, 1,
			1, 0,
			0, 1,
		}),
		L: []float64{1, 0, 0},
		U: []float64{1, 1, 1},
	}

	res, err := SolveQP(prob, DefaultQPSettings())
	require.NoError(t, err)
	assert.Equal(t, QPSolved, res.Status)
	assert.InDelta(t, 0.0, res.X[0], 1e-7)
	assert.InDelta(t, 1.0, res.X[1], 1e-7)
}

func TestSolveQP_InteriorSolution(t *testing.T) {
	// min ½xᵀx - (0.3, 0.2)ᵀx with loose bounds has x = q itself
	prob := QPProblem{
		P: mat.NewSymDense(2, []float64{1, 0, 0, 1}),
		Q: []float64{-0.3, -0.2},
		A: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		L: []float64{-1, -1},
		U: []float64{1, 1},
	}

	res, err := SolveQP(prob, DefaultQPSettings())
	require.NoError(t, err)
	assert.Equal(t, QPSolved, res.Status)
	assert.InDelta(t, 0.3, res.X[0], 1e-7)
	assert.InDelta(t, 0.2, res.X[1], 1e-7)
	assert.InDelta(t, -0.5*(0.09+0.04), res.Objective, 1e-9)
}

func TestSolveQP_OneSidedRows(t *testing.T) {
	// min ½(x-2)² s.t. x <= 1
	prob := QPProblem{
		P: mat.NewSymDense(1, []float64{1}),
		Q: []float64{-2},
		A: mat.NewDense(1, 1, []float64{1}),
		L: []float64{math.Inf(-1)},
		U: []float64{1},
	}

	res, err := SolveQP(prob, DefaultQPSettings())
	require.NoError(t, err)
	assert.Equal(t, QPSolved, res.Status)
	assert.InDelta(t, 1.0, res.X[0], 1e-7)
}

func TestSolveQP_Infeasible(t *testing.T) {
	// x1 + x2 = 1 cannot hold with both weights capped at 0.2
	prob := QPProblem{
		P: mat.NewSymDense(2, []float64{1, 0, 0, 1}),
		Q: []float64{0, 0},
		A: mat.NewDense(3, 2, []float64{
			1, 1,
			1, 0,
			0, 1,
		}),
		L: []float64{1, math.Inf(-1), math.Inf(-1)},
		U: []float64{1, 0.2, 0.2},
	}

	res, err := SolveQP(prob, DefaultQPSettings())
	require.NoError(t, err)
	assert.NotEqual(t, QPSolved, res.Status)
}

func TestSolveQP_RejectsMalformedProblems(t *testing.T) {
	_, err := SolveQP(QPProblem{}, DefaultQPSettings())
	assert.Error(t, err)

	_, err = SolveQP(QPProblem{
		P: mat.NewSymDense(2, nil),
		Q: []float64{0},
		A: mat.NewDense(1, 2, nil),
		L: []float64{0},
		U: []float64{0},
	}, DefaultQPSettings())
	assert.Error(t, err)

	_, err = SolveQP(QPProblem{
		P: mat.NewSymDense(1, []float64{1}),
		Q: []float64{0},
		A: mat.NewDense(1, 1, []float64{1}),
		L: []float64{1},
		U: []float64{0},
	}, DefaultQPSettings())
	assert.Error(t, err)
}

func TestQPSettings_WithDefaults(t *testing.T) {
	s := QPSettings{}.withDefaults()
	d := DefaultQPSettings()
	assert.Equal(t, d.Rho, s.Rho)
	assert.Equal(t, d.MaxIter, s.MaxIter)
	assert.Equal(t, d.Alpha, s.Alpha)
	assert.False(t, s.Polish)
}
