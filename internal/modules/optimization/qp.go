package optimization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// QPProblem is min ½xᵀPx + qᵀx subject to l <= Ax <= u.
// Use ±Inf in L/U for one-sided rows and L[i] == U[i] for equalities.
type QPProblem struct {
	P *mat.SymDense
	Q []float64
	A *mat.Dense
	L []float64
	U []float64
}

// QPStatus reports how the QP solver terminated.
type QPStatus string

const (
	QPSolved           QPStatus = "solved"
	QPMaxIterations    QPStatus = "max_iterations"
	QPPrimalInfeasible QPStatus = "primal_infeasible"
)

// QPSettings tunes the ADMM iteration.
type QPSettings struct {
	Rho                 float64
	Sigma               float64
	Alpha               float64
	MaxIter             int
	EpsAbs              float64
	EpsRel              float64
	EpsPrimalInf        float64
	AdaptiveRhoInterval int
	Polish              bool
}

// DefaultQPSettings suits the small dense problems portfolio construction produces.
func DefaultQPSettings() QPSettings {
	return QPSettings{
		Rho:                 0.1,
		Sigma:               1e-6,
		Alpha:               1.6,
		MaxIter:             20000,
		EpsAbs:              1e-8,
		EpsRel:              1e-8,
		EpsPrimalInf:        1e-5,
		AdaptiveRhoInterval: 25,
		Polish:              true,
	}
}

// QPResult holds the primal/dual solution and diagnostics.
type QPResult struct {
	X              []float64
	Y              []float64
	Status         QPStatus
	Iterations     int
	Polished       bool
	Objective      float64
	PrimalResidual float64
	DualResidual   float64
}

const (
	rhoMin         = 1e-6
	rhoMax         = 1e6
	rhoEqualityMul = 1e3
	polishDelta    = 1e-10
	feasTol        = 1e-7
)

// SolveQP runs ADMM with a cached Cholesky factorization of P + σI + AᵀRA,
// then polishes the result by solving the KKT system of the guessed active set.
func SolveQP(prob QPProblem, settings QPSettings) (*QPResult, error) {
	n, m, err := prob.dims()
	if err != nil {
		return nil, err
	}
	s := settings.withDefaults()

	isEq := make([]bool, m)
	for k := 0; k < m; k++ {
		isEq[k] = prob.L[k] == prob.U[k]
	}

	baseRho := s.Rho
	rho := make([]float64, m)
	setRho := func() {
		for k := 0; k < m; k++ {
			switch {
			case isEq[k]:
				rho[k] = rhoEqualityMul * baseRho
			case math.IsInf(prob.L[k], -1) && math.IsInf(prob.U[k], 1):
				rho[k] = rhoMin
			default:
				rho[k] = baseRho
			}
		}
	}
	setRho()

	chol, err := factorKKT(prob.P, prob.A, rho, s.Sigma)
	if err != nil {
		return nil, err
	}

	q := mat.NewVecDense(n, append([]float64(nil), prob.Q...))
	x := mat.NewVecDense(n, nil)
	xPrev := mat.NewVecDense(n, nil)
	xt := mat.NewVecDense(n, nil)
	rhs := mat.NewVecDense(n, nil)
	z := make([]float64, m)
	y := make([]float64, m)
	yPrev := make([]float64, m)
	zt := mat.NewVecDense(m, nil)
	w := mat.NewVecDense(m, nil)

	ax := mat.NewVecDense(m, nil)
	px := mat.NewVecDense(n, nil)
	aty := mat.NewVecDense(n, nil)
	dyVec := mat.NewVecDense(m, nil)
	atdy := mat.NewVecDense(n, nil)

	res := &QPResult{Status: QPMaxIterations}
	qNorm := infNormVec(q)

	var iter int
	for iter = 1; iter <= s.MaxIter; iter++ {
		xPrev.CopyVec(x)
		copy(yPrev, y)

		for k := 0; k < m; k++ {
			w.SetVec(k, rho[k]*z[k]-y[k])
		}
		rhs.MulVec(prob.A.T(), w)
		rhs.AddScaledVec(rhs, s.Sigma, xPrev)
		rhs.SubVec(rhs, q)
		if err := chol.SolveVecTo(xt, rhs); err != nil {
			return nil, fmt.Errorf("linear system solve failed: %w", err)
		}
		zt.MulVec(prob.A, xt)

		for j := 0; j < n; j++ {
			x.SetVec(j, s.Alpha*xt.AtVec(j)+(1-s.Alpha)*xPrev.AtVec(j))
		}
		for k := 0; k < m; k++ {
			zr := s.Alpha*zt.AtVec(k) + (1-s.Alpha)*z[k]
			zNew := clamp(zr+y[k]/rho[k], prob.L[k], prob.U[k])
			y[k] += rho[k] * (zr - zNew)
			z[k] = zNew
		}

		ax.MulVec(prob.A, x)
		px.MulVec(prob.P, x)
		aty.MulVec(prob.A.T(), mat.NewVecDense(m, y))

		var rPrim, axNorm, zNorm float64
		for k := 0; k < m; k++ {
			rPrim = math.Max(rPrim, math.Abs(ax.AtVec(k)-z[k]))
			axNorm = math.Max(axNorm, math.Abs(ax.AtVec(k)))
			zNorm = math.Max(zNorm, math.Abs(z[k]))
		}
		var rDual float64
		for j := 0; j < n; j++ {
			rDual = math.Max(rDual, math.Abs(px.AtVec(j)+q.AtVec(j)+aty.AtVec(j)))
		}
		pxNorm, atyNorm := infNormVec(px), infNormVec(aty)

		res.PrimalResidual, res.DualResidual = rPrim, rDual
		epsPrim := s.EpsAbs + s.EpsRel*math.Max(axNorm, zNorm)
		epsDual := s.EpsAbs + s.EpsRel*math.Max(pxNorm, math.Max(atyNorm, qNorm))
		if rPrim <= epsPrim && rDual <= epsDual {
			res.Status = QPSolved
			break
		}

		for k := 0; k < m; k++ {
			dyVec.SetVec(k, y[k]-yPrev[k])
		}
		atdy.MulVec(prob.A.T(), dyVec)
		if primalInfeasible(dyVec, atdy, prob.L, prob.U, s.EpsPrimalInf) {
			res.Status = QPPrimalInfeasible
			break
		}

		if s.AdaptiveRhoInterval > 0 && iter%s.AdaptiveRhoInterval == 0 && rDual > 0 && rPrim > 0 {
			primScale := math.Max(math.Max(axNorm, zNorm), 1e-12)
			dualScale := math.Max(math.Max(pxNorm, math.Max(atyNorm, qNorm)), 1e-12)
			ratio := math.Sqrt((rPrim / primScale) / (rDual / dualScale))
			candidate := clamp(baseRho*ratio, rhoMin, rhoMax)
			if candidate > 5*baseRho || candidate < baseRho/5 {
				baseRho = candidate
				setRho()
				if chol, err = factorKKT(prob.P, prob.A, rho, s.Sigma); err != nil {
					return nil, err
				}
			}
		}
	}
	if iter > s.MaxIter {
		iter = s.MaxIter
	}
	res.Iterations = iter
	res.X = vecToSlice(x)
	res.Y = append([]float64(nil), y...)

	// A polished point satisfying the sign and feasibility checks is a KKT
	// point, so it is accepted even when ADMM ran out of iterations.
	if res.Status != QPPrimalInfeasible && s.Polish {
		if xp, yp, ok := polish(prob, isEq, z, y); ok {
			res.X, res.Y, res.Polished = xp, yp, true
			res.Status = QPSolved
		}
	}
	res.Objective = objective(prob, res.X)

	return res, nil
}

func (prob QPProblem) dims() (int, int, error) {
	if prob.P == nil || prob.A == nil {
		return 0, 0, errors.New("qp: P and A are required")
	}
	n := prob.P.SymmetricDim()
	m, cols := prob.A.Dims()
	switch {
	case len(prob.Q) != n:
		return 0, 0, fmt.Errorf("qp: q has length %d, want %d", len(prob.Q), n)
	case cols != n:
		return 0, 0, fmt.Errorf("qp: A has %d columns, want %d", cols, n)
	case len(prob.L) != m || len(prob.U) != m:
		return 0, 0, fmt.Errorf("qp: bounds have lengths %d/%d, want %d", len(prob.L), len(prob.U), m)
	}
	for k := 0; k < m; k++ {
		if prob.L[k] > prob.U[k] {
			return 0, 0, fmt.Errorf("qp: row %d has l > u", k)
		}
	}
	return n, m, nil
}

func (s QPSettings) withDefaults() QPSettings {
	d := DefaultQPSettings()
	if s.Rho <= 0 {
		s.Rho = d.Rho
	}
	if s.Sigma <= 0 {
		s.Sigma = d.Sigma
	}
	if s.Alpha <= 0 || s.Alpha >= 2 {
		s.Alpha = d.Alpha
	}
	if s.MaxIter <= 0 {
		s.MaxIter = d.MaxIter
	}
	if s.EpsAbs <= 0 {
		s.EpsAbs = d.EpsAbs
	}
	if s.EpsRel < 0 {
		s.EpsRel = d.EpsRel
	}
	if s.EpsPrimalInf <= 0 {
		s.EpsPrimalInf = d.EpsPrimalInf
	}
	return s
}

func factorKKT(p *mat.SymDense, a *mat.Dense, rho []float64, sigma float64) (*mat.Cholesky, error) {
	n := p.SymmetricDim()
	m, _ := a.Dims()
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := p.At(i, j)
			for r := 0; r < m; r++ {
				v += a.At(r, i) * rho[r] * a.At(r, j)
			}
			if i == j {
				v += sigma
			}
			k.SetSym(i, j, v)
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		return nil, errors.New("qp: KKT matrix is not positive definite")
	}
	return &chol, nil
}

// primalInfeasible checks the δy certificate: Aᵀδy ≈ 0 while uᵀ(δy)₊ + lᵀ(δy)₋ < 0.
func primalInfeasible(dy, atdy *mat.VecDense, l, u []float64, eps float64) bool {
	norm := infNormVec(dy)
	if norm < 1e-12 {
		return false
	}
	if infNormVec(atdy) > eps*norm {
		return false
	}
	var support float64
	for k := 0; k < dy.Len(); k++ {
		d := dy.AtVec(k)
		if math.Abs(d) <= eps*norm {
			continue
		}
		if d > 0 {
			if math.IsInf(u[k], 1) {
				return false
			}
			support += u[k] * d
		} else {
			if math.IsInf(l[k], -1) {
				return false
			}
			support += l[k] * d
		}
	}
	return support < -eps*norm
}

func polish(prob QPProblem, isEq []bool, z, y []float64) ([]float64, []float64, bool) {
	n := prob.P.SymmetricDim()
	m := len(z)

	type activeRow struct {
		row   int
		bound float64
		lower bool
	}
	var active []activeRow
	for k := 0; k < m; k++ {
		switch {
		case isEq[k]:
			active = append(active, activeRow{row: k, bound: prob.U[k]})
		case z[k]-prob.L[k] < -y[k]:
			active = append(active, activeRow{row: k, bound: prob.L[k], lower: true})
		case prob.U[k]-z[k] < y[k]:
			active = append(active, activeRow{row: k, bound: prob.U[k]})
		}
	}

	size := n + len(active)
	kkt := mat.NewDense(size, size, nil)
	exact := mat.NewDense(size, size, nil)
	b := mat.NewVecDense(size, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			kkt.Set(i, j, prob.P.At(i, j))
		}
		kkt.Set(i, i, kkt.At(i, i)+polishDelta)
		b.SetVec(i, -prob.Q[i])
	}
	for a, ar := range active {
		for j := 0; j < n; j++ {
			v := prob.A.At(ar.row, j)
			kkt.Set(j, n+a, v)
			kkt.Set(n+a, j, v)
		}
		kkt.Set(n+a, n+a, -polishDelta)
		b.SetVec(n+a, ar.bound)
	}
	exact.Copy(kkt)
	for i := 0; i < size; i++ {
		if i < n {
			exact.Set(i, i, exact.At(i, i)-polishDelta)
		} else {
			exact.Set(i, i, 0)
		}
	}

	var lu mat.LU
	lu.Factorize(kkt)
	sol := mat.NewVecDense(size, nil)
	if err := lu.SolveVecTo(sol, false, b); err != nil && !isConditionWarning(err) {
		return nil, nil, false
	}

	residual := mat.NewVecDense(size, nil)
	step := mat.NewVecDense(size, nil)
	for refine := 0; refine < 3; refine++ {
		residual.MulVec(exact, sol)
		residual.SubVec(b, residual)
		if err := lu.SolveVecTo(step, false, residual); err != nil && !isConditionWarning(err) {
			break
		}
		sol.AddVec(sol, step)
	}

	x := vecToSlice(sol.SliceVec(0, n).(*mat.VecDense))
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, false
		}
	}
	yFull := make([]float64, m)
	for a, ar := range active {
		yv := sol.AtVec(n + a)
		if !isEq[ar.row] {
			if ar.lower && yv > feasTol {
				return nil, nil, false
			}
			if !ar.lower && yv < -feasTol {
				return nil, nil, false
			}
		}
		yFull[ar.row] = yv
	}

	ax := mat.NewVecDense(m, nil)
	ax.MulVec(prob.A, mat.NewVecDense(n, x))
	for k := 0; k < m; k++ {
		v := ax.AtVec(k)
		if v < prob.L[k]-feasTol*(1+math.Abs(prob.L[k])) || v > prob.U[k]+feasTol*(1+math.Abs(prob.U[k])) {
			return nil, nil, false
		}
	}

	return x, yFull, true
}

func isConditionWarning(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond)
}

func objective(prob QPProblem, x []float64) float64 {
	xv := mat.NewVecDense(len(x), append([]float64(nil), x...))
	return 0.5*mat.Inner(xv, prob.P, xv) + mat.Dot(xv, mat.NewVecDense(len(prob.Q), append([]float64(nil), prob.Q...)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func infNormVec(v *mat.VecDense) float64 {
	var norm float64
	for i := 0; i < v.Len(); i++ {
		norm = math.Max(norm, math.Abs(v.AtVec(i)))
	}
	return norm
}

func vecToSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
