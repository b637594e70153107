package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/advisor/internal/domain"
)

// Method names accepted by Optimize.
const (
	MethodMeanVariance  = "mean_variance"
	MethodMinVolatility = "min_volatility"
	MethodMaxSharpe     = "max_sharpe"
	MethodRiskParity    = "risk_parity"
	MethodPreset        = "preset"
)

// ValidMethod reports whether name is a supported personal-portfolio method.
func ValidMethod(name string) bool {
	switch name {
	case MethodMeanVariance, MethodMinVolatility, MethodMaxSharpe, MethodRiskParity, MethodPreset:
		return true
	}
	return false
}

// Solver produces the reference and personal portfolios.
type Solver struct {
	settings QPSettings
	presets  *PresetSet
	log      zerolog.Logger
}

// NewSolver creates a solver with default QP settings.
func NewSolver(log zerolog.Logger) *Solver {
	return &Solver{
		settings: DefaultQPSettings(),
		log:      log.With().Str("component", "frontier_solver").Logger(),
	}
}

// WithSettings overrides the QP settings.
func (s *Solver) WithSettings(settings QPSettings) *Solver {
	s.settings = settings
	return s
}

// WithPresets enables the preset method.
func (s *Solver) WithPresets(presets *PresetSet) *Solver {
	s.presets = presets
	return s
}

// Presets returns the configured preset portfolios, or nil.
func (s *Solver) Presets() *PresetSet {
	return s.presets
}

// Optimize dispatches the personal portfolio by method name.
func (s *Solver) Optimize(in Input, c Constraints, method string, riskAversion float64) (*Portfolio, error) {
	var (
		p   *Portfolio
		err error
	)
	switch method {
	case "", MethodMeanVariance:
		return s.UtilityOptimal(in, c, riskAversion)
	case MethodMinVolatility:
		p, err = s.GMVP(in, c)
	case MethodMaxSharpe:
		p, err = s.MarketPortfolio(in, c)
	case MethodRiskParity:
		return s.RiskParity(in, c, riskAversion)
	case MethodPreset:
		return s.Preset(in, riskAversion)
	default:
		return nil, domain.ConfigErrorf("optimization", "unknown method %q", method)
	}
	if err != nil {
		return nil, err
	}
	return p.withUtility(in, riskAversion), nil
}

// GMVP is the global minimum variance portfolio. With shorts allowed it is the
// closed-form solution; otherwise a bounded QP, falling back to the closed form
// when the QP does not converge.
func (s *Solver) GMVP(in Input, c Constraints) (*Portfolio, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if c.AllowShort {
		return s.GMVPClosedForm(in)
	}

	fs, err := c.resolve(in.Funds, in.Categories)
	if err != nil {
		return nil, err
	}
	w, err := s.minVariance(in, fs.system(), "gmvp")
	if err != nil {
		s.log.Warn().Err(err).Msg("Bounded GMVP failed, using closed-form solution")
		p, cfErr := s.GMVPClosedForm(in)
		if cfErr != nil {
			return nil, fmt.Errorf("gmvp fallback: %w", cfErr)
		}
		p.Fallback = true
		return p, nil
	}
	return s.finish(in, c, fs, w, MethodMinVolatility), nil
}

// GMVPClosedForm solves min wᵀΣw s.t. Σw = 1 through its KKT system,
// using the pseudo-inverse of Σ when the system is singular.
func (s *Solver) GMVPClosedForm(in Input) (*Portfolio, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	n := len(in.Funds)

	kkt := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			kkt.Set(i, j, 2*in.Covariance.At(i, j))
		}
		kkt.Set(i, n, 1)
		kkt.Set(n, i, 1)
	}
	b := mat.NewVecDense(n+1, nil)
	b.SetVec(n, 1)

	sol := mat.NewVecDense(n+1, nil)
	var w []float64
	if err := sol.SolveVec(kkt, b); err == nil {
		w = vecToSlice(sol.SliceVec(0, n).(*mat.VecDense))
	} else {
		s.log.Debug().Err(err).Msg("GMVP KKT system is ill-conditioned, using pseudo-inverse")
		w, err = pseudoInverseGMVP(in.Covariance)
		if err != nil {
			return nil, err
		}
	}

	var sum float64
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &domain.OptimizationError{Problem: "gmvp", Msg: "closed-form solution is not finite"}
		}
		sum += v
	}
	for i := range w {
		w[i] /= sum
	}
	return newPortfolio(in, w, MethodMinVolatility), nil
}

func pseudoInverseGMVP(cov *mat.SymDense) ([]float64, error) {
	n := cov.SymmetricDim()
	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDThin); !ok {
		return nil, &domain.OptimizationError{Problem: "gmvp", Msg: "covariance decomposition failed"}
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	ones := mat.NewVecDense(n, onesRow(n))
	tol := 1e-12 * values[0] * float64(n)
	w := make([]float64, n)
	for k, sv := range values {
		if sv <= tol {
			continue
		}
		var proj float64
		for i := 0; i < n; i++ {
			proj += u.At(i, k) * ones.AtVec(i)
		}
		for i := 0; i < n; i++ {
			w[i] += v.At(i, k) * proj / sv
		}
	}
	var sum float64
	for _, x := range w {
		sum += x
	}
	if math.Abs(sum) < 1e-15 {
		return nil, &domain.OptimizationError{Problem: "gmvp", Msg: "covariance has no invertible direction along the budget"}
	}
	return w, nil
}

// MarketPortfolio maximizes (wᵀμ - r_f)/√(wᵀΣw). It solves the homogenized QP
// min yᵀΣy s.t. (μ - r_f)ᵀy = 1 over the scaled feasible cone and sets w = y/Σy.
func (s *Solver) MarketPortfolio(in Input, c Constraints) (*Portfolio, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	fs, err := c.resolve(in.Funds, in.Categories)
	if err != nil {
		return nil, err
	}
	n := len(in.Funds)

	sys := fs.homogenized()
	excess := make([]float64, n)
	for i := range excess {
		excess[i] = in.Returns.AtVec(i) - in.RiskFreeRate
	}
	sys.add(excess, 1, 1)

	p := scaledSym(in.Covariance, 2)
	res, err := s.solve(p, make([]float64, n), sys)
	if err != nil {
		return nil, &domain.OptimizationError{Problem: "market", Msg: "solver error", Err: err}
	}
	switch res.Status {
	case QPSolved:
	case QPPrimalInfeasible:
		return nil, &domain.OptimizationError{Problem: "market", Msg: fmt.Sprintf("no feasible portfolio earns more than the risk-free rate %.4f", in.RiskFreeRate)}
	default:
		return nil, &domain.OptimizationError{Problem: "market", Msg: fmt.Sprintf("did not converge: status=%v", res.Status)}
	}

	var kappa float64
	for _, v := range res.X {
		kappa += v
	}
	if kappa <= 1e-12 {
		return nil, &domain.OptimizationError{Problem: "market", Msg: "degenerate tangency scaling"}
	}
	w := make([]float64, n)
	for i, v := range res.X {
		w[i] = v / kappa
	}
	if !fs.contains(w, 1e-6) {
		return nil, &domain.OptimizationError{Problem: "market", Msg: "tangency portfolio violates constraints"}
	}
	return s.finish(in, c, fs, w, MethodMaxSharpe), nil
}

// MaxReturn is the highest expected return reachable within the constraints.
func (s *Solver) MaxReturn(in Input, c Constraints) (*Portfolio, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	fs, err := c.resolve(in.Funds, in.Categories)
	if err != nil {
		return nil, err
	}
	w, err := s.maxReturn(in, fs)
	if err != nil {
		return nil, err
	}
	return newPortfolio(in, cleanWeights(w, fs), "max_return"), nil
}

// UtilityOptimal maximizes wᵀμ - (A/2)·wᵀΣw; failure is reported, never substituted.
func (s *Solver) UtilityOptimal(in Input, c Constraints, riskAversion float64) (*Portfolio, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if riskAversion <= 0 || math.IsNaN(riskAversion) || math.IsInf(riskAversion, 0) {
		return nil, domain.ValidationErrorf("risk_aversion", "must be a positive number, got %v", riskAversion)
	}
	fs, err := c.resolve(in.Funds, in.Categories)
	if err != nil {
		return nil, err
	}
	n := len(in.Funds)

	q := make([]float64, n)
	for i := range q {
		q[i] = -in.Returns.AtVec(i)
	}
	res, err := s.solve(scaledSym(in.Covariance, riskAversion), q, fs.system())
	if err != nil {
		return nil, &domain.OptimizationError{Problem: "utility", Msg: "solver error", Err: err}
	}
	if res.Status != QPSolved {
		return nil, &domain.OptimizationError{Problem: "utility", Msg: fmt.Sprintf("did not converge: status=%v", res.Status)}
	}
	p := s.finish(in, c, fs, res.X, MethodMeanVariance)
	return p.withUtility(in, riskAversion), nil
}

// minVariance solves min wᵀΣw over sys without the fallback logic.
func (s *Solver) minVariance(in Input, sys *linearSystem, problem string) ([]float64, error) {
	n := len(in.Funds)
	res, err := s.solve(scaledSym(in.Covariance, 2), make([]float64, n), sys)
	if err != nil {
		return nil, &domain.OptimizationError{Problem: problem, Msg: "solver error", Err: err}
	}
	if res.Status != QPSolved {
		return nil, &domain.OptimizationError{Problem: problem, Msg: fmt.Sprintf("did not converge: status=%v", res.Status)}
	}
	return res.X, nil
}

// maxReturn solves the LP max μᵀw with a vanishing ridge so the QP engine applies.
func (s *Solver) maxReturn(in Input, fs *feasibleSet) ([]float64, error) {
	n := len(in.Funds)
	ridge := mat.NewSymDense(n, nil)
	scale := 1e-9 * math.Max(mat.Trace(in.Covariance)/float64(n), 1e-6)
	for i := 0; i < n; i++ {
		ridge.SetSym(i, i, scale)
	}
	q := make([]float64, n)
	for i := range q {
		q[i] = -in.Returns.AtVec(i)
	}
	res, err := s.solve(ridge, q, fs.system())
	if err != nil {
		return nil, &domain.OptimizationError{Problem: "max_return", Msg: "solver error", Err: err}
	}
	if res.Status != QPSolved {
		return nil, &domain.OptimizationError{Problem: "max_return", Msg: fmt.Sprintf("did not converge: status=%v", res.Status)}
	}
	return res.X, nil
}

func (s *Solver) solve(p *mat.SymDense, q []float64, sys *linearSystem) (*QPResult, error) {
	a, l, u := sys.matrix()
	res, err := SolveQP(QPProblem{P: p, Q: q, A: a, L: l, U: u}, s.settings)
	if err != nil {
		return nil, err
	}
	s.log.Debug().
		Str("status", string(res.Status)).
		Int("iterations", res.Iterations).
		Bool("polished", res.Polished).
		Float64("primal_residual", res.PrimalResidual).
		Float64("dual_residual", res.DualResidual).
		Msg("QP solved")
	return res, nil
}

// finish cleans numerical noise, applies the minimum-allocation threshold for
// long-only portfolios and computes statistics.
func (s *Solver) finish(in Input, c Constraints, fs *feasibleSet, raw []float64, method string) *Portfolio {
	w := cleanWeights(raw, fs)
	if c.AllowShort || c.MinAllocation <= 0 {
		return newPortfolio(in, w, method)
	}

	thresholded, applied := ApplyThreshold(w, c.MinAllocation, fs)
	if !applied {
		return newPortfolio(in, w, method)
	}
	p := newPortfolio(in, thresholded, method)
	p.FullWeights = weightMap(in.Funds, w)
	return p
}

func scaledSym(m *mat.SymDense, alpha float64) *mat.SymDense {
	n := m.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.ScaleSym(alpha, m)
	return out
}
