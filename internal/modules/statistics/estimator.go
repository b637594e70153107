// Package statistics turns aligned price histories into annualized expected
// returns and a positive semi-definite covariance matrix.
package statistics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/pkg/formulas"
)

// Frequency is the sampling period returns are computed at
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// PeriodsPerYear is 252, 52 or 12
func (f Frequency) PeriodsPerYear() int {
	switch f {
	case Weekly:
		return 52
	case Monthly:
		return 12
	default:
		return formulas.TradingDaysPerYear
	}
}

// Valid reports whether f is a known frequency
func (f Frequency) Valid() bool {
	return f == Daily || f == Weekly || f == Monthly
}

// Constants for estimator configuration
const (
	DefaultMinObservations   = 30
	HighCorrelationThreshold = 0.80
	DefaultCacheTTL          = 7 * 24 * time.Hour
)

// Options configure the estimator
type Options struct {
	ReturnKind      formulas.ReturnKind
	Frequency       Frequency
	MinObservations int
	// Shrinkage is the weight of the constant-correlation target in [0, 1]
	Shrinkage float64
	CacheTTL  time.Duration
}

// DefaultOptions are simple daily returns, 30 observations and no shrinkage
func DefaultOptions() Options {
	return Options{
		ReturnKind:      formulas.SimpleReturns,
		Frequency:       Daily,
		MinObservations: DefaultMinObservations,
		CacheTTL:        DefaultCacheTTL,
	}
}

// Validate rejects unknown kinds, frequencies and out-of-range shrinkage
func (o Options) Validate() error {
	switch {
	case !o.ReturnKind.Valid():
		return domain.ConfigErrorf("statistics", "unknown return kind %q", o.ReturnKind)
	case !o.Frequency.Valid():
		return domain.ConfigErrorf("statistics", "unknown frequency %q", o.Frequency)
	case o.MinObservations < 2:
		return domain.ConfigErrorf("statistics", "min_observations must be at least 2, got %d", o.MinObservations)
	case o.Shrinkage < 0 || o.Shrinkage > 1:
		return domain.ConfigErrorf("statistics", "shrinkage must be in [0, 1], got %v", o.Shrinkage)
	}
	return nil
}

// CorrelationPair is a pair of funds whose returns move closely together
type CorrelationPair struct {
	Fund1       string  `json:"fund1"`
	Fund2       string  `json:"fund2"`
	Correlation float64 `json:"correlation"`
}

// Estimate holds annualized statistics indexed like Funds. It is shared
// through the cache and must not be modified.
type Estimate struct {
	Funds          []string
	Returns        *mat.VecDense
	Covariance     *mat.SymDense
	Observations   int
	PeriodsPerYear int
	Start          time.Time
	End            time.Time
	// Repaired is set when the sample covariance needed a PSD correction
	Repaired     bool
	Correlations []CorrelationPair
}

// Index returns the position of fund in Funds or -1
func (e *Estimate) Index(fund string) int {
	for i, f := range e.Funds {
		if f == fund {
			return i
		}
	}
	return -1
}

// Volatility is the annualized standard deviation of fund i
func (e *Estimate) Volatility(i int) float64 {
	return math.Sqrt(math.Max(0, e.Covariance.At(i, i)))
}

// Estimator computes return/covariance estimates and caches them by fund set and window end
type Estimator struct {
	opts  Options
	cache *estimateCache
	log   zerolog.Logger
}

// NewEstimator creates an estimator; zero-valued options fall back to defaults
func NewEstimator(opts Options, log zerolog.Logger) *Estimator {
	d := DefaultOptions()
	if opts.ReturnKind == "" {
		opts.ReturnKind = d.ReturnKind
	}
	if opts.Frequency == "" {
		opts.Frequency = d.Frequency
	}
	if opts.MinObservations == 0 {
		opts.MinObservations = d.MinObservations
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = d.CacheTTL
	}
	return &Estimator{
		opts:  opts,
		cache: newEstimateCache(opts.CacheTTL),
		log:   log.With().Str("component", "statistics_estimator").Logger(),
	}
}

// Options returns the effective options
func (e *Estimator) Options() Options {
	return e.opts
}

// Estimate aligns the series on their common days, computes period returns and
// annualizes their mean and sample covariance.
func (e *Estimator) Estimate(series map[string]domain.PriceSeries) (*Estimate, error) {
	if err := e.opts.Validate(); err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, &domain.DataUnavailableError{Msg: "no price series to estimate from"}
	}

	funds := make([]string, 0, len(series))
	for name := range series {
		funds = append(funds, name)
	}
	sort.Strings(funds)

	dates, prices := alignSeries(series, funds)
	dates, prices = resample(dates, prices, e.opts.Frequency)
	observations := len(dates) - 1
	if observations < e.opts.MinObservations {
		return nil, &domain.DataUnavailableError{
			Msg: fmt.Sprintf("only %d aligned %s returns across %d funds, need at least %d",
				max(observations, 0), e.opts.Frequency, len(funds), e.opts.MinObservations),
		}
	}

	key := hashFunds(funds, dates[len(dates)-1], e.opts)
	if cached, ok := e.cache.get(key); ok {
		e.log.Debug().Int("num_funds", len(funds)).Str("hash", key[:8]).Msg("Using cached estimate")
		return cached, nil
	}

	ppy := e.opts.Frequency.PeriodsPerYear()
	n := len(funds)
	data := mat.NewDense(observations, n, nil)
	means := mat.NewVecDense(n, nil)
	for j := range funds {
		r := formulas.Returns(prices[j], e.opts.ReturnKind)
		data.SetCol(j, r)
		means.SetVec(j, formulas.Mean(r)*float64(ppy))
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, data, nil)
	cov.ScaleSym(float64(ppy), cov)

	if e.opts.Shrinkage > 0 {
		cov = shrinkToConstantCorrelation(cov, e.opts.Shrinkage)
	}
	cov, repaired, err := nearestPSD(cov)
	if err != nil {
		return nil, err
	}
	if repaired {
		e.log.Warn().Int("num_funds", n).Msg("Sample covariance was not positive semi-definite, clipped negative eigenvalues")
	}

	est := &Estimate{
		Funds:          funds,
		Returns:        means,
		Covariance:     cov,
		Observations:   observations,
		PeriodsPerYear: ppy,
		Start:          dates[0],
		End:            dates[len(dates)-1],
		Repaired:       repaired,
	}
	est.Correlations = highCorrelations(cov, funds, HighCorrelationThreshold)

	e.log.Info().
		Int("num_funds", n).
		Int("observations", observations).
		Str("frequency", string(e.opts.Frequency)).
		Int("high_correlations", len(est.Correlations)).
		Msg("Estimated returns and covariance")

	e.cache.put(key, est)
	return est, nil
}

// highCorrelations extracts pairs with |ρ| at or above threshold
func highCorrelations(cov *mat.SymDense, funds []string, threshold float64) []CorrelationPair {
	n := cov.SymmetricDim()
	var pairs []CorrelationPair
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			vi, vj := cov.At(i, i), cov.At(j, j)
			if vi <= 0 || vj <= 0 {
				continue
			}
			rho := cov.At(i, j) / math.Sqrt(vi*vj)
			if math.Abs(rho) >= threshold {
				pairs = append(pairs, CorrelationPair{Fund1: funds[i], Fund2: funds[j], Correlation: rho})
			}
		}
	}
	return pairs
}
