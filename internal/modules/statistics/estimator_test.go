package statistics

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/pkg/formulas"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// businessDays returns n weekdays starting at from
func businessDays(from time.Time, n int) []time.Time {
	var out []time.Time
	for d := from; len(out) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}

func makeSeries(fund string, days []time.Time, price func(i int) float64) domain.PriceSeries {
	s := domain.PriceSeries{Fund: fund, Source: domain.SourceBackup}
	for i, d := range days {
		s.Points = append(s.Points, domain.PricePoint{Time: d, Price: price(i)})
	}
	return s
}

func randomWalk(seed int64, n int, drift, vol float64) func(int) float64 {
	rng := rand.New(rand.NewSource(seed))
	prices := make([]float64, n)
	p := 100.0
	for i := range prices {
		prices[i] = p
		p *= 1 + drift + vol*rng.NormFloat64()
	}
	return func(i int) float64 { return prices[i] }
}

func TestEstimate_ConstantGrowth(t *testing.T) {
	days := businessDays(start, 61)
	series := map[string]domain.PriceSeries{
		"Growth": makeSeries("Growth", days, func(i int) float64 { return 100 * math.Pow(1.001, float64(i)) }),
	}

	est, err := NewEstimator(DefaultOptions(), zerolog.Nop()).Estimate(series)
	require.NoError(t, err)

	assert.Equal(t, 60, est.Observations)
	assert.Equal(t, 252, est.PeriodsPerYear)
	assert.InDelta(t, 0.001*252, est.Returns.AtVec(0), 1e-9)
	assert.InDelta(t, 0.0, est.Covariance.At(0, 0), 1e-12)
	assert.Equal(t, days[0], est.Start)
	assert.Equal(t, days[60], est.End)
}

func TestEstimate_MatchesFormulas(t *testing.T) {
	days := businessDays(start, 120)
	a := makeSeries("A", days, randomWalk(1, 120, 0.0004, 0.01))
	b := makeSeries("B", days, randomWalk(2, 120, 0.0002, 0.005))

	est, err := NewEstimator(DefaultOptions(), zerolog.Nop()).Estimate(map[string]domain.PriceSeries{"A": a, "B": b})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, est.Funds)

	ra := formulas.CalculateReturns(a.Prices())
	rb := formulas.CalculateReturns(b.Prices())
	assert.InDelta(t, formulas.Mean(ra)*252, est.Returns.AtVec(0), 1e-12)
	assert.InDelta(t, formulas.Variance(ra)*252, est.Covariance.At(0, 0), 1e-12)
	assert.InDelta(t, formulas.Covariance(ra, rb)*252, est.Covariance.At(0, 1), 1e-12)
	assert.Equal(t, est.Covariance.At(0, 1), est.Covariance.At(1, 0))
	assert.False(t, est.Repaired)
	assert.InDelta(t, math.Sqrt(est.Covariance.At(1, 1)), est.Volatility(1), 1e-15)
	assert.Equal(t, 1, est.Index("B"))
	assert.Equal(t, -1, est.Index("C"))
}

func TestEstimate_LogReturns(t *testing.T) {
	days := businessDays(start, 41)
	series := map[string]domain.PriceSeries{
		"A": makeSeries("A", days, func(i int) float64 { return 100 * math.Exp(0.002*float64(i)) }),
	}
	opts := DefaultOptions()
	opts.ReturnKind = formulas.LogReturns

	est, err := NewEstimator(opts, zerolog.Nop()).Estimate(series)
	require.NoError(t, err)
	assert.InDelta(t, 0.002*252, est.Returns.AtVec(0), 1e-9)
}

func TestEstimate_IntersectsDays(t *testing.T) {
	days := businessDays(start, 80)
	a := makeSeries("A", days, randomWalk(3, 80, 0, 0.01))
	// B starts 20 days late and misses day 50
	var bDays []time.Time
	for i, d := range days[20:] {
		if i+20 != 50 {
			bDays = append(bDays, d)
		}
	}
	b := makeSeries("B", bDays, randomWalk(4, len(bDays), 0, 0.01))

	est, err := NewEstimator(DefaultOptions(), zerolog.Nop()).Estimate(map[string]domain.PriceSeries{"A": a, "B": b})
	require.NoError(t, err)
	assert.Equal(t, len(bDays)-1, est.Observations)
	assert.Equal(t, days[20], est.Start)
}

func TestEstimate_InsufficientObservations(t *testing.T) {
	days := businessDays(start, 20)
	series := map[string]domain.PriceSeries{"A": makeSeries("A", days, randomWalk(5, 20, 0, 0.01))}

	_, err := NewEstimator(DefaultOptions(), zerolog.Nop()).Estimate(series)
	require.Error(t, err)
	assert.Equal(t, domain.KindDataUnavailable, domain.KindOf(err))

	_, err = NewEstimator(DefaultOptions(), zerolog.Nop()).Estimate(nil)
	assert.Equal(t, domain.KindDataUnavailable, domain.KindOf(err))
}

func TestEstimate_DisjointHistories(t *testing.T) {
	a := makeSeries("A", businessDays(start, 40), randomWalk(6, 40, 0, 0.01))
	b := makeSeries("B", businessDays(start.AddDate(1, 0, 0), 40), randomWalk(7, 40, 0, 0.01))

	_, err := NewEstimator(DefaultOptions(), zerolog.Nop()).Estimate(map[string]domain.PriceSeries{"A": a, "B": b})
	assert.Equal(t, domain.KindDataUnavailable, domain.KindOf(err))
}

func TestEstimate_WeeklyResample(t *testing.T) {
	days := businessDays(start, 5*40)
	series := map[string]domain.PriceSeries{"A": makeSeries("A", days, randomWalk(8, len(days), 0.0003, 0.01))}

	opts := DefaultOptions()
	opts.Frequency = Weekly
	opts.MinObservations = 10
	est, err := NewEstimator(opts, zerolog.Nop()).Estimate(series)
	require.NoError(t, err)

	// 2024-01-01 is a Monday so 200 weekdays are exactly 40 ISO weeks
	assert.Equal(t, 39, est.Observations)
	assert.Equal(t, 52, est.PeriodsPerYear)
	assert.Equal(t, time.Friday, est.End.Weekday())
	assert.Equal(t, time.Friday, est.Start.Weekday())
}

func TestEstimate_MonthlyResample(t *testing.T) {
	days := businessDays(start, 300)
	series := map[string]domain.PriceSeries{"A": makeSeries("A", days, randomWalk(9, len(days), 0.0003, 0.01))}

	opts := DefaultOptions()
	opts.Frequency = Monthly
	opts.MinObservations = 5
	est, err := NewEstimator(opts, zerolog.Nop()).Estimate(series)
	require.NoError(t, err)

	months := map[string]bool{}
	for _, d := range days {
		months[d.Format("2006-01")] = true
	}
	assert.Equal(t, len(months)-1, est.Observations)
	assert.Equal(t, 12, est.PeriodsPerYear)
}

func TestEstimate_PerfectCorrelationIsReported(t *testing.T) {
	days := businessDays(start, 60)
	walk := randomWalk(10, 60, 0, 0.01)
	series := map[string]domain.PriceSeries{
		"A": makeSeries("A", days, walk),
		"B": makeSeries("B", days, func(i int) float64 { return 2 * walk(i) }),
	}

	est, err := NewEstimator(DefaultOptions(), zerolog.Nop()).Estimate(series)
	require.NoError(t, err)
	require.Len(t, est.Correlations, 1)
	assert.InDelta(t, 1.0, est.Correlations[0].Correlation, 1e-9)
}

func TestEstimate_IsCached(t *testing.T) {
	days := businessDays(start, 60)
	series := map[string]domain.PriceSeries{"A": makeSeries("A", days, randomWalk(11, 60, 0, 0.01))}
	e := NewEstimator(DefaultOptions(), zerolog.Nop())

	first, err := e.Estimate(series)
	require.NoError(t, err)
	second, err := e.Estimate(series)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, e.CachedEstimates())

	e.cache.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	assert.Equal(t, 1, e.Purge())
	assert.Zero(t, e.CachedEstimates())
}

func TestEstimate_ShrinkageKeepsVariances(t *testing.T) {
	days := businessDays(start, 100)
	series := map[string]domain.PriceSeries{
		"A": makeSeries("A", days, randomWalk(12, 100, 0, 0.01)),
		"B": makeSeries("B", days, randomWalk(13, 100, 0, 0.02)),
		"C": makeSeries("C", days, randomWalk(14, 100, 0, 0.015)),
	}
	plain, err := NewEstimator(DefaultOptions(), zerolog.Nop()).Estimate(series)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Shrinkage = 0.5
	shrunk, err := NewEstimator(opts, zerolog.Nop()).Estimate(series)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.InDelta(t, plain.Covariance.At(i, i), shrunk.Covariance.At(i, i), 1e-12)
	}
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	bad := DefaultOptions()
	bad.Frequency = "hourly"
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(bad.Validate()))

	bad = DefaultOptions()
	bad.ReturnKind = "excess"
	assert.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.Shrinkage = 1.5
	assert.Error(t, bad.Validate())
}

func TestNearestPSD(t *testing.T) {
	indefinite := mat.NewSymDense(2, []float64{1, 2, 2, 1})
	fixed, repaired, err := nearestPSD(indefinite)
	require.NoError(t, err)
	require.True(t, repaired)

	assert.InDelta(t, 1.5, fixed.At(0, 0), 1e-12)
	assert.InDelta(t, 1.5, fixed.At(0, 1), 1e-12)
	assert.InDelta(t, 1.5, fixed.At(1, 1), 1e-12)

	pd := mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.03})
	same, repaired, err := nearestPSD(pd)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Same(t, pd, same)
}

func TestNearestPSD_RejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1)} {
		cov := mat.NewSymDense(2, []float64{0.04, v, v, 0.03})
		out, repaired, err := nearestPSD(cov)
		require.Error(t, err)
		assert.Equal(t, domain.KindDataUnavailable, domain.KindOf(err))
		assert.Nil(t, out)
		assert.False(t, repaired)
	}
}

func TestShrinkToConstantCorrelation(t *testing.T) {
	// correlations 0.5 and 0.1 and 0.3 average to 0.3
	sd := []float64{0.2, 0.1, 0.3}
	corr := [][]float64{{1, 0.5, 0.1}, {0.5, 1, 0.3}, {0.1, 0.3, 1}}
	sample := mat.NewSymDense(3, nil)
	for i := range sd {
		for j := i; j < 3; j++ {
			sample.SetSym(i, j, sd[i]*sd[j]*corr[i][j])
		}
	}

	target := shrinkToConstantCorrelation(sample, 1)
	assert.InDelta(t, 0.3*0.2*0.1, target.At(0, 1), 1e-12)
	assert.InDelta(t, 0.3*0.1*0.3, target.At(1, 2), 1e-12)
	assert.InDelta(t, 0.04, target.At(0, 0), 1e-12)

	assert.Same(t, sample, shrinkToConstantCorrelation(sample, 0))
}

func TestHashFunds_OrderIndependent(t *testing.T) {
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	assert.Equal(t, hashFunds([]string{"B", "A"}, end, opts), hashFunds([]string{"A", "B"}, end, opts))
	assert.NotEqual(t, hashFunds([]string{"A", "B"}, end, opts), hashFunds([]string{"A", "B"}, end.AddDate(0, 0, 1), opts))
}
