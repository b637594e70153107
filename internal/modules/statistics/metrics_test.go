package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/pkg/formulas"
)

func TestComputeFundMetrics(t *testing.T) {
	days := businessDays(start, 260)
	series := makeSeries("A", days, randomWalk(21, 260, 0.0004, 0.01))

	m, err := ComputeFundMetrics(series, 0.03)
	require.NoError(t, err)

	returns := formulas.CalculateReturns(series.Prices())
	assert.Equal(t, 259, m.Observations)
	assert.InDelta(t, formulas.AnnualizedReturn(returns, 252), m.AnnualReturn, 1e-12)
	assert.InDelta(t, formulas.AnnualizedVolatility(returns, 252), m.AnnualVolatility, 1e-12)
	assert.InDelta(t, (m.AnnualReturn-0.03)/m.AnnualVolatility, m.SharpeRatio, 1e-12)
	assert.GreaterOrEqual(t, m.MaxDrawdown, 0.0)
	assert.LessOrEqual(t, m.MaxDrawdown, 1.0)
	require.NotNil(t, m.TrendRatio)
	assert.Equal(t, domain.SourceBackup, m.Source)
	assert.Equal(t, days[0], m.Start)
}

func TestComputeFundMetrics_MonotoneSeries(t *testing.T) {
	days := businessDays(start, 50)
	series := makeSeries("A", days, func(i int) float64 { return 100 + float64(i) })

	m, err := ComputeFundMetrics(series, 0.03)
	require.NoError(t, err)
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.SortinoRatio)
	assert.Greater(t, m.AnnualReturn, 0.0)
}

func TestComputeFundMetrics_TooShort(t *testing.T) {
	series := makeSeries("A", businessDays(start, 2), func(i int) float64 { return 100 })
	_, err := ComputeFundMetrics(series, 0.03)
	require.Error(t, err)
	assert.Equal(t, domain.KindDataUnavailable, domain.KindOf(err))
}
