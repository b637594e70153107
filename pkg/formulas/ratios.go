package formulas

import "math"

// SharpeRatio is (annualReturn - riskFreeRate) / annualVolatility, or 0 when volatility is 0
func SharpeRatio(annualReturn, annualVolatility, riskFreeRate float64) float64 {
	if annualVolatility == 0 || math.IsNaN(annualVolatility) {
		return 0
	}
	return (annualReturn - riskFreeRate) / annualVolatility
}

// DownsideDeviation is the annualized standard deviation of the negative returns.
// Returns 0 when fewer than two negative returns exist.
func DownsideDeviation(returns []float64, periodsPerYear int) float64 {
	downside := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	return StdDev(downside) * math.Sqrt(float64(periodsPerYear))
}

// SortinoRatio divides compounded excess return by the downside deviation
func SortinoRatio(returns []float64, riskFreeRate float64, periodsPerYear int) float64 {
	dd := DownsideDeviation(returns, periodsPerYear)
	if dd == 0 {
		return 0
	}
	return (AnnualizedReturn(returns, periodsPerYear) - riskFreeRate) / dd
}
