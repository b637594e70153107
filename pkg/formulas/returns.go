// Package formulas holds pure financial calculations shared by the estimator and the metrics endpoint.
package formulas

import "math"

// ReturnKind selects how period returns are computed from prices
type ReturnKind string

const (
	// SimpleReturns are (p[i]-p[i-1])/p[i-1]
	SimpleReturns ReturnKind = "simple"
	// LogReturns are ln(p[i]/p[i-1])
	LogReturns ReturnKind = "log"
)

// Valid reports whether k is a known return kind
func (k ReturnKind) Valid() bool {
	return k == SimpleReturns || k == LogReturns
}

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// CalculateLogReturns converts prices to continuously compounded returns.
// Non-positive prices produce a zero return for that period.
func CalculateLogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			returns[i-1] = math.Log(prices[i] / prices[i-1])
		}
	}

	return returns
}

// Returns dispatches on kind
func Returns(prices []float64, kind ReturnKind) []float64 {
	if kind == LogReturns {
		return CalculateLogReturns(prices)
	}
	return CalculateReturns(prices)
}
