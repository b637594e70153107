package formulas

// MaxDrawdown is the largest peak-to-trough decline of a price series,
// expressed as a positive fraction (0.25 = 25% below the running peak).
func MaxDrawdown(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := prices[0]

	for _, price := range prices {
		if price > peak {
			peak = price
		}
		if peak > 0 {
			if drawdown := (peak - price) / peak; drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// MaxDrawdownFromReturns compounds returns into a wealth index before measuring drawdown
func MaxDrawdownFromReturns(returns []float64) float64 {
	wealth := make([]float64, len(returns)+1)
	wealth[0] = 1
	for i, r := range returns {
		wealth[i+1] = wealth[i] * (1 + r)
	}
	return MaxDrawdown(wealth)
}
