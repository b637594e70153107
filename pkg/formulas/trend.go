package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateSMA returns the latest simple moving average or nil when there is not enough data
func CalculateSMA(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length {
		return nil
	}

	sma := talib.Sma(closes, length)
	if len(sma) > 0 && !math.IsNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}

	return nil
}

// TrendRatio compares the last close to its SMA: close/SMA - 1.
// Falls back to the full-history mean when the series is shorter than length.
func TrendRatio(closes []float64, length int) *float64 {
	if len(closes) == 0 {
		return nil
	}

	var base float64
	if sma := CalculateSMA(closes, length); sma != nil {
		base = *sma
	} else {
		base = Mean(closes)
	}
	if base == 0 {
		return nil
	}

	ratio := closes[len(closes)-1]/base - 1
	return &ratio
}
