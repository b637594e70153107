package statistics

import (
	"fmt"
	"time"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/pkg/formulas"
)

// TrendLength is the SMA period the trend ratio compares against
const TrendLength = 200

// FundMetrics are per-fund performance figures over its own history
type FundMetrics struct {
	AnnualReturn     float64           `json:"annual_return"`
	AnnualVolatility float64           `json:"annual_volatility"`
	SharpeRatio      float64           `json:"sharpe_ratio"`
	SortinoRatio     float64           `json:"sortino_ratio"`
	MaxDrawdown      float64           `json:"max_drawdown"`
	TrendRatio       *float64          `json:"trend_ratio,omitempty"`
	Observations     int               `json:"observations"`
	Start            time.Time         `json:"start"`
	End              time.Time         `json:"end"`
	Source           domain.DataSource `json:"source"`
}

// ComputeFundMetrics derives daily-return metrics from one series.
// The annual return compounds the mean daily return over 252 days.
func ComputeFundMetrics(series domain.PriceSeries, riskFreeRate float64) (FundMetrics, error) {
	if series.Len() < 3 {
		return FundMetrics{}, &domain.DataUnavailableError{
			Fund: series.Fund,
			Msg:  fmt.Sprintf("need at least 3 prices for metrics, got %d", series.Len()),
		}
	}

	prices := series.Prices()
	returns := formulas.CalculateReturns(prices)
	ppy := formulas.TradingDaysPerYear

	m := FundMetrics{
		AnnualReturn:     formulas.AnnualizedReturn(returns, ppy),
		AnnualVolatility: formulas.AnnualizedVolatility(returns, ppy),
		SortinoRatio:     formulas.SortinoRatio(returns, riskFreeRate, ppy),
		MaxDrawdown:      formulas.MaxDrawdown(prices),
		TrendRatio:       formulas.TrendRatio(prices, TrendLength),
		Observations:     len(returns),
		Start:            series.Points[0].Time,
		End:              series.Points[len(series.Points)-1].Time,
		Source:           series.Source,
	}
	m.SharpeRatio = formulas.SharpeRatio(m.AnnualReturn, m.AnnualVolatility, riskFreeRate)
	return m, nil
}
