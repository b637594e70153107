package advisor

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/marketdata"
	"github.com/aristath/advisor/internal/modules/optimization"
	"github.com/aristath/advisor/internal/modules/scoring"
	"github.com/aristath/advisor/internal/modules/statistics"
	"github.com/aristath/advisor/internal/modules/universe"
)

// percentUnits is 100% expressed in hundredths of a percent
const percentUnits = 10000

// RiskAssessment is the scored questionnaire outcome
type RiskAssessment struct {
	Profile      string  `json:"profile"`
	Description  string  `json:"description"`
	RiskAversion float64 `json:"risk_aversion"`
	RawScore     float64 `json:"raw_score"`
	Method       string  `json:"scoring_method,omitempty"`
}

// NewRiskAssessment flattens a scored assessment for the response
func NewRiskAssessment(a scoring.Assessment) RiskAssessment {
	return RiskAssessment{
		Profile:      a.Profile.Name,
		Description:  a.Profile.Description,
		RiskAversion: a.Profile.RiskAversion,
		RawScore:     a.RawScore,
		Method:       string(a.Method),
	}
}

// Allocation is one fund's share of the portfolio for display
type Allocation struct {
	Fund     string          `json:"fund"`
	Category string          `json:"category"`
	Weight   float64         `json:"weight"`
	Percent  decimal.Decimal `json:"percent"`
}

// PortfolioView is the chosen portfolio with display allocations
type PortfolioView struct {
	Weights     map[string]float64 `json:"weights"`
	Return      float64            `json:"return"`
	Volatility  float64            `json:"volatility"`
	Sharpe      float64            `json:"sharpe_ratio"`
	Utility     *float64           `json:"utility,omitempty"`
	Method      string             `json:"method"`
	Preset      string             `json:"preset,omitempty"`
	Allocations []Allocation       `json:"allocations"`
}

// FundView is a universe member with its weight and display data
type FundView struct {
	Ticker      string                  `json:"ticker"`
	Category    string                  `json:"category"`
	Description string                  `json:"description,omitempty"`
	Weight      float64                 `json:"weight"`
	Metadata    *domain.FundMetadata    `json:"metadata,omitempty"`
	Metrics     *statistics.FundMetrics `json:"metrics,omitempty"`
}

// Result is the complete answer for one questionnaire submission
type Result struct {
	ID             string               `json:"id"`
	GeneratedAt    time.Time            `json:"generated_at"`
	RiskAssessment RiskAssessment       `json:"risk_assessment"`
	Portfolio      PortfolioView        `json:"portfolio"`
	Funds          map[string]FundView  `json:"funds"`
	Warnings       []marketdata.Warning `json:"warnings"`
}

// AssembleInput gathers everything a Result is built from
type AssembleInput struct {
	Assessment  scoring.Assessment
	Portfolio   *optimization.Portfolio
	Universe    *universe.Universe
	Metrics     map[string]statistics.FundMetrics
	Metadata    map[string]domain.FundMetadata
	Warnings    []marketdata.Warning
	GeneratedAt time.Time
}

// Assemble combines an assessment and a portfolio into a Result.
// Funds without price data are listed with zero weight and no metrics.
func Assemble(in AssembleInput) (*Result, error) {
	if in.Portfolio == nil || len(in.Portfolio.Weights) == 0 {
		return nil, &domain.OptimizationError{Problem: "assemble", Msg: "no portfolio to report"}
	}
	if sum := in.Portfolio.Sum(); math.Abs(sum-1) > optimization.WeightTolerance {
		return nil, &domain.OptimizationError{Problem: "assemble", Msg: "portfolio weights do not sum to one"}
	}

	generated := in.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	res := &Result{
		ID:          uuid.NewString(),
		GeneratedAt: generated.UTC(),
		RiskAssessment: NewRiskAssessment(in.Assessment),
		Portfolio:      viewPortfolio(in.Portfolio, in.Universe),
		Funds:          make(map[string]FundView),
		Warnings:       in.Warnings,
	}
	if res.Warnings == nil {
		res.Warnings = []marketdata.Warning{}
	}

	if in.Universe != nil {
		for _, f := range in.Universe.Funds {
			view := FundView{
				Ticker:      f.Ticker,
				Category:    f.Category,
				Description: f.Description,
				Weight:      in.Portfolio.Weights[f.Name],
			}
			if md, ok := in.Metadata[f.Name]; ok && md != (domain.FundMetadata{}) {
				md := md
				view.Metadata = &md
			}
			if m, ok := in.Metrics[f.Name]; ok {
				m := m
				view.Metrics = &m
			}
			res.Funds[f.Name] = view
		}
	}
	return res, nil
}

func viewPortfolio(p *optimization.Portfolio, u *universe.Universe) PortfolioView {
	return PortfolioView{
		Weights:     p.Weights,
		Return:      p.Return,
		Volatility:  p.Volatility,
		Sharpe:      p.Sharpe,
		Utility:     p.Utility,
		Method:      p.Method,
		Preset:      p.Preset,
		Allocations: Allocations(p.Weights, u),
	}
}

// Allocations converts weights into two-decimal percentages that sum to
// exactly 100.00. Rounding uses the largest-remainder method; ties go to the
// fund name that sorts first. The result is ordered by weight, largest first.
func Allocations(weights map[string]float64, u *universe.Universe) []Allocation {
	type share struct {
		fund      string
		weight    float64
		units     int64
		remainder decimal.Decimal
	}

	shares := make([]share, 0, len(weights))
	var total int64
	for fund, w := range weights {
		if w == 0 {
			continue
		}
		exact := decimal.NewFromFloat(w).Mul(decimal.NewFromInt(percentUnits))
		floor := exact.Floor()
		shares = append(shares, share{
			fund:      fund,
			weight:    w,
			units:     floor.IntPart(),
			remainder: exact.Sub(floor),
		})
		total += floor.IntPart()
	}

	sort.Slice(shares, func(i, j int) bool {
		if c := shares[i].remainder.Cmp(shares[j].remainder); c != 0 {
			return c > 0
		}
		return shares[i].fund < shares[j].fund
	})
	for i := 0; total < percentUnits && len(shares) > 0; i = (i + 1) % len(shares) {
		shares[i].units++
		total++
	}

	sort.Slice(shares, func(i, j int) bool {
		if shares[i].weight != shares[j].weight {
			return shares[i].weight > shares[j].weight
		}
		return shares[i].fund < shares[j].fund
	})

	out := make([]Allocation, len(shares))
	for i, s := range shares {
		a := Allocation{
			Fund:    s.fund,
			Weight:  s.weight,
			Percent: decimal.NewFromInt(s.units).Shift(-2),
		}
		if u != nil {
			if f, ok := u.Fund(s.fund); ok {
				a.Category = f.Category
			}
		}
		out[i] = a
	}
	return out
}
