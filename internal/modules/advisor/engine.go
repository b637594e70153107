// Package advisor runs the risk-to-portfolio pipeline: it scores a
// questionnaire, estimates the fund universe and picks the portfolio that
// maximizes the investor's utility.
package advisor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/marketdata"
	"github.com/aristath/advisor/internal/modules/optimization"
	"github.com/aristath/advisor/internal/modules/questionnaire"
	"github.com/aristath/advisor/internal/modules/scoring"
	"github.com/aristath/advisor/internal/modules/statistics"
	"github.com/aristath/advisor/internal/modules/universe"
	"github.com/aristath/advisor/internal/utils"
)

// MaxRiskAversion bounds explicit risk-aversion requests
const MaxRiskAversion = 100.0

const metadataConcurrency = 4

// PriceProvider supplies the universe's price histories and display metadata
type PriceProvider interface {
	GetUniverseHistory(ctx context.Context, funds []domain.Fund, asOf time.Time) (map[string]domain.PriceSeries, []marketdata.Warning, error)
	GetMetadata(ctx context.Context, fund domain.Fund) domain.FundMetadata
}

// Dependencies are the collaborators an Engine is built from
// Questionnaires may be nil, in which case only the assessor's questionnaire is served.
type Dependencies struct {
	Assessor       *scoring.Assessor
	Questionnaires *questionnaire.Library
	Universe       *universe.Universe
	Params         optimization.Params
	Prices         PriceProvider
	Estimator      *statistics.Estimator
	Solver         *optimization.Solver
}

// Engine answers assessment, recommendation and frontier requests
type Engine struct {
	assessor  *scoring.Assessor
	library   *questionnaire.Library
	universe  *universe.Universe
	params    optimization.Params
	prices    PriceProvider
	estimator *statistics.Estimator
	solver    *optimization.Solver
	log       zerolog.Logger
	now       func() time.Time
}

// NewEngine creates an engine
func NewEngine(deps Dependencies, log zerolog.Logger) *Engine {
	return &Engine{
		assessor:  deps.Assessor,
		library:   deps.Questionnaires,
		universe:  deps.Universe,
		params:    deps.Params,
		prices:    deps.Prices,
		estimator: deps.Estimator,
		solver:    deps.Solver,
		log:       log.With().Str("component", "advisor_engine").Logger(),
		now:       time.Now,
	}
}

// RecommendRequest asks for the portfolio of an explicit risk aversion.
// Profile selects the equity bounds; empty means the profile nearest to RiskAversion.
type RecommendRequest struct {
	RiskAversion float64 `json:"risk_aversion"`
	Profile      string  `json:"profile,omitempty"`
	AllowShort   *bool   `json:"allow_short,omitempty"`
	Method       string  `json:"method,omitempty"`
}

// CompleteOptions tune one full pipeline run; zero values use the configured defaults
type CompleteOptions struct {
	ScoringMethod scoring.Method
	Method        string
	AllowShort    *bool
}

// Recommendation is the personal portfolio for one risk aversion
type Recommendation struct {
	Profile      string                  `json:"profile"`
	RiskAversion float64                 `json:"risk_aversion"`
	Portfolio    *optimization.Portfolio `json:"portfolio"`
	Allocations  []Allocation            `json:"allocations"`
	Warnings     []marketdata.Warning    `json:"warnings"`
}

// FrontierSet holds the reference portfolios and curve under one short-selling rule
type FrontierSet struct {
	GMVP   *optimization.Portfolio `json:"gmvp"`
	Market *optimization.Portfolio `json:"market"`
	Curve  *optimization.Frontier  `json:"frontier"`
}

// FrontierResult reports the frontier with and without short selling.
// WithShorts is nil when the unconstrained problem cannot be solved.
type FrontierResult struct {
	RiskFreeRate  float64              `json:"risk_free_rate"`
	WithoutShorts FrontierSet          `json:"without_shorts"`
	WithShorts    *FrontierSet         `json:"with_shorts,omitempty"`
	Warnings      []marketdata.Warning `json:"warnings"`
}

// FundReport is one fund's historical metrics and metadata
type FundReport struct {
	Fund     domain.Fund             `json:"fund"`
	Metadata *domain.FundMetadata    `json:"metadata,omitempty"`
	Metrics  *statistics.FundMetrics `json:"metrics,omitempty"`
}

// FundMetricsResult lists every universe fund in document order
type FundMetricsResult struct {
	Funds    []FundReport         `json:"funds"`
	Warnings []marketdata.Warning `json:"warnings"`
}

// market is the estimated universe for one request
type market struct {
	series   map[string]domain.PriceSeries
	estimate *statistics.Estimate
	input    optimization.Input
	warnings []marketdata.Warning
}

// Questionnaire is the questionnaire responses are scored against
func (e *Engine) Questionnaire() *questionnaire.Questionnaire {
	return e.assessor.Questionnaire()
}

// QuestionnaireByID looks up a served questionnaire document
func (e *Engine) QuestionnaireByID(id string) (*questionnaire.Questionnaire, error) {
	if e.library == nil {
		if q := e.assessor.Questionnaire(); q.ID == id {
			return q, nil
		}
		return nil, &domain.NotFoundError{Resource: "questionnaire", ID: id}
	}
	return e.library.Get(id)
}

// Profiles is the default scoring method's risk profile set
func (e *Engine) Profiles() *scoring.ProfileSet {
	return e.assessor.Profiles()
}

// ProfilesFor is the profile set of a scoring method
func (e *Engine) ProfilesFor(m scoring.Method) (*scoring.ProfileSet, bool) {
	return e.assessor.ProfilesFor(m)
}

// DefaultMethod is the scoring method used when a request names none
func (e *Engine) DefaultMethod() scoring.Method {
	return e.assessor.DefaultMethod()
}

// Universe is the configured fund universe
func (e *Engine) Universe() *universe.Universe {
	return e.universe
}

// Params are the optimization parameters
func (e *Engine) Params() optimization.Params {
	return e.params
}

// Assess scores responses keyed by question id
func (e *Engine) Assess(rs scoring.ResponseSet) (scoring.Assessment, error) {
	return e.assessor.Assess(rs)
}

// AssessWith scores responses with a named scoring method; empty means the default
func (e *Engine) AssessWith(m scoring.Method, rs scoring.ResponseSet) (scoring.Assessment, error) {
	return e.assessor.AssessWith(m, rs)
}

// AssessList scores responses given in question order
func (e *Engine) AssessList(scores []float64) (scoring.Assessment, error) {
	return e.assessor.AssessList(scores)
}

// ResponsesFromList keys an ordered list by question id
func (e *Engine) ResponsesFromList(scores []float64) (scoring.ResponseSet, error) {
	return scoring.ResponsesFromList(scores, e.assessor.Questionnaire())
}

// Recommend solves the personal portfolio for an explicit risk aversion
func (e *Engine) Recommend(ctx context.Context, req RecommendRequest) (*Recommendation, error) {
	if err := e.validateRecommend(&req); err != nil {
		return nil, err
	}
	m, err := e.market(ctx)
	if err != nil {
		return nil, err
	}
	p, err := e.personal(m, req)
	if err != nil {
		return nil, err
	}
	return &Recommendation{
		Profile:      req.Profile,
		RiskAversion: req.RiskAversion,
		Portfolio:    p,
		Allocations:  Allocations(p.Weights, e.universe),
		Warnings:     m.warnings,
	}, nil
}

// Complete runs the whole pipeline for one submission with the configured defaults
func (e *Engine) Complete(ctx context.Context, rs scoring.ResponseSet) (*Result, error) {
	return e.CompleteWith(ctx, rs, CompleteOptions{})
}

// CompleteWith runs the whole pipeline for one submission
func (e *Engine) CompleteWith(ctx context.Context, rs scoring.ResponseSet, opts CompleteOptions) (*Result, error) {
	timer := utils.NewTimer("advisor_complete", e.log)

	if opts.Method != "" && !optimization.ValidMethod(opts.Method) {
		return nil, domain.ValidationErrorf("method", "unknown method %q", opts.Method)
	}
	assessment, err := e.assessor.AssessWith(opts.ScoringMethod, rs)
	if err != nil {
		return nil, err
	}

	m, err := e.market(ctx)
	if err != nil {
		return nil, err
	}

	p, err := e.personal(m, RecommendRequest{
		RiskAversion: assessment.Profile.RiskAversion,
		Profile:      assessment.Profile.Name,
		AllowShort:   opts.AllowShort,
		Method:       opts.Method,
	})
	if err != nil {
		return nil, err
	}

	res, err := Assemble(AssembleInput{
		Assessment:  assessment,
		Portfolio:   p,
		Universe:    e.universe,
		Metrics:     e.metrics(m.series),
		Metadata:    e.metadata(ctx),
		Warnings:    m.warnings,
		GeneratedAt: e.now(),
	})
	if err != nil {
		return nil, err
	}

	timer.StopWithFields(map[string]interface{}{
		"profile": assessment.Profile.Name,
		"funds":   len(p.Weights),
	})
	e.log.Info().
		Str("result_id", res.ID).
		Str("profile", assessment.Profile.Name).
		Str("scoring_method", string(assessment.Method)).
		Str("method", p.Method).
		Float64("raw_score", assessment.RawScore).
		Float64("expected_return", p.Return).
		Float64("volatility", p.Volatility).
		Int("observations", m.estimate.Observations).
		Int("warnings", len(res.Warnings)).
		Msg("Portfolio recommended")
	return res, nil
}

// Frontier returns the reference portfolios and the efficient frontier with
// and without short selling. Zero points uses the configured resolution.
func (e *Engine) Frontier(ctx context.Context, points int) (*FrontierResult, error) {
	if points == 0 {
		points = e.params.Points()
	}
	if points < 2 || points > optimization.MaxFrontierPoints {
		return nil, domain.ValidationErrorf("points", "must be between 2 and %d", optimization.MaxFrontierPoints)
	}

	m, err := e.market(ctx)
	if err != nil {
		return nil, err
	}

	// Reference portfolios carry no profile bounds
	c := e.params.ConstraintsFor("")
	res := &FrontierResult{RiskFreeRate: e.params.RiskFreeRate, Warnings: m.warnings}

	longOnly, err := e.frontierSet(m.input, c.WithoutShorts(), points)
	if err != nil {
		return nil, err
	}
	res.WithoutShorts = *longOnly

	withShorts, err := e.frontierSet(m.input, c.WithShorts(), points)
	if err != nil {
		e.log.Warn().Err(err).Msg("Frontier with short selling unavailable")
		res.Warnings = append(res.Warnings, marketdata.Warning{
			Kind:    domain.KindOf(err),
			Message: "frontier with short selling unavailable: " + err.Error(),
		})
	} else {
		res.WithShorts = withShorts
	}
	return res, nil
}

// FundMetrics reports historical metrics for every fund with price data
func (e *Engine) FundMetrics(ctx context.Context) (*FundMetricsResult, error) {
	series, warnings, err := e.prices.GetUniverseHistory(ctx, e.universe.Funds, e.now())
	if err != nil {
		return nil, err
	}
	metrics := e.metrics(series)
	metadata := e.metadata(ctx)

	res := &FundMetricsResult{Funds: make([]FundReport, 0, len(e.universe.Funds)), Warnings: warnings}
	if res.Warnings == nil {
		res.Warnings = []marketdata.Warning{}
	}
	for _, f := range e.universe.Funds {
		report := FundReport{Fund: f}
		if md, ok := metadata[f.Name]; ok && md != (domain.FundMetadata{}) {
			md := md
			report.Metadata = &md
		}
		if fm, ok := metrics[f.Name]; ok {
			fm := fm
			report.Metrics = &fm
		}
		res.Funds = append(res.Funds, report)
	}
	return res, nil
}

func (e *Engine) validateRecommend(req *RecommendRequest) error {
	a := req.RiskAversion
	if math.IsNaN(a) || math.IsInf(a, 0) || a <= 0 || a > MaxRiskAversion {
		return domain.ValidationErrorf("risk_aversion", "must be in (0, %v]", MaxRiskAversion)
	}
	if req.Method != "" && !optimization.ValidMethod(req.Method) {
		return domain.ValidationErrorf("method", "unknown method %q", req.Method)
	}
	if req.Profile == "" {
		req.Profile = e.assessor.Profiles().NearestByRiskAversion(a).Name
	} else if _, ok := e.assessor.Profiles().ByName(req.Profile); !ok {
		return domain.ValidationErrorf("profile", "unknown profile %q", req.Profile)
	}
	return nil
}

func (e *Engine) market(ctx context.Context) (*market, error) {
	timer := utils.NewTimer("advisor_market", e.log)
	defer timer.Stop()

	series, warnings, err := e.prices.GetUniverseHistory(ctx, e.universe.Funds, e.now())
	if err != nil {
		return nil, err
	}
	est, err := e.estimator.Estimate(series)
	if err != nil {
		return nil, err
	}
	if warnings == nil {
		warnings = []marketdata.Warning{}
	}
	return &market{
		series:   series,
		estimate: est,
		warnings: warnings,
		input: optimization.Input{
			Funds:        est.Funds,
			Categories:   e.universe.CategoryOf(),
			Returns:      est.Returns,
			Covariance:   est.Covariance,
			RiskFreeRate: e.params.RiskFreeRate,
		},
	}, nil
}

func (e *Engine) personal(m *market, req RecommendRequest) (*optimization.Portfolio, error) {
	c := e.params.ConstraintsFor(req.Profile)
	if req.AllowShort != nil {
		c.AllowShort = *req.AllowShort
	}
	method := req.Method
	if method == "" {
		method = e.params.Method
	}
	return e.solver.Optimize(m.input, c, method, req.RiskAversion)
}

func (e *Engine) frontierSet(in optimization.Input, c optimization.Constraints, points int) (*FrontierSet, error) {
	gmvp, err := e.solver.GMVP(in, c)
	if err != nil {
		return nil, err
	}
	mkt, err := e.solver.MarketPortfolio(in, c)
	if err != nil {
		return nil, err
	}
	curve, err := e.solver.EfficientFrontier(in, c, points)
	if err != nil {
		return nil, err
	}
	return &FrontierSet{GMVP: gmvp, Market: mkt, Curve: curve}, nil
}

// metrics computes per-fund figures; failures leave the fund out
func (e *Engine) metrics(series map[string]domain.PriceSeries) map[string]statistics.FundMetrics {
	out := make(map[string]statistics.FundMetrics, len(series))
	for name, s := range series {
		m, err := statistics.ComputeFundMetrics(s, e.params.RiskFreeRate)
		if err != nil {
			e.log.Warn().Err(err).Str("fund", name).Msg("Skipping fund metrics")
			continue
		}
		out[name] = m
	}
	return out
}

// metadata looks up display metadata for the universe in parallel
func (e *Engine) metadata(ctx context.Context) map[string]domain.FundMetadata {
	var (
		mu  sync.Mutex
		out = make(map[string]domain.FundMetadata, len(e.universe.Funds))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataConcurrency)
	for _, f := range e.universe.Funds {
		f := f
		g.Go(func() error {
			md := e.prices.GetMetadata(gctx, f)
			mu.Lock()
			out[f.Name] = md
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
