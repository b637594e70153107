package optimization

import (
	"math"

	"github.com/aristath/advisor/internal/domain"
)

// DefaultFrontierPoints is the number of target returns swept.
const DefaultFrontierPoints = 50

const monotoneTol = 1e-9

// FrontierPoint is one minimum-variance portfolio for a target return.
type FrontierPoint struct {
	TargetReturn float64            `json:"target_return"`
	Return       float64            `json:"return"`
	Volatility   float64            `json:"volatility"`
	Weights      map[string]float64 `json:"weights"`
}

// Frontier is the minimum-volatility boundary ordered by increasing target return.
type Frontier struct {
	Points        []FrontierPoint `json:"points"`
	ShortsAllowed bool            `json:"shorts_allowed"`
	Skipped       int             `json:"skipped"`
}

// EfficientFrontier sweeps target returns linearly from the GMVP return to the
// maximum achievable return. Infeasible targets are skipped and the resulting
// curve is non-decreasing in volatility. Points are not thresholded.
func (s *Solver) EfficientFrontier(in Input, c Constraints, points int) (*Frontier, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if points < 2 {
		points = DefaultFrontierPoints
	}
	fs, err := c.resolve(in.Funds, in.Categories)
	if err != nil {
		return nil, err
	}
	base := fs.system()

	gmvp, err := s.minVariance(in, base, "frontier")
	if err != nil {
		return nil, err
	}
	gmvp = cleanWeights(gmvp, fs)
	top, err := s.maxReturn(in, fs)
	if err != nil {
		return nil, err
	}
	top = cleanWeights(top, fs)

	lo, hi := in.ExpectedReturn(gmvp), in.ExpectedReturn(top)
	frontier := &Frontier{ShortsAllowed: c.AllowShort}
	if hi-lo < 1e-12 {
		frontier.Points = []FrontierPoint{s.point(in, lo, gmvp)}
		return frontier, nil
	}

	mu := make([]float64, len(in.Funds))
	for i := range mu {
		mu[i] = in.Returns.AtVec(i)
	}

	lastVol := math.Inf(-1)
	for k := 0; k < points; k++ {
		target := lo + (hi-lo)*float64(k)/float64(points-1)

		var w []float64
		switch k {
		case 0:
			w = gmvp
		default:
			sys := base.clone()
			sys.add(mu, target, target)
			solved, err := s.minVariance(in, sys, "frontier")
			if err != nil {
				if k != points-1 {
					frontier.Skipped++
					s.log.Debug().Float64("target_return", target).Err(err).Msg("Skipping infeasible frontier target")
					continue
				}
				solved = top
			}
			w = cleanWeights(solved, fs)
		}

		pt := s.point(in, target, w)
		if pt.Volatility < lastVol-monotoneTol*(1+lastVol) {
			frontier.Skipped++
			s.log.Debug().Float64("target_return", target).Msg("Dropping non-monotone frontier point")
			continue
		}
		lastVol = math.Max(lastVol, pt.Volatility)
		frontier.Points = append(frontier.Points, pt)
	}

	if len(frontier.Points) == 0 {
		return nil, &domain.OptimizationError{Problem: "frontier", Msg: "no feasible target return"}
	}
	if frontier.Skipped > 0 {
		s.log.Warn().Int("skipped", frontier.Skipped).Int("points", len(frontier.Points)).Msg("Efficient frontier has skipped targets")
	}
	return frontier, nil
}

func (s *Solver) point(in Input, target float64, w []float64) FrontierPoint {
	return FrontierPoint{
		TargetReturn: target,
		Return:       in.ExpectedReturn(w),
		Volatility:   math.Sqrt(in.Variance(w)),
		Weights:      weightMap(in.Funds, w),
	}
}
