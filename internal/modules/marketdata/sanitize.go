package marketdata

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/domain"
)

const (
	// Validation thresholds
	maxPriceMultiplier    = 10.0   // Price > 10x recent average is abnormal
	minPriceMultiplier    = 0.1    // Price < 0.1x recent average is abnormal
	maxPriceChangePercent = 1000.0 // >1000% day-over-day is a spike
	minPriceChangePercent = -90.0  // <-90% day-over-day is a crash
	contextWindow         = 30     // Use the last 30 accepted points for context
)

// RejectedPoint records an observation dropped by the sanitizer.
type RejectedPoint struct {
	Point  domain.PricePoint
	Reason string
}

// PriceValidator drops abnormal observations from a price series.
// Abnormal points are removed rather than interpolated so a series never carries invented prices.
type PriceValidator struct {
	log zerolog.Logger
}

// NewPriceValidator creates a new price validator.
func NewPriceValidator(log zerolog.Logger) *PriceValidator {
	return &PriceValidator{
		log: log.With().Str("component", "price_validator").Logger(),
	}
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// ValidatePrice checks price against the accepted points before it, most recent last.
// Returns (isValid, reason).
func (v *PriceValidator) ValidatePrice(price float64, history []domain.PricePoint) (bool, string) {
	if !validPrice(price) {
		return false, "non_positive_price"
	}
	if len(history) == 0 {
		return true, ""
	}

	// Day-over-day change takes priority over the average checks
	prev := history[len(history)-1].Price
	changePercent := (price - prev) / prev * 100.0
	if changePercent > maxPriceChangePercent {
		return false, "spike_detected"
	}
	if changePercent < minPriceChangePercent {
		return false, "crash_detected"
	}

	recent := history
	if len(recent) > contextWindow {
		recent = recent[len(recent)-contextWindow:]
	}
	var sum float64
	for _, p := range recent {
		sum += p.Price
	}
	avg := sum / float64(len(recent))

	if price > avg*maxPriceMultiplier {
		return false, "price_too_high"
	}
	if price < avg*minPriceMultiplier {
		return false, "price_too_low"
	}
	return true, ""
}

// Sanitize returns series without abnormal points, plus what was removed.
func (v *PriceValidator) Sanitize(series domain.PriceSeries) (domain.PriceSeries, []RejectedPoint) {
	clean := domain.PriceSeries{Fund: series.Fund, Source: series.Source}
	clean.Points = make([]domain.PricePoint, 0, len(series.Points))

	var rejected []RejectedPoint
	for _, p := range series.Points {
		if ok, reason := v.ValidatePrice(p.Price, clean.Points); !ok {
			rejected = append(rejected, RejectedPoint{Point: p, Reason: reason})
			continue
		}
		clean.Points = append(clean.Points, p)
	}

	if len(rejected) > 0 {
		v.log.Warn().
			Str("fund", series.Fund).
			Str("source", string(series.Source)).
			Int("rejected", len(rejected)).
			Str("first_reason", rejected[0].Reason).
			Msg("Dropped abnormal prices")
	}
	return clean, rejected
}
