package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriceSeries_Window(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := PriceSeries{Fund: "Bonds", Source: SourceLive}
	for i := 0; i < 10; i++ {
		s.Points = append(s.Points, PricePoint{Time: base.AddDate(0, 0, i), Price: float64(100 + i)})
	}

	w := s.Window(base.AddDate(0, 0, 2), base.AddDate(0, 0, 4))
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{102, 103, 104}, w.Prices())
	assert.Equal(t, SourceLive, w.Source)
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	ts := time.Date(2024, 3, 5, 1, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), Day(ts))
}

func TestFundMetadata_Merge(t *testing.T) {
	configured := FundMetadata{ExpenseRatio: 0.0022, FundManager: "Vanguard"}
	live := FundMetadata{LongName: "Vanguard FTSE All-World", FundManager: "Other", Exchange: "GER"}

	merged := configured.Merge(live)
	assert.Equal(t, "Vanguard", merged.FundManager)
	assert.Equal(t, "Vanguard FTSE All-World", merged.LongName)
	assert.Equal(t, "GER", merged.Exchange)
	assert.Equal(t, 0.0022, merged.ExpenseRatio)
}
