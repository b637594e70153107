// Package domain holds the types and error taxonomy shared by the advisor modules.
package domain

import "time"

// DataSource records which tier produced a price series
type DataSource string

const (
	SourceCache   DataSource = "cache"
	SourceLive    DataSource = "live"
	SourceBackup  DataSource = "backup"
	SourceArchive DataSource = "archive"
	// SourceSeed is an operator-supplied snapshot that was never refreshed from a live fetch
	SourceSeed DataSource = "seed"
)

// PricePoint is a single (day, close) observation
type PricePoint struct {
	Time  time.Time `json:"time" msgpack:"t"`
	Price float64   `json:"price" msgpack:"p"`
}

// PriceSeries is the history of one fund, ascending by time
type PriceSeries struct {
	Fund   string       `json:"fund" msgpack:"fund"`
	Points []PricePoint `json:"points" msgpack:"points"`
	Source DataSource   `json:"source" msgpack:"source"`
}

// Len returns the number of observations
func (s PriceSeries) Len() int { return len(s.Points) }

// Prices returns the closes in order
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// Window returns the points with from <= Time <= to
func (s PriceSeries) Window(from, to time.Time) PriceSeries {
	out := PriceSeries{Fund: s.Fund, Source: s.Source}
	for _, p := range s.Points {
		if p.Time.Before(from) || p.Time.After(to) {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out
}

// Day truncates t to its UTC calendar day, the alignment key for series
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
