package statistics

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/advisor/internal/domain"
)

// alignSeries keeps only the calendar days every fund has a valid price for.
// prices[j] is the column of funds[j]; when a fund reports a day twice the later point wins.
func alignSeries(series map[string]domain.PriceSeries, funds []string) ([]time.Time, [][]float64) {
	byDay := make([]map[time.Time]float64, len(funds))
	counts := make(map[time.Time]int)
	for j, f := range funds {
		byDay[j] = make(map[time.Time]float64, series[f].Len())
		for _, p := range series[f].Points {
			if p.Price <= 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
				continue
			}
			day := domain.Day(p.Time)
			if _, seen := byDay[j][day]; !seen {
				counts[day]++
			}
			byDay[j][day] = p.Price
		}
	}

	var dates []time.Time
	for day, c := range counts {
		if c == len(funds) {
			dates = append(dates, day)
		}
	}
	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })

	prices := make([][]float64, len(funds))
	for j := range funds {
		col := make([]float64, len(dates))
		for i, d := range dates {
			col[i] = byDay[j][d]
		}
		prices[j] = col
	}
	return dates, prices
}

// resample keeps the last observation of each ISO week or calendar month
func resample(dates []time.Time, prices [][]float64, freq Frequency) ([]time.Time, [][]float64) {
	if freq == Daily || len(dates) == 0 {
		return dates, prices
	}

	period := func(t time.Time) int {
		if freq == Weekly {
			y, w := t.ISOWeek()
			return y*100 + w
		}
		return t.Year()*100 + int(t.Month())
	}

	var keep []int
	for i := range dates {
		if i == len(dates)-1 || period(dates[i]) != period(dates[i+1]) {
			keep = append(keep, i)
		}
	}

	outDates := make([]time.Time, len(keep))
	outPrices := make([][]float64, len(prices))
	for j := range prices {
		outPrices[j] = make([]float64, len(keep))
	}
	for k, i := range keep {
		outDates[k] = dates[i]
		for j := range prices {
			outPrices[j][k] = prices[j][i]
		}
	}
	return outDates, outPrices
}
