// Package yahoo is the live price source backed by Yahoo Finance.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/aristath/advisor/internal/domain"
)

// ErrNoData is returned when Yahoo answers without any usable bars
var ErrNoData = errors.New("yahoo returned no price data")

// historyFunc downloads daily bars for a symbol over a Yahoo period string
type historyFunc func(symbol, period string) ([]models.Bar, error)

// infoFunc downloads the quote summary for a symbol
type infoFunc func(symbol string) (*models.Info, error)

// Client implements domain.PriceSource and domain.MetadataSource using the go-yfinance library
type Client struct {
	log     zerolog.Logger
	history historyFunc
	info    infoFunc
	now     func() time.Time
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		log:     log.With().Str("client", "yahoo").Logger(),
		history: downloadHistory,
		info:    downloadInfo,
		now:     time.Now,
	}
}

func downloadHistory(symbol, period string) ([]models.Bar, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	bars, err := t.History(models.HistoryParams{
		Period:     period,
		Interval:   "1d",
		AutoAdjust: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get historical prices: %w", err)
	}
	return bars, nil
}

func downloadInfo(symbol string) (*models.Info, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	info, err := t.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to get info: %w", err)
	}
	return info, nil
}

// Name identifies the source in logs and warnings
func (c *Client) Name() string {
	return "yahoo"
}

// FetchHistory downloads daily closes for fund.Ticker and keeps [from, to].
// The library call is not cancellable, so the deadline is enforced by
// abandoning the call when ctx is done.
func (c *Client) FetchHistory(ctx context.Context, fund domain.Fund, from, to time.Time) (domain.PriceSeries, error) {
	symbol := strings.TrimSpace(strings.ToUpper(fund.Ticker))
	if symbol == "" {
		return domain.PriceSeries{}, fmt.Errorf("fund %s has no ticker", fund.Name)
	}
	period := periodFor(from, c.now())

	type result struct {
		bars []models.Bar
		err  error
	}
	done := make(chan result, 1)
	go func() {
		bars, err := c.history(symbol, period)
		done <- result{bars: bars, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		c.log.Warn().Str("symbol", symbol).Err(ctx.Err()).Msg("Live fetch abandoned")
		return domain.PriceSeries{}, fmt.Errorf("fetch %s: %w", symbol, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return domain.PriceSeries{}, fmt.Errorf("fetch %s: %w", symbol, res.err)
	}

	series := toSeries(fund.Name, res.bars, from, to)
	if series.Len() == 0 {
		return domain.PriceSeries{}, fmt.Errorf("fetch %s: %w", symbol, ErrNoData)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("period", period).
		Int("points", series.Len()).
		Msg("Fetched live price history")
	return series, nil
}

// FetchMetadata reads display metadata for fund.Ticker
func (c *Client) FetchMetadata(ctx context.Context, fund domain.Fund) (domain.FundMetadata, error) {
	symbol := strings.TrimSpace(strings.ToUpper(fund.Ticker))
	if symbol == "" {
		return domain.FundMetadata{}, fmt.Errorf("fund %s has no ticker", fund.Name)
	}

	type result struct {
		info *models.Info
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := c.info(symbol)
		done <- result{info: info, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return domain.FundMetadata{}, fmt.Errorf("info %s: %w", symbol, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return domain.FundMetadata{}, fmt.Errorf("info %s: %w", symbol, res.err)
	}
	if res.info == nil {
		return domain.FundMetadata{}, fmt.Errorf("info %s: %w", symbol, ErrNoData)
	}

	meta := domain.FundMetadata{
		LongName:  res.info.LongName,
		Exchange:  res.info.Exchange,
		QuoteType: res.info.QuoteType,
	}
	if meta.LongName == "" {
		meta.LongName = res.info.ShortName
	}
	return meta, nil
}

// toSeries keeps positive closes inside the window, one per day, ascending
func toSeries(fund string, bars []models.Bar, from, to time.Time) domain.PriceSeries {
	byDay := make(map[time.Time]float64, len(bars))
	lo, hi := domain.Day(from), domain.Day(to)
	for _, bar := range bars {
		// AutoAdjust already folds splits and dividends into Close
		price := bar.Close
		if price <= 0 || math.IsNaN(price) {
			price = bar.AdjClose
		}
		if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			continue
		}
		day := domain.Day(bar.Date)
		if day.Before(lo) || day.After(hi) {
			continue
		}
		byDay[day] = price
	}

	series := domain.PriceSeries{Fund: fund, Source: domain.SourceLive}
	for day, price := range byDay {
		series.Points = append(series.Points, domain.PricePoint{Time: day, Price: price})
	}
	sort.Slice(series.Points, func(i, j int) bool { return series.Points[i].Time.Before(series.Points[j].Time) })
	return series
}

// periodFor picks the shortest Yahoo range that reaches back to from
func periodFor(from, now time.Time) string {
	age := now.Sub(from)
	const year = 365 * 24 * time.Hour
	switch {
	case age <= 180*24*time.Hour:
		return "6mo"
	case age <= year:
		return "1y"
	case age <= 2*year:
		return "2y"
	case age <= 5*year:
		return "5y"
	case age <= 10*year:
		return "10y"
	default:
		return "max"
	}
}
