package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/utils"
)

// maxConcurrentFetches bounds parallel lookups across the universe.
const maxConcurrentFetches = 4

// Warning is a non-fatal condition surfaced with a result.
type Warning struct {
	Fund    string           `json:"fund,omitempty"`
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// GetUniverseHistory resolves every fund. Funds without data are left out and
// reported as warnings; the call fails only when no fund has data.
func (p *Provider) GetUniverseHistory(ctx context.Context, funds []domain.Fund, asOf time.Time) (map[string]domain.PriceSeries, []Warning, error) {
	if len(funds) == 0 {
		return nil, nil, domain.ValidationErrorf("funds", "no funds requested")
	}

	results := make([]domain.PriceSeries, len(funds))
	failures := make([]error, len(funds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, fund := range funds {
		i, fund := i, fund
		g.Go(func() error {
			series, err := p.GetPriceHistory(gctx, fund, asOf)
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = series
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]domain.PriceSeries, len(funds))
	var warnings []Warning
	var missing []string
	for i, fund := range funds {
		if failures[i] != nil {
			missing = append(missing, fund.Name)
			warnings = append(warnings, Warning{
				Fund:    fund.Name,
				Kind:    domain.KindDataUnavailable,
				Message: fmt.Sprintf("%s excluded: no live or backup price data", fund.Name),
			})
			p.log.Warn().Err(failures[i]).Str("fund", fund.Name).Msg("Excluding fund without price data")
			continue
		}
		out[fund.Name] = results[i]
		if results[i].Source == domain.SourceSeed {
			warnings = append(warnings, Warning{
				Fund:    fund.Name,
				Kind:    domain.KindDataUnavailable,
				Message: fmt.Sprintf("%s priced from a seed snapshot that was never refreshed from live data", fund.Name),
			})
			p.log.Warn().Str("fund", fund.Name).Msg("Fund priced from seed snapshot")
		}
	}

	if len(out) == 0 {
		return nil, warnings, &domain.DataUnavailableError{
			Msg: fmt.Sprintf("no price data for any of %d funds", len(funds)),
			Err: errors.Join(failures...),
		}
	}

	sources := map[domain.DataSource]int{}
	for _, s := range out {
		sources[s.Source]++
	}
	p.log.Info().
		Int("funds", len(out)).
		Int("excluded", len(missing)).
		Str("sources", formatSources(sources)).
		Msg("Universe price history resolved")

	return out, warnings, nil
}

func formatSources(counts map[domain.DataSource]int) string {
	parts := make([]string, 0, len(counts))
	for src, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", src, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// WarmResult summarizes a cache warm pass.
type WarmResult struct {
	Funds   int
	Live    int
	Cached  int
	Backup  int
	Seed    int
	Missing []string
}

// Warm resolves every fund for the current window so later requests hit the cache.
func (p *Provider) Warm(ctx context.Context, funds []domain.Fund) (WarmResult, error) {
	defer utils.OperationTimer("price_cache_warm", p.log)()

	res := WarmResult{Funds: len(funds)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for _, fund := range funds {
		fund := fund
		g.Go(func() error {
			series, err := p.GetPriceHistory(gctx, fund, time.Time{})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Missing = append(res.Missing, fund.Name)
				return nil
			}
			switch series.Source {
			case domain.SourceLive:
				res.Live++
			case domain.SourceCache:
				res.Cached++
			case domain.SourceSeed:
				res.Seed++
			default:
				res.Backup++
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(res.Missing)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(res.Missing) == len(funds) && len(funds) > 0 {
		return res, &domain.DataUnavailableError{Msg: "cache warm found no data for any fund"}
	}
	return res, nil
}
