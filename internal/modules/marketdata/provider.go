// Package marketdata supplies fund price histories through an explicit tiered lookup:
// fresh cache, live source, then backup snapshots.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/advisor/internal/clientdata"
	"github.com/aristath/advisor/internal/domain"
)

const (
	DefaultLookbackYears = 3
	DefaultLiveTimeout   = 20 * time.Second
)

// Cache is the expiry-aware store behind the first lookup tier.
type Cache interface {
	GetIfFresh(table, key string, out interface{}) (bool, error)
	Get(table, key string, out interface{}) (bool, error)
	Store(table, key string, data interface{}, ttl time.Duration) error
}

// SnapshotWriter refreshes the local backup after a successful live fetch.
type SnapshotWriter interface {
	Save(fund domain.Fund, series domain.PriceSeries) error
}

// Config controls the lookup tiers.
type Config struct {
	LookbackYears int
	CacheTTL      time.Duration
	LiveTimeout   time.Duration
	// ServeStale lets an expired cache entry answer once every other tier failed.
	ServeStale bool
}

// DefaultConfig returns the standard lookup settings.
func DefaultConfig() Config {
	return Config{
		LookbackYears: DefaultLookbackYears,
		CacheTTL:      clientdata.TTLPriceHistory,
		LiveTimeout:   DefaultLiveTimeout,
		ServeStale:    true,
	}
}

// LookupTimeout bounds one full tier walk: the live fetch plus the backups behind it.
func (c Config) LookupTimeout() time.Duration {
	return 2 * c.LiveTimeout
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LookbackYears <= 0 {
		c.LookbackYears = d.LookbackYears
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.LiveTimeout <= 0 {
		c.LiveTimeout = d.LiveTimeout
	}
	return c
}

// Provider resolves price histories for single funds and for the whole universe.
type Provider struct {
	cfg       Config
	cache     Cache
	live      domain.PriceSource
	backups   []domain.PriceSource
	snapshots SnapshotWriter
	validator *PriceValidator
	group     singleflight.Group
	log       zerolog.Logger
	now       func() time.Time
}

// NewProvider wires the tiers. cache and live may be nil; backups are tried in order.
func NewProvider(cfg Config, cache Cache, live domain.PriceSource, backups []domain.PriceSource, log zerolog.Logger) *Provider {
	return &Provider{
		cfg:       cfg.withDefaults(),
		cache:     cache,
		live:      live,
		backups:   backups,
		validator: NewPriceValidator(log),
		log:       log.With().Str("component", "market_data_provider").Logger(),
		now:       time.Now,
	}
}

// SetSnapshotWriter enables refreshing the local backup after live fetches.
func (p *Provider) SetSnapshotWriter(w SnapshotWriter) {
	p.snapshots = w
}

// Config returns the effective settings.
func (p *Provider) Config() Config {
	return p.cfg
}

// Window returns the lookback window ending at asOf.
func (p *Provider) Window(asOf time.Time) (time.Time, time.Time) {
	if asOf.IsZero() {
		asOf = p.now()
	}
	return domain.Day(asOf.AddDate(-p.cfg.LookbackYears, 0, 0)), asOf
}

// GetPriceHistory returns the fund's closes over the lookback window ending at asOf.
// Concurrent calls for the same fund and window share one lookup. The shared
// lookup is detached from the caller that started it and bounded by
// LookupTimeout, so a caller that gives up only abandons its own wait.
func (p *Provider) GetPriceHistory(ctx context.Context, fund domain.Fund, asOf time.Time) (domain.PriceSeries, error) {
	from, to := p.Window(asOf)
	key := fmt.Sprintf("%s|%s|%s", fund.Name, from.Format("2006-01-02"), domain.Day(to).Format("2006-01-02"))

	ch := p.group.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.LookupTimeout())
		defer cancel()
		return p.lookup(flightCtx, fund, from, to)
	})

	select {
	case <-ctx.Done():
		return domain.PriceSeries{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.PriceSeries{}, res.Err
		}
		if res.Shared {
			p.log.Debug().Str("fund", fund.Name).Msg("Coalesced concurrent price lookup")
		}
		return res.Val.(domain.PriceSeries), nil
	}
}

func (p *Provider) lookup(ctx context.Context, fund domain.Fund, from, to time.Time) (domain.PriceSeries, error) {
	var errs []error

	// 1. Fresh cache
	if p.cache != nil {
		var cached domain.PriceSeries
		ok, err := p.cache.GetIfFresh(clientdata.TablePriceHistory, fund.Name, &cached)
		switch {
		case err != nil:
			p.log.Warn().Err(err).Str("fund", fund.Name).Msg("Cache read failed")
		case ok:
			if series := cached.Window(from, to); series.Len() > 0 {
				series.Source = domain.SourceCache
				return series, nil
			}
		}
	}

	// 2. Live source, bounded by the fetch timeout
	if p.live != nil {
		series, err := p.fetchLive(ctx, fund, from, to)
		if err == nil {
			p.persist(fund, series)
			return series, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.live.Name(), err))
		p.log.Warn().Err(err).Str("fund", fund.Name).Msg("Live fetch failed, falling back to backup data")
	}

	// 3. Backups in order
	for _, src := range p.backups {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		series, err := src.FetchHistory(ctx, fund, from, to)
		if err == nil {
			series, _ = p.validator.Sanitize(series)
		}
		if err == nil && series.Len() == 0 {
			err = ErrNoSnapshot
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if series.Source == "" || series.Source == domain.SourceLive {
			series.Source = domain.SourceBackup
		}
		p.log.Warn().
			Str("fund", fund.Name).
			Str("source", src.Name()).
			Int("points", series.Len()).
			Msg("Using backup data")
		return series, nil
	}

	// 4. Expired cache entry, if allowed
	if p.cfg.ServeStale && p.cache != nil {
		var stale domain.PriceSeries
		if ok, err := p.cache.Get(clientdata.TablePriceHistory, fund.Name, &stale); err == nil && ok {
			if series := stale.Window(from, to); series.Len() > 0 {
				series.Source = domain.SourceCache
				p.log.Warn().Str("fund", fund.Name).Msg("Serving expired cache entry")
				return series, nil
			}
		}
	}

	return domain.PriceSeries{}, &domain.DataUnavailableError{
		Fund: fund.Name,
		Msg:  "no live, cached or backup data",
		Err:  errors.Join(errs...),
	}
}

func (p *Provider) fetchLive(ctx context.Context, fund domain.Fund, from, to time.Time) (domain.PriceSeries, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.LiveTimeout)
	defer cancel()

	series, err := p.live.FetchHistory(fetchCtx, fund, from, to)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	series, _ = p.validator.Sanitize(series)
	if series.Len() == 0 {
		return domain.PriceSeries{}, errors.New("empty result")
	}
	series.Fund = fund.Name
	series.Source = domain.SourceLive
	return series, nil
}

// persist writes a complete live series to the cache and the local snapshot.
func (p *Provider) persist(fund domain.Fund, series domain.PriceSeries) {
	if p.cache != nil {
		if err := p.cache.Store(clientdata.TablePriceHistory, fund.Name, series, p.cfg.CacheTTL); err != nil {
			p.log.Warn().Err(err).Str("fund", fund.Name).Msg("Failed to cache price history")
		}
	}
	if p.snapshots != nil {
		if err := p.snapshots.Save(fund, series); err != nil {
			p.log.Warn().Err(err).Str("fund", fund.Name).Msg("Failed to refresh backup snapshot")
		}
	}
}

// GetMetadata returns configured metadata completed from the cache or the live source.
// Metadata is display-only, so lookup failures fall back to the configured values.
func (p *Provider) GetMetadata(ctx context.Context, fund domain.Fund) domain.FundMetadata {
	var configured domain.FundMetadata
	if fund.Metadata != nil {
		configured = *fund.Metadata
	}

	if p.cache != nil {
		var cached domain.FundMetadata
		if ok, err := p.cache.GetIfFresh(clientdata.TableFundMetadata, fund.Name, &cached); err == nil && ok {
			return configured.Merge(cached)
		}
	}

	src, ok := p.live.(domain.MetadataSource)
	if !ok {
		return configured
	}
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.LiveTimeout)
	defer cancel()

	live, err := src.FetchMetadata(fetchCtx, fund)
	if err != nil {
		p.log.Debug().Err(err).Str("fund", fund.Name).Msg("Live metadata unavailable")
		return configured
	}
	if p.cache != nil {
		if err := p.cache.Store(clientdata.TableFundMetadata, fund.Name, live, clientdata.TTLFundMetadata); err != nil {
			p.log.Warn().Err(err).Str("fund", fund.Name).Msg("Failed to cache fund metadata")
		}
	}
	return configured.Merge(live)
}
