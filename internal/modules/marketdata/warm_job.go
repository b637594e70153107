package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/domain"
)

// WarmCacheJob refreshes the price cache for the whole universe ahead of requests.
type WarmCacheJob struct {
	provider *Provider
	funds    []domain.Fund
	log      zerolog.Logger
}

// NewWarmCacheJob creates a cache warm job.
func NewWarmCacheJob(provider *Provider, funds []domain.Fund, log zerolog.Logger) *WarmCacheJob {
	return &WarmCacheJob{
		provider: provider,
		funds:    funds,
		log:      log.With().Str("job", "price_cache_warm").Logger(),
	}
}

// Name returns the job name for scheduling and logging.
func (j *WarmCacheJob) Name() string {
	return "price_cache_warm"
}

// Run warms the cache, bounded by one live timeout per fund.
func (j *WarmCacheJob) Run() error {
	budget := time.Duration(len(j.funds)+1) * j.provider.Config().LiveTimeout
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	start := time.Now()
	res, err := j.provider.Warm(ctx, j.funds)
	if err != nil {
		j.log.Error().Err(err).Strs("missing", res.Missing).Msg("Cache warm failed")
		return err
	}

	event := j.log.Info()
	if len(res.Missing) > 0 {
		event = j.log.Warn().Strs("missing", res.Missing)
	}
	event.
		Int("funds", res.Funds).
		Int("live", res.Live).
		Int("cached", res.Cached).
		Int("backup", res.Backup).
		Dur("duration", time.Since(start)).
		Msg("Price cache warmed")
	return nil
}
