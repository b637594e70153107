package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/domain"
)

// publishTimeout bounds one publish run
const publishTimeout = 5 * time.Minute

// SnapshotLoader reads a fund's local snapshot
type SnapshotLoader interface {
	Load(fund domain.Fund) (domain.PriceSeries, error)
}

// PublishSnapshotsJob copies the local snapshots to the archive and writes a manifest
type PublishSnapshotsJob struct {
	archive *SnapshotArchive
	local   SnapshotLoader
	funds   []domain.Fund
	log     zerolog.Logger
}

// NewPublishSnapshotsJob creates a snapshot publish job
func NewPublishSnapshotsJob(archive *SnapshotArchive, local SnapshotLoader, funds []domain.Fund, log zerolog.Logger) *PublishSnapshotsJob {
	return &PublishSnapshotsJob{
		archive: archive,
		local:   local,
		funds:   funds,
		log:     log.With().Str("job", "publish_snapshots").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *PublishSnapshotsJob) Name() string {
	return "publish_snapshots"
}

// Run uploads every available snapshot. A fund without a local snapshot is
// skipped; the run fails only if nothing could be published.
func (j *PublishSnapshotsJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return j.publish(ctx)
}

func (j *PublishSnapshotsJob) publish(ctx context.Context) error {
	j.log.Info().Int("funds", len(j.funds)).Msg("Publishing snapshots")
	startTime := time.Now()

	published := make([]SnapshotInfo, 0, len(j.funds))
	var failed int
	for _, fund := range j.funds {
		series, err := j.local.Load(fund)
		if err != nil {
			j.log.Warn().Err(err).Str("fund", fund.Name).Msg("No local snapshot to publish")
			failed++
			continue
		}
		info, err := j.archive.Upload(ctx, fund, series)
		if err != nil {
			j.log.Error().Err(err).Str("fund", fund.Name).Msg("Failed to archive snapshot")
			failed++
			continue
		}
		published = append(published, info)
	}

	if len(published) == 0 {
		return fmt.Errorf("no snapshots published (%d failed)", failed)
	}
	if err := j.archive.WriteManifest(ctx, published); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	j.log.Info().
		Int("published", len(published)).
		Int("failed", failed).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Snapshot publish completed")
	return nil
}
