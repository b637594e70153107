package di

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/clients/yahoo"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/advisor"
	"github.com/aristath/advisor/internal/modules/marketdata"
	"github.com/aristath/advisor/internal/modules/optimization"
	"github.com/aristath/advisor/internal/modules/scoring"
	"github.com/aristath/advisor/internal/modules/statistics"
	"github.com/aristath/advisor/internal/reliability"
)

// InitializeServices builds the price tiers and the advisor engine on top of the databases
func InitializeServices(ctx context.Context, container *Container, docs *config.Documents, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	cfg := container.Config
	container.Documents = docs

	// Live source
	container.YahooClient = yahoo.NewClient(log)

	// Backup tiers: local snapshots (optionally seeded by the operator), then the remote archive
	var seed fs.FS
	if cfg.SnapshotSeedDir != "" {
		seed = os.DirFS(cfg.SnapshotSeedDir)
		log.Warn().Str("dir", cfg.SnapshotSeedDir).Msg("Seed snapshots enabled; results priced from them carry warnings")
	}
	container.Snapshots = marketdata.NewSnapshotStore(cfg.SnapshotDir(), seed, log)
	backups := []domain.PriceSource{container.Snapshots}

	if cfg.Snapshots.Enabled() {
		store, err := reliability.NewS3Client(ctx, cfg.Snapshots, log)
		if err != nil {
			return fmt.Errorf("failed to create snapshot archive client: %w", err)
		}
		container.Archive = reliability.NewSnapshotArchive(store, "", log)
		backups = append(backups, container.Archive)
		log.Info().Str("bucket", cfg.Snapshots.Bucket).Msg("Snapshot archive enabled")
	}

	container.Prices = marketdata.NewProvider(marketdata.Config{
		LookbackYears: cfg.LookbackYears,
		CacheTTL:      cfg.CacheExpiry,
		LiveTimeout:   cfg.LiveFetchTimeout,
		ServeStale:    cfg.ServeStale,
	}, container.ClientData, container.YahooClient, backups, log)
	container.Prices.SetSnapshotWriter(container.Snapshots)

	container.Estimator = statistics.NewEstimator(docs.Estimation, log)
	container.Solver = optimization.NewSolver(log)
	if docs.Presets != nil {
		container.Solver.WithPresets(docs.Presets)
	}

	assessor, err := scoring.NewAssessor(docs.Questionnaire, docs.Profiles)
	if err != nil {
		return err
	}
	for m, ps := range docs.MethodProfiles {
		if err := assessor.AddMethod(m, ps); err != nil {
			return err
		}
	}
	if err := assessor.SetDefaultMethod(docs.ScoringMethod); err != nil {
		return err
	}
	container.Assessor = assessor

	container.Engine = advisor.NewEngine(advisor.Dependencies{
		Assessor:       assessor,
		Questionnaires: docs.Questionnaires,
		Universe:       docs.Universe,
		Params:         docs.Optimization,
		Prices:         container.Prices,
		Estimator:      container.Estimator,
		Solver:         container.Solver,
	}, log)

	log.Info().
		Int("funds", len(docs.Universe.Funds)).
		Int("profiles", len(docs.Profiles.Profiles)).
		Str("method", docs.Optimization.Method).
		Str("scoring_method", string(assessor.DefaultMethod())).
		Int("questionnaires", docs.Questionnaires.Len()).
		Int("backup_tiers", len(backups)).
		Msg("Advisor services initialized")
	return nil
}
