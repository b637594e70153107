package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/clientdata"
	"github.com/aristath/advisor/internal/modules/marketdata"
	"github.com/aristath/advisor/internal/reliability"
	"github.com/aristath/advisor/internal/scheduler"
)

// RegisterJobs creates the background jobs and schedules them.
// Returns JobInstances for manual triggering via API.
func RegisterJobs(container *Container, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Prices == nil {
		return nil, fmt.Errorf("container services must be initialized before jobs")
	}
	cfg := container.Config
	funds := container.Documents.Universe.Funds

	container.Scheduler = scheduler.New(log)
	instances := &JobInstances{
		CacheCleanup:     clientdata.NewCleanupJob(container.ClientData, log),
		WarmCache:        marketdata.NewWarmCacheJob(container.Prices, funds, log),
		CacheMaintenance: reliability.NewCacheMaintenanceJob(container.CacheDB, cfg.DataDir, log),
	}

	schedules := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.CacheCleanupSchedule, instances.CacheCleanup},
		{cfg.CacheWarmSchedule, instances.WarmCache},
		{cfg.MaintenanceSchedule, instances.CacheMaintenance},
	}

	if container.Archive != nil {
		instances.PublishSnapshots = reliability.NewPublishSnapshotsJob(container.Archive, container.Snapshots, funds, log)
		schedules = append(schedules, struct {
			schedule string
			job      scheduler.Job
		}{cfg.PublishSchedule, instances.PublishSnapshots})
	}

	for _, s := range schedules {
		if err := container.Scheduler.AddJob(s.schedule, s.job); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", s.job.Name(), err)
		}
	}

	log.Info().Int("jobs", len(schedules)).Msg("Background jobs registered")
	return instances, nil
}
