// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/advisor/internal/clientdata"
	"github.com/aristath/advisor/internal/clients/yahoo"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/database"
	"github.com/aristath/advisor/internal/modules/advisor"
	"github.com/aristath/advisor/internal/modules/marketdata"
	"github.com/aristath/advisor/internal/modules/optimization"
	"github.com/aristath/advisor/internal/modules/scoring"
	"github.com/aristath/advisor/internal/modules/statistics"
	"github.com/aristath/advisor/internal/reliability"
	"github.com/aristath/advisor/internal/scheduler"
)

// Container holds every long-lived dependency of the service
type Container struct {
	Config    *config.Config
	Documents *config.Documents

	// Price cache (SQLite, WAL) and its expiry-aware repository
	CacheDB    *database.DB
	ClientData *clientdata.Repository

	// Price sources, in lookup order after the cache
	YahooClient *yahoo.Client
	Snapshots   *marketdata.SnapshotStore
	Archive     *reliability.SnapshotArchive // nil when no snapshot bucket is configured

	Prices    *marketdata.Provider
	Estimator *statistics.Estimator
	Solver    *optimization.Solver
	Assessor  *scoring.Assessor
	Engine    *advisor.Engine

	Scheduler *scheduler.Scheduler
}

// Close releases the databases
func (c *Container) Close() error {
	if c == nil || c.CacheDB == nil {
		return nil
	}
	return c.CacheDB.Close()
}

// JobInstances holds the registered jobs for manual triggering via API
type JobInstances struct {
	CacheCleanup     scheduler.Job
	WarmCache        scheduler.Job
	CacheMaintenance scheduler.Job
	PublishSnapshots scheduler.Job // nil without an archive
}

// All returns the registered jobs
func (j *JobInstances) All() []scheduler.Job {
	var jobs []scheduler.Job
	for _, job := range []scheduler.Job{j.CacheCleanup, j.WarmCache, j.CacheMaintenance, j.PublishSnapshots} {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
