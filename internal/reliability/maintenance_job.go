package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/advisor/internal/database"
)

const (
	// criticalFreeBytes halts maintenance; the cache cannot safely grow
	criticalFreeBytes = 500 * 1024 * 1024
	// lowFreeBytes logs a warning
	lowFreeBytes = 5 * 1024 * 1024 * 1024
)

// usageFunc reports free bytes on the filesystem holding path
type usageFunc func(path string) (uint64, error)

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// CacheMaintenanceJob checks the price cache database and keeps its WAL small
type CacheMaintenanceJob struct {
	db      *database.DB
	dataDir string
	free    usageFunc
	log     zerolog.Logger
}

// NewCacheMaintenanceJob creates a new cache maintenance job
func NewCacheMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *CacheMaintenanceJob {
	return &CacheMaintenanceJob{
		db:      db,
		dataDir: dataDir,
		free:    diskFree,
		log:     log.With().Str("job", "cache_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *CacheMaintenanceJob) Name() string {
	return "cache_maintenance"
}

// Run executes the maintenance steps
func (j *CacheMaintenanceJob) Run() error {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Step 1: Integrity check
	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Str("database", j.db.Name()).Msg("Cache database failed health check")
		return err
	}

	// Step 2: WAL checkpoint (prevent bloat)
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		// not critical, the next autocheckpoint catches up
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	// Step 3: Disk space
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	event := j.log.Info().Dur("duration_ms", time.Since(startTime))
	if stats, err := j.db.GetStats(); err == nil {
		event = event.Int64("size_bytes", stats.SizeBytes).Int64("wal_size_bytes", stats.WALSizeBytes)
	}
	event.Msg("Cache maintenance completed")
	return nil
}

func (j *CacheMaintenanceJob) checkDiskSpace() error {
	free, err := j.free(j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Str("path", j.dataDir).Msg("Could not read disk usage")
		return nil
	}

	freeGB := float64(free) / 1e9
	switch {
	case free < criticalFreeBytes:
		j.log.Error().Float64("available_gb", freeGB).Msg("CRITICAL: Insufficient disk space for the price cache")
		return fmt.Errorf("only %.2f GB free in %s", freeGB, j.dataDir)
	case free < lowFreeBytes:
		j.log.Warn().Float64("available_gb", freeGB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("available_gb", freeGB).Msg("Disk space check")
	}
	return nil
}
