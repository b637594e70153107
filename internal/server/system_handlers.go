package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/aristath/advisor/internal/clientdata"
	"github.com/aristath/advisor/internal/database"
	"github.com/aristath/advisor/internal/scheduler"
)

// CacheStats reports entry counts of the client data cache
type CacheStats interface {
	Stats() (map[string]clientdata.TableStats, error)
}

// JobRunner lists scheduled jobs and runs them on demand
type JobRunner interface {
	Jobs() []scheduler.JobStatus
	RunNow(job scheduler.Job) error
}

// SystemHandlers handles system monitoring and manual job triggers
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	cacheDB   *database.DB
	cache     CacheStats
	runner    JobRunner
	jobs      map[string]scheduler.Job
	startedAt time.Time
}

// NewSystemHandlers creates system handlers; cacheDB, cache and runner may be nil
func NewSystemHandlers(log zerolog.Logger, dataDir string, cacheDB *database.DB, cache CacheStats, runner JobRunner) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		cacheDB:   cacheDB,
		cache:     cache,
		runner:    runner,
		jobs:      make(map[string]scheduler.Job),
		startedAt: time.Now(),
	}
}

// SetJobs registers job instances for manual triggering via API
func (h *SystemHandlers) SetJobs(jobs ...scheduler.Job) {
	for _, job := range jobs {
		if job != nil {
			h.jobs[job.Name()] = job
		}
	}
}

// ProcessInfo is resource usage of the running service
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	RSSMB      float64 `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// HostInfo is resource usage of the machine
type HostInfo struct {
	Hostname      string  `json:"hostname,omitempty"`
	Platform      string  `json:"platform,omitempty"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string                           `json:"status"` // "healthy" or "degraded"
	StartedAt     time.Time                        `json:"started_at"`
	UptimeSeconds int64                            `json:"uptime_seconds"`
	GoVersion     string                           `json:"go_version"`
	Process       ProcessInfo                      `json:"process"`
	Host          HostInfo                         `json:"host"`
	Cache         map[string]clientdata.TableStats `json:"cache,omitempty"`
	Database      *database.Stats                  `json:"database,omitempty"`
	Jobs          []scheduler.JobStatus            `json:"jobs"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	SnapshotsMB float64 `json:"snapshots_mb"`
	CacheDBMB   float64 `json:"cache_db_mb"`
}

// GetSystemStatusSnapshot returns a snapshot of the current system status.
// Collection failures degrade the status instead of failing the call.
func (h *SystemHandlers) GetSystemStatusSnapshot() SystemStatusResponse {
	response := SystemStatusResponse{
		Status:        "healthy",
		StartedAt:     h.startedAt.UTC(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		GoVersion:     runtime.Version(),
		Process:       h.getProcessStats(),
		Host:          h.getHostStats(),
		Jobs:          []scheduler.JobStatus{},
	}

	if h.cache != nil {
		stats, err := h.cache.Stats()
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to get cache stats")
			response.Status = "degraded"
		} else {
			response.Cache = stats
		}
	}

	if h.cacheDB != nil {
		stats, err := h.cacheDB.GetStats()
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to get database stats")
			response.Status = "degraded"
		} else {
			response.Database = stats
		}
	}

	if h.runner != nil {
		response.Jobs = h.runner.Jobs()
		for _, j := range response.Jobs {
			if j.LastError != "" {
				response.Status = "degraded"
			}
		}
	}

	return response
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")
	h.writeJSON(w, http.StatusOK, h.GetSystemStatusSnapshot())
}

// HandleJobsStatus returns the state of every scheduled job
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.runner != nil {
		jobs = h.runner.Jobs()
	}

	triggerable := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		triggerable = append(triggerable, name)
	}
	sort.Strings(triggerable)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":        jobs,
		"triggerable": triggerable,
	})
}

// HandleTriggerJob runs a registered job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok || h.runner == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job " + name})
		return
	}

	if err := h.runner.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "failed", "job": name, "error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "job": name})
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	response := DiskUsageResponse{
		DataDirMB:   h.getDirSize(h.dataDir),
		SnapshotsMB: h.getDirSize(filepath.Join(h.dataDir, "snapshots")),
	}
	if h.cacheDB != nil {
		if info, err := os.Stat(h.cacheDB.Path()); err == nil {
			response.CacheDBMB = float64(info.Size()) / 1024 / 1024
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

func (h *SystemHandlers) getProcessStats() ProcessInfo {
	info := ProcessInfo{PID: int32(os.Getpid()), Goroutines: runtime.NumGoroutine()}

	p, err := process.NewProcess(info.PID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to inspect own process")
		return info
	}
	if memInfo, err := p.MemoryInfo(); err == nil {
		info.RSSMB = float64(memInfo.RSS) / 1024 / 1024
	}
	if pct, err := p.CPUPercent(); err == nil {
		info.CPUPercent = pct
	}
	return info
}

// getHostStats samples CPU over 100ms so the endpoint stays responsive
func (h *SystemHandlers) getHostStats() HostInfo {
	var info HostInfo

	if hi, err := host.Info(); err == nil {
		info.Hostname = hi.Hostname
		info.Platform = hi.Platform
		info.UptimeSeconds = hi.Uptime
	} else {
		h.log.Warn().Err(err).Msg("Failed to get host info")
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		info.CPUPercent = cpuPercent[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		info.MemoryPercent = memStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	return info
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
