// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/advisor/internal/reliability"
	"github.com/aristath/advisor/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the cache database and snapshots (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	CORSOrigins []string

	// Document overrides; empty means the embedded default
	QuestionnaireFile string
	ProfilesFile      string
	FundsFile         string
	OptimizationFile  string
	PresetsFile       string
	QuestionnairesDir string // Extra questionnaires served by id, layered over the embedded ones

	// Scoring method used when a request does not name one
	ScoringMethod        string
	SimpleProfilesFile   string
	WeightedProfilesFile string

	// Optional read-only directory of operator-supplied price snapshots.
	// Results priced from it carry a warning per fund.
	SnapshotSeedDir string

	CacheExpiry      time.Duration
	LiveFetchTimeout time.Duration
	LookbackYears    int
	ServeStale       bool

	CacheWarmSchedule    string
	CacheCleanupSchedule string
	PublishSchedule      string
	MaintenanceSchedule  string

	Snapshots reliability.S3Config
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ADVISOR_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSOrigins: utils.ParseCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		QuestionnaireFile: getEnv("QUESTIONNAIRE_FILE", ""),
		ProfilesFile:      getEnv("PROFILES_FILE", ""),
		FundsFile:         getEnv("FUNDS_FILE", ""),
		OptimizationFile:  getEnv("OPTIMIZATION_FILE", ""),
		PresetsFile:       getEnv("PRESETS_FILE", ""),
		QuestionnairesDir: getEnv("QUESTIONNAIRES_DIR", ""),

		ScoringMethod:        getEnv("SCORING_METHOD", "section"),
		SimpleProfilesFile:   getEnv("SIMPLE_PROFILES_FILE", ""),
		WeightedProfilesFile: getEnv("WEIGHTED_PROFILES_FILE", ""),

		SnapshotSeedDir: getEnv("SNAPSHOT_SEED_DIR", ""),

		CacheExpiry:      time.Duration(getEnvAsInt("CACHE_EXPIRY_DAYS", 7)) * 24 * time.Hour,
		LiveFetchTimeout: getEnvAsDuration("LIVE_FETCH_TIMEOUT", 20*time.Second),
		LookbackYears:    getEnvAsInt("LOOKBACK_YEARS", 3),
		ServeStale:       getEnvAsBool("SERVE_STALE_CACHE", true),

		CacheWarmSchedule:    getEnv("CACHE_WARM_SCHEDULE", "0 30 6 * * *"),
		CacheCleanupSchedule: getEnv("CACHE_CLEANUP_SCHEDULE", "0 0 3 * * *"),
		PublishSchedule:      getEnv("SNAPSHOT_PUBLISH_SCHEDULE", "0 0 7 * * 1"),
		MaintenanceSchedule:  getEnv("MAINTENANCE_SCHEDULE", "0 15 3 * * *"),

		Snapshots: reliability.S3Config{
			Bucket:    getEnv("SNAPSHOT_BUCKET", ""),
			Endpoint:  getEnv("SNAPSHOT_ENDPOINT", ""),
			Region:    getEnv("SNAPSHOT_REGION", ""),
			AccessKey: getEnv("SNAPSHOT_ACCESS_KEY", ""),
			SecretKey: getEnv("SNAPSHOT_SECRET_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SnapshotDir is where refreshed price snapshots are written
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.DataDir, "snapshots")
}

// CachePath is the price cache database file
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Validate checks ranges of numeric settings
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("PORT must be in 1-65535, got %d", c.Port)
	case c.CacheExpiry <= 0:
		return fmt.Errorf("CACHE_EXPIRY_DAYS must be positive")
	case c.LiveFetchTimeout <= 0:
		return fmt.Errorf("LIVE_FETCH_TIMEOUT must be positive")
	case c.LookbackYears < 1 || c.LookbackYears > 30:
		return fmt.Errorf("LOOKBACK_YEARS must be in 1-30, got %d", c.LookbackYears)
	}
	if c.Snapshots.AccessKey != "" && c.Snapshots.SecretKey == "" {
		return fmt.Errorf("SNAPSHOT_SECRET_KEY is required with SNAPSHOT_ACCESS_KEY")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("20s") or plain seconds ("20")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
