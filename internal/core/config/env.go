package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "STUBINDEX_"

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none)
// without overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: STUBINDEX_[SECTION]_[KEY] (e.g., STUBINDEX_DB_DSN).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, envPrefix+"PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, envPrefix+"PATHS_STATE_DIR")
	setEnvString(&cfg.Paths.DatabaseDir, envPrefix+"PATHS_DATABASE_DIR")

	// Database
	setEnvString(&cfg.DB.Driver, envPrefix+"DB_DRIVER")
	setEnvString(&cfg.DB.Path, envPrefix+"DB_PATH")
	setEnvString(&cfg.DB.DSN, envPrefix+"DB_DSN")
	setEnvDuration(&cfg.DB.BusyTimeout, envPrefix+"DB_BUSY_TIMEOUT")
	setEnvString(&cfg.DB.ProjectKey, envPrefix+"DB_PROJECT_KEY")

	// Index
	setEnvInt(&cfg.Index.Workers, envPrefix+"INDEX_WORKERS")
	setEnvBoolPtr(&cfg.Index.FailOnMalformed, envPrefix+"INDEX_FAIL_ON_MALFORMED")
	setEnvBoolPtr(&cfg.Index.SkipUnchanged, envPrefix+"INDEX_SKIP_UNCHANGED")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, envPrefix+"WATCH_DEBOUNCE")
	setEnvFloat64(&cfg.Watch.Rate, envPrefix+"WATCH_RATE")

	// Write queue
	setEnvBoolPtr(&cfg.WriteQueue.Enabled, envPrefix+"WRITE_QUEUE_ENABLED")
	setEnvInt(&cfg.WriteQueue.BatchSize, envPrefix+"WRITE_QUEUE_BATCH_SIZE")
	setEnvBoolPtr(&cfg.WriteQueue.Persistent, envPrefix+"WRITE_QUEUE_PERSISTENT")
	setEnvString(&cfg.WriteQueue.SpoolPath, envPrefix+"WRITE_QUEUE_SPOOL_PATH")
	setEnvBoolPtr(&cfg.WriteQueue.SyncFallback, envPrefix+"WRITE_QUEUE_SYNC_FALLBACK")

	// Caches
	setEnvInt(&cfg.Caches.Lookups, envPrefix+"CACHES_LOOKUPS")

	// History
	setEnvBoolPtr(&cfg.History.Enabled, envPrefix+"HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, envPrefix+"HISTORY_PATH")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, envPrefix+"OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, envPrefix+"OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, envPrefix+"OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, envPrefix+"OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, envPrefix+"OBSERVABILITY_ENABLE_METRICS")
}

func logOverride(key, val string) {
	if strings.HasSuffix(key, "_DSN") {
		val = "<redacted>"
	}
	slog.Info("applying env override", "key", key, "value", val)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		logOverride(key, val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			logOverride(key, val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			logOverride(key, val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			logOverride(key, val)
			*target = &b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			logOverride(key, val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			logOverride(key, val)
			*target = d
		}
	}
}
