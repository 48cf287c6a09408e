package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where the CLI looks for its configuration.
const DefaultPath = "data/config/stubindex.toml"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	DB            Database      `toml:"db"`
	Index         Index         `toml:"index"`
	WatchPaths    []string      `toml:"watch_paths"`
	Exclude       Exclude       `toml:"exclude"`
	Watch         Watch         `toml:"watch"`
	WriteQueue    WriteQueue    `toml:"write_queue"`
	Caches        Caches        `toml:"caches"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
	DatabaseDir string `toml:"database_dir"`
}

type Database struct {
	Driver      string        `toml:"driver"`
	Path        string        `toml:"path"`
	DSN         string        `toml:"dsn"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
	ProjectKey  string        `toml:"project_key"`
}

type Index struct {
	Workers         int      `toml:"workers"`
	FailOnMalformed *bool    `toml:"fail_on_malformed"`
	Extensions      []string `toml:"extensions"`
	SkipUnchanged   *bool    `toml:"skip_unchanged"`
}

// DiscardMalformed reports whether a file with a malformed stub subtree is
// dropped entirely instead of keeping its well-formed occurrences.
func (i Index) DiscardMalformed() bool {
	return i.FailOnMalformed == nil || *i.FailOnMalformed
}

func (i Index) SkipsUnchanged() bool {
	return i.SkipUnchanged == nil || *i.SkipUnchanged
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
	// Rate caps re-index batches per second; zero disables throttling.
	Rate float64 `toml:"rate"`
}

type WriteQueue struct {
	Enabled              *bool         `toml:"enabled"`
	MemoryCapacity       int           `toml:"memory_capacity"`
	BatchSize            int           `toml:"batch_size"`
	FlushInterval        time.Duration `toml:"flush_interval"`
	ShutdownDrainTimeout time.Duration `toml:"shutdown_drain_timeout"`
	// Persistent spills overflow and failed batches to a SQLite spool at
	// SpoolPath (relative to paths.state_dir).
	Persistent     *bool         `toml:"persistent"`
	SpoolPath      string        `toml:"spool_path"`
	RetryBaseDelay time.Duration `toml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `toml:"retry_max_delay"`
	MaxAttempts    int           `toml:"max_attempts"`
	SyncFallback   *bool         `toml:"sync_fallback"`
}

func (q WriteQueue) IsEnabled() bool {
	return q.Enabled == nil || *q.Enabled
}

func (q WriteQueue) PersistentEnabled() bool {
	return q.Persistent != nil && *q.Persistent
}

func (q WriteQueue) SyncFallbackEnabled() bool {
	return q.SyncFallback == nil || *q.SyncFallback
}

type Caches struct {
	Lookups int `toml:"lookups"`
}

// History keeps a summary row per index run in a SQLite file at Path
// (relative to paths.state_dir).
type History struct {
	Enabled *bool  `toml:"enabled"`
	Path    string `toml:"path"`
}

func (h History) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Port          int    `toml:"port"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	EnableTracing bool   `toml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics"`
	ServiceName   string `toml:"service_name"`
}

// Load reads, defaults and validates a configuration file. Environment
// overrides are applied between defaulting and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateDatabase(&cfg); err != nil {
		return nil, err
	}
	if err := validateIndex(&cfg); err != nil {
		return nil, err
	}
	if err := validateWriteQueue(&cfg); err != nil {
		return nil, err
	}
	if err := validateObservability(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	ApplyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data/state"
	}
	if strings.TrimSpace(cfg.Paths.DatabaseDir) == "" {
		cfg.Paths.DatabaseDir = "data/database"
	}

	if strings.TrimSpace(cfg.DB.Driver) == "" {
		cfg.DB.Driver = DriverSQLite
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "stubindex.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}
	if strings.TrimSpace(cfg.DB.ProjectKey) == "" {
		cfg.DB.ProjectKey = "default"
	}

	if cfg.Index.Workers <= 0 {
		cfg.Index.Workers = 4
	}
	if len(cfg.Index.Extensions) == 0 {
		cfg.Index.Extensions = []string{".stub.json", ".java"}
	}

	if len(cfg.WatchPaths) == 0 {
		cfg.WatchPaths = []string{"."}
	}
	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{".git", "node_modules", "build", "target", "out"}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}

	if cfg.WriteQueue.MemoryCapacity <= 0 {
		cfg.WriteQueue.MemoryCapacity = 1024
	}
	if cfg.WriteQueue.BatchSize <= 0 {
		cfg.WriteQueue.BatchSize = 64
	}
	if cfg.WriteQueue.FlushInterval <= 0 {
		cfg.WriteQueue.FlushInterval = 200 * time.Millisecond
	}
	if cfg.WriteQueue.ShutdownDrainTimeout <= 0 {
		cfg.WriteQueue.ShutdownDrainTimeout = 5 * time.Second
	}
	if strings.TrimSpace(cfg.WriteQueue.SpoolPath) == "" {
		cfg.WriteQueue.SpoolPath = "write_spool.db"
	}
	if cfg.WriteQueue.RetryBaseDelay <= 0 {
		cfg.WriteQueue.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.WriteQueue.RetryMaxDelay <= 0 {
		cfg.WriteQueue.RetryMaxDelay = 30 * time.Second
	}
	if cfg.WriteQueue.MaxAttempts <= 0 {
		cfg.WriteQueue.MaxAttempts = 10
	}

	if cfg.Caches.Lookups <= 0 {
		cfg.Caches.Lookups = 4096
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "history.db"
	}

	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9464
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "stubindex"
	}
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	switch driver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return fmt.Errorf("db.path must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return fmt.Errorf("db.dsn must not be empty when db.driver=%s", DriverPostgres)
		}
	default:
		return fmt.Errorf("db.driver must be one of: %s, %s; got %q", DriverSQLite, DriverPostgres, cfg.DB.Driver)
	}
	cfg.DB.Driver = driver
	return nil
}

func validateIndex(cfg *Config) error {
	for i, ext := range cfg.Index.Extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" || !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("index.extensions[%d] must start with '.', got %q", i, ext)
		}
		cfg.Index.Extensions[i] = strings.ToLower(ext)
	}
	if cfg.Watch.Rate < 0 {
		return fmt.Errorf("watch.rate must not be negative")
	}
	return nil
}

func validateWriteQueue(cfg *Config) error {
	if cfg.WriteQueue.BatchSize > cfg.WriteQueue.MemoryCapacity {
		return fmt.Errorf("write_queue.batch_size (%d) must not exceed write_queue.memory_capacity (%d)",
			cfg.WriteQueue.BatchSize, cfg.WriteQueue.MemoryCapacity)
	}
	if cfg.WriteQueue.RetryBaseDelay > cfg.WriteQueue.RetryMaxDelay {
		return fmt.Errorf("write_queue.retry_base_delay (%s) must not exceed write_queue.retry_max_delay (%s)",
			cfg.WriteQueue.RetryBaseDelay, cfg.WriteQueue.RetryMaxDelay)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if !cfg.Observability.Enabled {
		return nil
	}
	if cfg.Observability.Port < 1 || cfg.Observability.Port > 65535 {
		return fmt.Errorf("observability.port must be between 1 and 65535, got %d", cfg.Observability.Port)
	}
	return nil
}
