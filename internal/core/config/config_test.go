package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stubindex.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
watch_paths = ["./src"]

[db]
driver = "sqlite"
path = "idx.db"
project_key = "demo"

[index]
workers = 2
fail_on_malformed = false
extensions = [".JAVA"]

[exclude]
dirs = [".git"]
files = ["*.gen.java"]

[watch]
debounce = "1s"
rate = 2.5

[write_queue]
batch_size = 8
flush_interval = "50ms"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.WatchPaths) != 1 || cfg.WatchPaths[0] != "./src" {
		t.Errorf("Unexpected WatchPaths: %v", cfg.WatchPaths)
	}
	if cfg.DB.Path != "idx.db" || cfg.DB.ProjectKey != "demo" {
		t.Errorf("Unexpected db config: %+v", cfg.DB)
	}
	if cfg.Index.Workers != 2 || cfg.Index.DiscardMalformed() {
		t.Errorf("Unexpected index config: %+v", cfg.Index)
	}
	if len(cfg.Index.Extensions) != 1 || cfg.Index.Extensions[0] != ".java" {
		t.Errorf("Expected normalized extensions, got %v", cfg.Index.Extensions)
	}
	if cfg.Watch.Debounce != time.Second || cfg.Watch.Rate != 2.5 {
		t.Errorf("Unexpected watch config: %+v", cfg.Watch)
	}
	if cfg.WriteQueue.BatchSize != 8 || cfg.WriteQueue.FlushInterval != 50*time.Millisecond {
		t.Errorf("Unexpected write queue config: %+v", cfg.WriteQueue)
	}
	if !cfg.WriteQueue.IsEnabled() {
		t.Error("write queue defaults to enabled")
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse("")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.DB.Driver != DriverSQLite || cfg.DB.Path != "stubindex.db" || cfg.DB.BusyTimeout != 5*time.Second {
		t.Errorf("Unexpected db defaults: %+v", cfg.DB)
	}
	if !cfg.Index.DiscardMalformed() || !cfg.Index.SkipsUnchanged() {
		t.Error("malformed files are discarded and unchanged files skipped by default")
	}
	if got := strings.Join(cfg.Index.Extensions, ","); got != ".stub.json,.java" {
		t.Errorf("Unexpected default extensions %q", got)
	}
	if cfg.WriteQueue.PersistentEnabled() || !cfg.WriteQueue.SyncFallbackEnabled() {
		t.Error("spool is opt-in and sync fallback is on by default")
	}
	if cfg.WriteQueue.SpoolPath != "write_spool.db" || cfg.WriteQueue.MaxAttempts != 10 {
		t.Errorf("Unexpected write queue defaults: %+v", cfg.WriteQueue)
	}
	if cfg.Caches.Lookups != 4096 || cfg.Observability.ServiceName != "stubindex" {
		t.Errorf("Unexpected defaults: caches=%d service=%q", cfg.Caches.Lookups, cfg.Observability.ServiceName)
	}
	if !cfg.History.IsEnabled() || cfg.History.Path != "history.db" {
		t.Errorf("Unexpected history defaults: %+v", cfg.History)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown driver":      "[db]\ndriver = \"mysql\"\n",
		"pgx without dsn":     "[db]\ndriver = \"pgx\"\n",
		"bad extension":       "[index]\nextensions = [\"java\"]\n",
		"negative rate":       "[watch]\nrate = -1.0\n",
		"batch over capacity": "[write_queue]\nmemory_capacity = 4\nbatch_size = 8\n",
		"bad port":            "[observability]\nenabled = true\nport = 70000\n",
		"future version":      "version = 2\n",
		"retry delays":        "[write_queue]\nretry_base_delay = \"1m\"\nretry_max_delay = \"1s\"\n",
		"broken toml":         "[db\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STUBINDEX_DB_DRIVER", "pgx")
	t.Setenv("STUBINDEX_DB_DSN", "postgres://localhost/stubs")
	t.Setenv("STUBINDEX_INDEX_FAIL_ON_MALFORMED", "false")
	t.Setenv("STUBINDEX_WATCH_DEBOUNCE", "2s")
	t.Setenv("STUBINDEX_INDEX_WORKERS", "not-a-number")
	t.Setenv("STUBINDEX_HISTORY_ENABLED", "false")

	cfg, err := Parse("")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.DB.Driver != DriverPostgres || cfg.DB.DSN != "postgres://localhost/stubs" {
		t.Errorf("Unexpected db config: %+v", cfg.DB)
	}
	if cfg.Index.DiscardMalformed() {
		t.Error("expected env to disable fail_on_malformed")
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("Unexpected debounce %v", cfg.Watch.Debounce)
	}
	if cfg.Index.Workers != 4 {
		t.Errorf("invalid int override must be ignored, got %d", cfg.Index.Workers)
	}
	if cfg.History.IsEnabled() {
		t.Error("expected env to disable run history")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("STUBINDEX_DB_PROJECT_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STUBINDEX_DB_PROJECT_KEY", "")
	os.Unsetenv("STUBINDEX_DB_PROJECT_KEY")

	if err := LoadDotEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	cfg := Default()
	if cfg.DB.ProjectKey != "from-dotenv" {
		t.Fatalf("expected project key from .env, got %q", cfg.DB.ProjectKey)
	}
}
