package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	coreapp "stubindex/internal/core/app"
	"stubindex/internal/core/config"
	"stubindex/internal/core/ports"
	"stubindex/internal/data/history"
	"stubindex/internal/engine/index"
	"stubindex/internal/engine/stub"
	"stubindex/internal/shared/observability"
)

// Run executes the CLI and returns the process exit code.
func Run(args []string) int {
	return run(args, os.Stdout, coreAppFactory{})
}

func run(args []string, stdout io.Writer, factory appFactory) int {
	opts, err := parseOptions(args)
	if err != nil {
		return 2
	}

	if opts.version {
		fmt.Fprintf(stdout, "stubindex v%s\n", versionString)
		return 0
	}

	cleanupLogs := configureLogging(opts.ui, opts.verbose)
	defer cleanupLogs()

	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to detect working directory", "error", err)
		return 1
	}

	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	if err := applyModeOptions(&opts, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.Enabled && cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracing(ctx, cfg.Observability.ServiceName, cfg.Observability.OTLPEndpoint)
		if err != nil {
			slog.Error("failed to initialize tracing", "error", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	app, err := factory.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return 1
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			slog.Warn("failed to close app", "error", err)
		}
	}()

	if cfg.Observability.Enabled && cfg.Observability.EnableMetrics {
		server := NewObservabilityServer(fmt.Sprintf(":%d", cfg.Observability.Port), app)
		if err := server.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "error", err)
			return 1
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(stopCtx)
		}()
	}

	if opts.queryMode() && !opts.once {
		return runQueryCommand(ctx, stdout, app, opts)
	}

	started := time.Now()
	result, err := app.IndexPaths(ctx, ports.ScanRequest{})
	if err != nil {
		slog.Error("index run failed", "error", err)
		return 1
	}
	if err := app.Flush(ctx); err != nil {
		slog.Error("failed to flush index writes", "error", err)
		return 1
	}

	if opts.queryMode() {
		return runQueryCommand(ctx, stdout, app, opts)
	}
	if !opts.ui {
		printScanSummary(stdout, result, time.Since(started))
	}

	if !opts.watch && !opts.ui {
		return 0
	}

	if cfgPath != "" {
		cfgWatcher := config.NewWatcher(cfgPath, app.ApplyConfig)
		if err := cfgWatcher.Start(ctx); err != nil {
			slog.Warn("config hot reload unavailable", "path", cfgPath, "error", err)
		} else {
			defer cfgWatcher.Stop()
		}
	}

	if err := app.StartWatcher(); err != nil {
		slog.Error("failed to start watcher", "error", err)
		return 1
	}

	if opts.ui {
		if err := runUI(app, result); err != nil {
			slog.Error("failed to run UI", "error", err)
			return 1
		}
		return 0
	}

	<-ctx.Done()
	slog.Info("shutting down")
	return 0
}

// indexApp is the part of the application the CLI drives.
type indexApp interface {
	ports.IndexService
	Flush(ctx context.Context) error
	StartWatcher() error
	ApplyConfig(cfg *config.Config)
	SetChangeHandler(fn func(ports.ScanResult))
	Health(ctx context.Context) coreapp.HealthStatus
	RecentRuns(ctx context.Context, limit int) ([]history.Run, error)
	Close(ctx context.Context) error
}

type appFactory interface {
	New(cfg *config.Config) (indexApp, error)
}

type coreAppFactory struct{}

func (coreAppFactory) New(cfg *config.Config) (indexApp, error) {
	a, err := coreapp.New(cfg)
	if err != nil {
		return nil, err
	}
	return tracedApp{App: a, svc: a.IndexService()}, nil
}

// tracedApp routes the index operations through the traced service and the
// rest straight to the App.
type tracedApp struct {
	*coreapp.App
	svc ports.IndexService
}

func (t tracedApp) IndexPaths(ctx context.Context, req ports.ScanRequest) (ports.ScanResult, error) {
	return t.svc.IndexPaths(ctx, req)
}

func (t tracedApp) HandleChanges(ctx context.Context, paths []string) error {
	return t.svc.HandleChanges(ctx, paths)
}

func (t tracedApp) Lookup(ctx context.Context, id index.ID, key string) ([]string, error) {
	return t.svc.Lookup(ctx, id, key)
}

func (t tracedApp) Keys(ctx context.Context, id index.ID, prefix string, limit int) ([]string, error) {
	return t.svc.Keys(ctx, id, prefix, limit)
}

func (t tracedApp) Summary(ctx context.Context, path string) (stub.FileHeader, error) {
	return t.svc.Summary(ctx, path)
}

func (t tracedApp) Dump(path string) ([]index.Occurrence, error) {
	return t.svc.Dump(path)
}

func runQueryCommand(ctx context.Context, out io.Writer, app indexApp, opts cliOptions) int {
	switch {
	case opts.query != "":
		id, key, err := parseIndexArg(opts.query, true)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return 1
		}
		files, err := app.Lookup(ctx, id, key)
		if err != nil {
			slog.Error("lookup failed", "index", id, "key", key, "error", err)
			return 1
		}
		printLines(out, fmt.Sprintf("%s[%s]", id, key), files)
	case opts.keys != "":
		id, prefix, err := parseIndexArg(opts.keys, false)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return 1
		}
		keys, err := app.Keys(ctx, id, prefix, opts.keysLimit)
		if err != nil {
			slog.Error("keys query failed", "index", id, "prefix", prefix, "error", err)
			return 1
		}
		printLines(out, fmt.Sprintf("%s keys", id), keys)
	case opts.summary != "":
		header, err := app.Summary(ctx, opts.summary)
		if err != nil {
			slog.Error("summary unavailable", "path", opts.summary, "error", err)
			return 1
		}
		printHeader(out, opts.summary, header)
	case opts.dump != "":
		occs, err := app.Dump(opts.dump)
		if err != nil && occs == nil {
			slog.Error("dump failed", "path", opts.dump, "error", err)
			return 1
		}
		printOccurrences(out, occs)
		if err != nil {
			slog.Warn("file has malformed stub subtrees", "path", opts.dump, "error", err)
			return 1
		}
	case opts.history > 0:
		runs, err := app.RecentRuns(ctx, opts.history)
		if err != nil {
			slog.Error("run history unavailable", "error", err)
			return 1
		}
		printRuns(out, runs)
	}
	return 0
}

// parseIndexArg splits "<INDEX>:<REST>". The rest is required for lookups and
// optional for key listings.
func parseIndexArg(raw string, requireKey bool) (index.ID, string, error) {
	name, rest, found := strings.Cut(raw, ":")
	id, ok := index.ParseID(name)
	if !ok {
		return 0, "", fmt.Errorf("unknown index %q", name)
	}
	if requireKey && (!found || rest == "") {
		return 0, "", fmt.Errorf("-query expects <INDEX>:<KEY>, got %q", raw)
	}
	return id, rest, nil
}

func applyModeOptions(opts *cliOptions, cfg *config.Config) error {
	if opts.once && (opts.watch || opts.ui) {
		return fmt.Errorf("-once cannot be combined with -watch or -ui")
	}

	modes := 0
	for _, set := range []bool{opts.query != "", opts.keys != "", opts.summary != "", opts.dump != "", opts.history > 0} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return fmt.Errorf("-query, -keys, -summary, -dump and -history are mutually exclusive")
	}
	if modes == 1 && (opts.watch || opts.ui) {
		return fmt.Errorf("query flags cannot be combined with -watch or -ui")
	}
	if opts.query != "" {
		if _, _, err := parseIndexArg(opts.query, true); err != nil {
			return err
		}
	}
	if opts.keys != "" {
		if _, _, err := parseIndexArg(opts.keys, false); err != nil {
			return err
		}
	}
	if opts.keysLimit < 0 {
		return fmt.Errorf("-keys-limit must not be negative")
	}
	if opts.history < 0 {
		return fmt.Errorf("-history must not be negative")
	}

	if len(opts.args) > 0 {
		cfg.WatchPaths = append([]string(nil), opts.args...)
	}
	return nil
}

// loadConfig loads path, or the first default location that exists. Without
// any config file the defaults are used and the returned path is empty.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if strings.TrimSpace(path) != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	candidates, err := discoverDefaultConfig(cwd)
	if err != nil {
		return nil, "", err
	}
	for _, candidate := range candidates {
		cfg, loadErr := config.Load(candidate)
		if loadErr == nil {
			return cfg, candidate, nil
		}
		if errors.Is(loadErr, os.ErrNotExist) {
			continue
		}
		return nil, "", loadErr
	}
	slog.Debug("no config file found, using defaults", "cwd", cwd)
	return config.Default(), "", nil
}

func discoverDefaultConfig(cwd string) ([]string, error) {
	if strings.TrimSpace(cwd) == "" {
		return nil, fmt.Errorf("cwd must not be empty")
	}
	return []string{
		filepath.Clean(filepath.Join(cwd, config.DefaultPath)),
		filepath.Clean(filepath.Join(cwd, "stubindex.toml")),
	}, nil
}

func configureLogging(uiMode, verbose bool) func() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	output := os.Stderr
	closeFn := func() {}
	if uiMode {
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else if fi, err := os.Lstat(logPath); err == nil && (fi.Mode()&os.ModeSymlink) != 0 {
			fmt.Fprintf(os.Stderr, "warning: refusing to write logs to symlink path %s\n", logPath)
		} else {
			f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
			if err == nil {
				output = f
				closeFn = func() { _ = f.Close() }
			} else {
				fmt.Fprintf(os.Stderr, "warning: failed to open log file %s: %v\n", logPath, err)
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return closeFn
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "stubindex", "stubindex.log")
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "stubindex", "stubindex.log")
	}
	return filepath.Join(os.TempDir(), "stubindex", "stubindex.log")
}
