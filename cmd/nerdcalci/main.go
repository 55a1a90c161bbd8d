// Command nerdcalci runs the calculation notebook.
//
// Usage:
//
//	nerdcalci -config nerdcalci.yaml          # daemon with config file
//	nerdcalci -db nerdcalci.db -addr :8080    # HTTP daemon with defaults
//	nerdcalci -db nerdcalci.db -mcp           # MCP server on stdio
//	nerdcalci -db nerdcalci.db -export all.zip
//	nerdcalci -db nerdcalci.db -import all.zip
//	nerdcalci -db nerdcalci.db -backup
//	nerdcalci -db nerdcalci.db -list-backups
//	nerdcalci -db nerdcalci.db -restore <backup-id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/vishaltelangre/nerdcalci/archive"
	"github.com/vishaltelangre/nerdcalci/backup"
	"github.com/vishaltelangre/nerdcalci/httpapi"
	"github.com/vishaltelangre/nerdcalci/notebook"
	"github.com/vishaltelangre/nerdcalci/watch"
)

// appConfig is the combined YAML config for all subsystems.
type appConfig struct {
	Addr     string          `yaml:"addr"`
	Notebook notebook.Config `yaml:"notebook"`
	Backup   backup.Settings `yaml:"backup"`
}

func main() {
	configPath := flag.String("config", "", "path to nerdcalci.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database")
	addr := flag.String("addr", "", "HTTP listen address (daemon mode)")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio")
	exportPath := flag.String("export", "", "export all documents to a zip file and exit")
	importPath := flag.String("import", "", "import documents from a zip file and exit")
	backupNow := flag.Bool("backup", false, "run a backup and exit")
	listBackups := flag.Bool("list-backups", false, "list backups and exit")
	restoreID := flag.String("restore", "", "restore from a backup ID and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		addr:        *addr,
		mcpStdio:    *mcpStdio,
		exportPath:  *exportPath,
		importPath:  *importPath,
		backupNow:   *backupNow,
		listBackups: *listBackups,
		restoreID:   *restoreID,
	}
	if err := run(ctx, logger, *configPath, *dbPath, opts); err != nil {
		logger.Error("nerdcalci: fatal", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	addr        string
	mcpStdio    bool
	exportPath  string
	importPath  string
	backupNow   bool
	listBackups bool
	restoreID   string
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath string, opts runOptions) error {
	cfg, err := resolveConfig(configPath, dbPath)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}

	nb, err := notebook.New(&cfg.Notebook, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer nb.Close()

	backups := backup.New(&cfg.Backup, nb, logger)

	// One-shot commands print JSON to stdout and exit.
	switch {
	case opts.exportPath != "":
		return exportTo(ctx, nb, opts.exportPath)
	case opts.importPath != "":
		return importFrom(ctx, nb, opts.importPath)
	case opts.backupNow:
		res, err := backups.BackupNow(ctx)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		return printJSON(res)
	case opts.listBackups:
		infos, err := backups.ListBackups(ctx)
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}
		return printJSON(infos)
	case opts.restoreID != "":
		info, err := backups.FindBackup(ctx, opts.restoreID)
		if err != nil {
			return err
		}
		count, err := backups.Restore(ctx, *info)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		return printJSON(map[string]any{"restored": count})
	}

	// MCP on stdio: tools only, no HTTP.
	if opts.mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{
			Name:    "nerdcalci",
			Version: "1.0.0",
		}, nil)
		nb.RegisterMCP(srv)
		backups.RegisterMCP(srv)
		logger.Info("nerdcalci: MCP serving on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	// Daemon mode: change notifier, backup scheduler, HTTP API.
	notifier := watch.NewNotifier(nb.DB().DB, watch.Options{
		Interval: 500 * time.Millisecond,
		Debounce: 250 * time.Millisecond,
		Detector: watch.DocumentActivity,
		Logger:   logger,
	})
	go notifier.Run(ctx)
	go backup.NewScheduler(backups, 15*time.Minute, logger).Run(ctx)

	api := httpapi.New(nb, backups, notifier, logger)
	httpSrv := &http.Server{Addr: cfg.Addr, Handler: api.Router()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("nerdcalci: HTTP serving", "addr", cfg.Addr, "db", cfg.Notebook.DBPath)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	logger.Info("nerdcalci: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func resolveConfig(configPath, dbPath string) (*appConfig, error) {
	cfg := &appConfig{}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if dbPath != "" {
		cfg.Notebook.DBPath = dbPath
	}
	if cfg.Notebook.DBPath == "" {
		fmt.Fprintln(os.Stderr, "usage: nerdcalci -config <file> | -db <path> [-addr :8080] [-mcp] [-export <zip>] [-import <zip>] [-backup] [-list-backups] [-restore <id>]")
		os.Exit(1)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return cfg, nil
}

func exportTo(ctx context.Context, nb *notebook.Notebook, path string) error {
	docs, err := nb.ExportAll(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents to export")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	count, err := archive.Export(f, docs)
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return printJSON(map[string]any{"exported": count, "path": path})
}

func importFrom(ctx context.Context, nb *notebook.Notebook, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	docs, err := archive.Import(f)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	count, err := nb.ImportAll(ctx, docs)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return printJSON(map[string]any{"imported": count})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
