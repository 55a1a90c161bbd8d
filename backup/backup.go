// Package backup writes, lists, prunes, and restores notebook archives.
//
// Backups land in one of two places: the primary app-owned directory, or a
// user-chosen external folder. When the external folder is configured but
// unavailable, a backup falls back to primary storage and reports that as
// a distinct outcome instead of a hard failure. Each location keeps only
// the newest N archives.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vishaltelangre/nerdcalci/archive"
)

const (
	filePrefix = "nerdcalci_backup_"
	fileSuffix = ".zip"
	timeLayout = "2006-01-02-15-04-05"
)

// Status classifies a backup outcome.
type Status string

const (
	// StatusOK means the archive was written to the requested location.
	StatusOK Status = "ok"
	// StatusFallback means the external folder failed and the archive
	// went to primary storage instead.
	StatusFallback Status = "fallback"
	// StatusEmpty means there was nothing to back up; no file was
	// written and the last-backup timestamp did not move.
	StatusEmpty Status = "empty"
)

// Result describes one completed backup.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Count   int    `json:"count"`
	Path    string `json:"path,omitempty"`
}

// Info describes one existing backup file. It is recomputed from a
// directory listing, never persisted.
type Info struct {
	ID           string `json:"id"` // "<location>:<path>"
	DisplayName  string `json:"display_name"`
	LastModified int64  `json:"last_modified"`
	Location     string `json:"location"` // "primary" or "external"
	Path         string `json:"path"`
}

// Source is the notebook side of the backup contract.
type Source interface {
	ExportAll(ctx context.Context) ([]archive.Document, error)
	ImportAll(ctx context.Context, docs []archive.Parsed) (int, error)
	LastBackupAt(ctx context.Context) (int64, error)
	SetLastBackupAt(ctx context.Context, unixMilli int64) error
}

// Manager performs backups against a Source.
type Manager struct {
	settings *Settings
	source   Source
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Manager.
func New(settings *Settings, source Source, logger *slog.Logger) *Manager {
	settings.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{settings: settings, source: source, logger: logger, now: time.Now}
}

// BackupNow writes an archive of every document to the configured
// location. External-folder failures fall back to primary storage.
// An empty notebook yields StatusEmpty and writes nothing.
func (m *Manager) BackupNow(ctx context.Context) (*Result, error) {
	docs, err := m.source.ExportAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export documents: %w", err)
	}
	if len(docs) == 0 {
		return &Result{Status: StatusEmpty, Message: "No files to back up"}, nil
	}

	res := &Result{Status: StatusOK, Count: len(docs)}
	dir := m.settings.Dir
	if m.settings.LocationMode == LocationExternal && m.settings.ExternalDir != "" {
		path, err := m.writeArchive(m.settings.ExternalDir, docs)
		if err == nil {
			res.Path = path
			res.Message = fmt.Sprintf("Backed up %d file(s)", len(docs))
			m.prune(m.settings.ExternalDir)
			return res, m.recordTimestamp(ctx)
		}
		m.logger.Warn("external backup failed, falling back to primary",
			"dir", m.settings.ExternalDir, "error", err)
		res.Status = StatusFallback
		res.Message = "External folder unavailable. Saved backup in primary storage instead."
	} else {
		res.Message = fmt.Sprintf("Backed up %d file(s)", len(docs))
	}

	path, err := m.writeArchive(dir, docs)
	if err != nil {
		return nil, err
	}
	res.Path = path
	m.prune(dir)
	return res, m.recordTimestamp(ctx)
}

func (m *Manager) recordTimestamp(ctx context.Context) error {
	return m.source.SetLastBackupAt(ctx, m.now().UnixMilli())
}

// writeArchive writes one archive file into dir and returns its path.
// A failure removes the partial file.
func (m *Manager) writeArchive(dir string, docs []archive.Document) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(dir, filePrefix+m.now().Format(timeLayout)+fileSuffix)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	if _, err := archive.Export(f, docs); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close backup: %w", err)
	}
	m.logger.Info("backup written", "path", path, "documents", len(docs))
	return path, nil
}

// prune deletes all but the newest KeepLatest archives in dir. Pruning
// failures are logged, never fatal.
func (m *Manager) prune(dir string) {
	infos := listDir(dir, m.locationFor(dir))
	for _, info := range infos[min(m.settings.KeepLatest, len(infos)):] {
		if err := os.Remove(info.Path); err != nil {
			m.logger.Warn("prune failed", "path", info.Path, "error", err)
			continue
		}
		m.logger.Info("old backup pruned", "path", info.Path)
	}
}

// ListBackups enumerates archives in the currently configured location,
// newest first.
func (m *Manager) ListBackups(ctx context.Context) ([]Info, error) {
	if m.settings.LocationMode == LocationExternal {
		if m.settings.ExternalDir == "" {
			return nil, nil
		}
		return listDir(m.settings.ExternalDir, LocationExternal), nil
	}
	return listDir(m.settings.Dir, LocationPrimary), nil
}

// Restore streams one backup archive back into the Source. Returns the
// number of documents imported.
func (m *Manager) Restore(ctx context.Context, info Info) (int, error) {
	f, err := os.Open(info.Path)
	if err != nil {
		return 0, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	docs, err := archive.Import(f)
	if err != nil {
		return 0, fmt.Errorf("read backup: %w", err)
	}
	count, err := m.source.ImportAll(ctx, docs)
	if err != nil {
		return count, fmt.Errorf("restore documents: %w", err)
	}
	m.logger.Info("backup restored", "path", info.Path, "documents", count)
	return count, nil
}

// FindBackup resolves an Info by its ID from the current listing.
func (m *Manager) FindBackup(ctx context.Context, id string) (*Info, error) {
	infos, err := m.ListBackups(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.ID == id {
			return &info, nil
		}
	}
	return nil, fmt.Errorf("backup %q not found", id)
}

func (m *Manager) locationFor(dir string) string {
	if dir == m.settings.ExternalDir && m.settings.ExternalDir != "" {
		return LocationExternal
	}
	return LocationPrimary
}

// listDir returns the backup archives in dir, newest first. A missing or
// unreadable directory yields an empty list.
func listDir(dir, location string) []Info {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		infos = append(infos, Info{
			ID:           location + ":" + path,
			DisplayName:  e.Name(),
			LastModified: fi.ModTime().UnixMilli(),
			Location:     location,
			Path:         path,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].LastModified != infos[j].LastModified {
			return infos[i].LastModified > infos[j].LastModified
		}
		// Timestamps in the name break modtime ties within one second.
		return infos[i].DisplayName > infos[j].DisplayName
	})
	return infos
}
