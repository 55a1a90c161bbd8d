package backup

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs automatic backups when the configured cadence has
// elapsed since the last successful one.
type Scheduler struct {
	manager       *Manager
	checkInterval time.Duration
	logger        *slog.Logger
}

// NewScheduler creates a backup scheduler. checkInterval controls how
// often the due check runs, not how often backups happen.
func NewScheduler(m *Manager, checkInterval time.Duration, logger *slog.Logger) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{manager: m, checkInterval: checkInterval, logger: logger}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled. One due
// check runs immediately on start so a long-stopped process catches up.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("backup scheduler: started",
		"check_interval", s.checkInterval,
		"frequency", s.manager.settings.Frequency)

	if err := s.check(ctx); err != nil {
		s.logger.Warn("backup scheduler: check failed", "error", err)
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backup scheduler: stopped")
			return
		case <-ticker.C:
			if err := s.check(ctx); err != nil {
				s.logger.Warn("backup scheduler: check failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) check(ctx context.Context) error {
	if !s.manager.settings.Enabled {
		return nil
	}
	last, err := s.manager.source.LastBackupAt(ctx)
	if err != nil {
		return err
	}
	due := time.UnixMilli(last).Add(s.manager.settings.Interval())
	if s.manager.now().Before(due) {
		return nil
	}
	res, err := s.manager.BackupNow(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("scheduled backup complete", "status", res.Status, "documents", res.Count)
	return nil
}
