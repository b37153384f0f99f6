package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const backupPrefix = "bookcore_"

// Backup writes a consistent copy of the database to dest.
func (db *DB) Backup(ctx context.Context, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup %s already exists", dest)
	}
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// CleanupBackups removes backups in dir older than retention and returns how
// many were deleted.
func (db *DB) CleanupBackups(dir string, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	deleted := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, file.Name())); err != nil {
				db.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

// BackupService periodically snapshots the database.
type BackupService struct {
	db        *DB
	dir       string
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewBackupService(db *DB, dir string, interval, retention time.Duration) *BackupService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &BackupService{db: db, dir: dir, interval: interval, retention: retention, now: time.Now}
}

// Start runs a backup after initialDelay and then every interval until ctx ends.
func (s *BackupService) Start(ctx context.Context, initialDelay time.Duration) {
	s.db.logger.Info().Str("dir", s.dir).Dur("interval", s.interval).Msg("Backup service started")

	select {
	case <-time.After(initialDelay):
		s.run(ctx)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *BackupService) run(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.db.logger.Error().Err(err).Msg("Scheduled backup failed")
	}
	deleted, err := s.db.CleanupBackups(s.dir, s.retention)
	if err != nil {
		s.db.logger.Error().Err(err).Msg("Backup cleanup failed")
	} else if deleted > 0 {
		s.db.logger.Info().Int("deleted", deleted).Msg("Cleaned up old backups")
	}
}

// PerformBackup writes one timestamped backup and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	dest := filepath.Join(s.dir, fmt.Sprintf("%s%s.db", backupPrefix, s.now().Format("20060102_150405")))
	s.db.logger.Info().Str("path", dest).Msg("Performing database backup")
	if err := s.db.Backup(ctx, dest); err != nil {
		return "", err
	}
	s.db.logger.Info().Msg("Backup completed successfully")
	return dest, nil
}
