package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// BackupService snapshots the database on an interval. Snapshots use
// VACUUM INTO, which is consistent under WAL without blocking writers.
type BackupService struct {
	db            *DB
	storagePath   string
	interval      time.Duration
	retentionDays int
	logger        *zerolog.Logger
}

// NewBackupService creates a backup service. interval <= 0 defaults to 24h.
func NewBackupService(db *DB, storagePath string, interval time.Duration, retentionDays int, logger *zerolog.Logger) *BackupService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &BackupService{
		db:            db,
		storagePath:   storagePath,
		interval:      interval,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Start runs the backup loop until ctx is canceled. The first snapshot is
// taken immediately.
func (s *BackupService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.Snapshot(ctx); err != nil && s.logger != nil {
		s.logger.Error().Err(err).Msg("initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Snapshot(ctx); err != nil && s.logger != nil {
				s.logger.Error().Err(err).Msg("scheduled backup failed")
			}
			s.cleanup()
		}
	}
}

// Snapshot writes one timestamped backup file.
func (s *BackupService) Snapshot(ctx context.Context) error {
	if err := os.MkdirAll(s.storagePath, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("backup_%s.db", time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(s.storagePath, name)

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}

	if s.logger != nil {
		s.logger.Info().Str("path", path).Msg("database backup written")
	}
	return nil
}

func (s *BackupService) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	entries, err := os.ReadDir(s.storagePath)
	if err != nil {
		if s.logger != nil {
			s.logger.Error().Err(err).Msg("read backup directory")
		}
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if s.logger != nil {
				s.logger.Info().Str("file", entry.Name()).Msg("deleting expired backup")
			}
			os.Remove(filepath.Join(s.storagePath, entry.Name()))
		}
	}
}
