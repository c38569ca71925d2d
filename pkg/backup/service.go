// Package backup writes compressed JSON snapshots of the shop tables and
// restores them.
package backup

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	dir     string
	auditor repository.Auditor
	logger  *zap.Logger
	nowFunc func() time.Time
}

func NewService(db *gorm.DB, dir string, auditor repository.Auditor, logger *zap.Logger) *Service {
	if auditor == nil {
		auditor = repository.NopAuditor{}
	}
	return &Service{
		db:      db,
		dir:     dir,
		auditor: auditor,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Create snapshots every business table into a new file under the backups
// directory and records it.
func (s *Service) Create(ctx context.Context, note string) (*models.Backup, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backups dir: %w", err)
	}
	now := s.nowFunc().UTC()
	id := uuid.NewString()

	var snap *Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		snap, err = takeSnapshot(tx, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("backup_%s_%s.json.gz", now.Format("20060102T150405"), id[:8])
	size, err := writeSnapshot(filepath.Join(s.dir, name), snap)
	if err != nil {
		return nil, err
	}

	b := &models.Backup{
		ID:        id,
		Filename:  name,
		SizeBytes: size,
		Note:      note,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		_ = os.Remove(filepath.Join(s.dir, name))
		return nil, fmt.Errorf("failed to record backup: %w", err)
	}
	s.logger.Info("backup created", zap.String("id", id), zap.String("file", name), zap.Int64("bytes", size))
	s.audit(ctx, "backup.create", id, map[string]interface{}{"filename": name, "bytes": size})
	return b, nil
}

func (s *Service) List(ctx context.Context) ([]models.Backup, error) {
	var out []models.Backup
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Backup, error) {
	var b models.Backup
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if repository.IsNotFound(err) {
		return nil, apperr.NotFound("backup not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	return &b, nil
}

// Restore replaces the business tables with the backup's content in one
// transaction. It returns the restored row counts per table.
func (s *Service) Restore(ctx context.Context, id string) (map[string]int, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := readSnapshot(s.path(b))
	if err != nil {
		return nil, err
	}
	if snap.Version != snapshotVersion {
		return nil, apperr.Validation("unsupported backup version", map[string]string{"version": fmt.Sprint(snap.Version)})
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceAll(tx, snap)
	})
	if err != nil {
		return nil, err
	}
	counts := snap.Counts()
	s.logger.Info("backup restored", zap.String("id", id), zap.Any("rows", counts))
	s.audit(ctx, "backup.restore", id, map[string]interface{}{"filename": b.Filename})
	return counts, nil
}

// Delete removes the record and its file. A file already gone is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.remove(ctx, b); err != nil {
		return err
	}
	s.audit(ctx, "backup.delete", id, map[string]interface{}{"filename": b.Filename})
	return nil
}

// Retention deletes backups beyond the newest keepLast and those older than
// maxAgeDays. A zero value disables that rule; at least one must be set.
func (s *Service) Retention(ctx context.Context, keepLast, maxAgeDays int) ([]models.Backup, error) {
	if keepLast <= 0 && maxAgeDays <= 0 {
		return nil, apperr.Validation("keepLast or maxAgeDays is required", map[string]string{"keepLast": "required_without"})
	}
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.nowFunc().AddDate(0, 0, -maxAgeDays)

	removed := []models.Backup{}
	for i, b := range all {
		expired := maxAgeDays > 0 && b.CreatedAt.Before(cutoff)
		surplus := keepLast > 0 && i >= keepLast
		if !expired && !surplus {
			continue
		}
		if err := s.remove(ctx, &all[i]); err != nil {
			return removed, err
		}
		removed = append(removed, b)
	}
	if len(removed) > 0 {
		s.logger.Info("backup retention applied", zap.Int("removed", len(removed)))
	}
	return removed, nil
}

func (s *Service) remove(ctx context.Context, b *models.Backup) error {
	if err := os.Remove(s.path(b)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete backup file: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.Backup{}, "id = ?", b.ID).Error; err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	return nil
}

func (s *Service) path(b *models.Backup) string {
	return filepath.Join(s.dir, filepath.Base(b.Filename))
}

func (s *Service) audit(ctx context.Context, action, id string, data map[string]interface{}) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.auditor.Record(ctx, &repository.AuditEntry{
		Service:  "backup",
		Action:   action,
		EntityID: id,
		Actor:    "admin",
		Data:     data,
	})
	if err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func writeSnapshot(path string, snap *Snapshot) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create backup file: %w", err)
	}
	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		f.Close()
		_ = os.Remove(path)
		return 0, fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		_ = os.Remove(path)
		return 0, fmt.Errorf("failed to compress backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to write backup: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat backup: %w", err)
	}
	return info.Size(), nil
}

func readSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.NotFound("backup file is missing")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, apperr.Validation("backup file is corrupt", map[string]string{"file": "gzip"})
	}
	defer zr.Close()

	var snap Snapshot
	if err := json.NewDecoder(io.LimitReader(zr, 1<<30)).Decode(&snap); err != nil {
		return nil, apperr.Validation("backup file is corrupt", map[string]string{"file": "json"})
	}
	return &snap, nil
}
