package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agrox/internal/logging"
	"agrox/internal/model"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sqliteRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLiteRepository opens (or creates) the database at path and migrates
// the diagnosis table.
func NewSQLiteRepository(path string) (DiagnosisRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.AutoMigrate(&model.Diagnosis{}); err != nil {
		return nil, fmt.Errorf("failed to migrate diagnosis table: %w", err)
	}

	logging.For("repository").Info("Diagnosis history stored in SQLite", "path", path)
	return &sqliteRepository{db: db, now: time.Now}, nil
}

func (r *sqliteRepository) Create(ctx context.Context, d *model.Diagnosis) error {
	prepare(d, r.now)
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("failed to save diagnosis: %w", err)
	}
	return nil
}

func (r *sqliteRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Diagnosis, error) {
	var d model.Diagnosis
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get diagnosis: %w", err)
	}
	return &d, nil
}

func (r *sqliteRepository) ListRecent(ctx context.Context, limit, offset int) ([]model.Diagnosis, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	diagnoses := []model.Diagnosis{}
	if err := q.Find(&diagnoses).Error; err != nil {
		return nil, fmt.Errorf("failed to list diagnoses: %w", err)
	}
	return diagnoses, nil
}

func (r *sqliteRepository) CountByDisease(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		DiseaseID string
		N         int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Diagnosis{}).
		Select("disease_id, count(*) AS n").
		Group("disease_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count diagnoses: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.DiseaseID] = row.N
	}
	return counts, nil
}

func (r *sqliteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormWriter routes gorm's printf-style logging to slog.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	logging.For("repository").Warn(fmt.Sprintf(format, args...))
}

func newGormLogger() logger.Interface {
	return logger.New(gormWriter{}, logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
