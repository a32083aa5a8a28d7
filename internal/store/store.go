// Package store is the persistent model record store: one row per registered
// model carrying its artifact location, serve configuration blob, and download
// status. Live process state is never persisted here.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vllmd/pkg/types"
)

// modelRow is the gorm entity backing a model record.
type modelRow struct {
	ID             int64  `gorm:"primaryKey"`
	Name           string `gorm:"uniqueIndex"`
	SourceID       string
	Path           string
	Type           string `gorm:"default:text-generation"`
	Config         datatypes.JSON
	DownloadStatus string `gorm:"default:not_downloaded"`
	SizeGB         float64
}

func (modelRow) TableName() string { return "models" }

type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&modelRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

func toRecord(row modelRow) types.ModelRecord {
	rec := types.ModelRecord{
		ID:             row.ID,
		Name:           row.Name,
		SourceID:       row.SourceID,
		Path:           row.Path,
		Type:           types.ModelType(row.Type),
		Config:         types.DefaultServeConfig(),
		DownloadStatus: types.DownloadStatus(row.DownloadStatus),
		SizeGB:         row.SizeGB,
	}
	if len(row.Config) > 0 {
		// An unreadable blob falls back to defaults rather than failing reads.
		_ = json.Unmarshal(row.Config, &rec.Config)
	}
	return rec
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id int64) (types.ModelRecord, error) {
	var row modelRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return types.ModelRecord{}, err
	}
	return toRecord(row), nil
}

// List returns all records ordered by id.
func (s *Store) List(ctx context.Context) ([]types.ModelRecord, error) {
	var rows []modelRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.ModelRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRecord(row))
	}
	return out, nil
}

// Count returns the number of registered models.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&modelRow{}).Count(&n).Error
	return n, err
}

// Create registers a model for acquisition. The name is derived from the last
// path segment of sourceID, matching how pulled models are laid out on disk.
func (s *Store) Create(ctx context.Context, sourceID string) (types.ModelRecord, error) {
	name := sourceID
	if i := strings.LastIndex(sourceID, "/"); i >= 0 {
		name = sourceID[i+1:]
	}
	cfg, _ := json.Marshal(types.DefaultServeConfig())
	row := modelRow{
		Name:           name,
		SourceID:       sourceID,
		Type:           string(types.TypeText),
		Config:         cfg,
		DownloadStatus: string(types.DownloadNone),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return types.ModelRecord{}, err
	}
	return toRecord(row), nil
}

// NameExists reports whether a model with the given name is registered.
func (s *Store) NameExists(ctx context.Context, name string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&modelRow{}).Where("name = ?", name).Count(&n).Error
	return n > 0, err
}

// Delete removes the record for id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&modelRow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateConfig replaces the serve configuration blob for id.
func (s *Store) UpdateConfig(ctx context.Context, id int64, cfg types.ServeConfig) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.update(ctx, id, map[string]any{"config": datatypes.JSON(blob)})
}

// SetDownloadStatus transitions the artifact acquisition state.
func (s *Store) SetDownloadStatus(ctx context.Context, id int64, st types.DownloadStatus) error {
	return s.update(ctx, id, map[string]any{"download_status": string(st)})
}

// SetArtifact commits a completed acquisition: path, size, detected type.
func (s *Store) SetArtifact(ctx context.Context, id int64, path string, sizeGB float64, typ types.ModelType) error {
	return s.update(ctx, id, map[string]any{
		"path":            path,
		"size_gb":         sizeGB,
		"type":            string(typ),
		"download_status": string(types.DownloadCompleted),
	})
}

func (s *Store) update(ctx context.Context, id int64, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&modelRow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
