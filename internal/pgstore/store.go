// Package pgstore is the PostgreSQL video store, built on gorm.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/raphaelgruber/clipvault/internal/db"
	"github.com/raphaelgruber/clipvault/internal/metrics"
	"github.com/raphaelgruber/clipvault/internal/models"
)

// videoRow is the videos table. Nested audit fields are stored as JSON columns.
type videoRow struct {
	ID           string `gorm:"primaryKey;type:varchar(64)"`
	OwnerID      string `gorm:"index;type:varchar(128);not null"`
	Title        string `gorm:"type:varchar(255)"`
	SourcePath   string `gorm:"type:varchar(1024);not null"`
	OriginalName string `gorm:"type:varchar(255)"`
	ContentType  string `gorm:"type:varchar(128)"`
	Size         int64

	ProcessingStatus   string `gorm:"index;type:varchar(16);not null"`
	ProcessingProgress int
	Metadata           *models.VideoMetadata `gorm:"serializer:json"`

	SensitivityStatus string                  `gorm:"type:varchar(16);not null"`
	SensitivityScore  int
	FrameSummary      *models.FrameSummary    `gorm:"serializer:json"`
	FrameResults      []models.FrameResult    `gorm:"serializer:json"`
	ProcessingError   *models.ProcessingError `gorm:"serializer:json"`
	RejectReason      string

	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

func (videoRow) TableName() string { return "videos" }

func fromModel(v *models.Video) videoRow {
	return videoRow{
		ID:                 v.ID,
		OwnerID:            v.OwnerID,
		Title:              v.Title,
		SourcePath:         v.SourcePath,
		OriginalName:       v.OriginalName,
		ContentType:        v.ContentType,
		Size:               v.Size,
		ProcessingStatus:   string(v.ProcessingStatus),
		ProcessingProgress: v.ProcessingProgress,
		Metadata:           v.Metadata,
		SensitivityStatus:  string(v.SensitivityStatus),
		SensitivityScore:   v.SensitivityScore,
		FrameSummary:       v.FrameSummary,
		FrameResults:       v.FrameResults,
		ProcessingError:    v.ProcessingError,
		RejectReason:       v.RejectReason,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
		ProcessedAt:        v.ProcessedAt,
	}
}

func (r videoRow) toModel() *models.Video {
	return &models.Video{
		ID:                 r.ID,
		OwnerID:            r.OwnerID,
		Title:              r.Title,
		SourcePath:         r.SourcePath,
		OriginalName:       r.OriginalName,
		ContentType:        r.ContentType,
		Size:               r.Size,
		ProcessingStatus:   models.ProcessingStatus(r.ProcessingStatus),
		ProcessingProgress: r.ProcessingProgress,
		Metadata:           r.Metadata,
		SensitivityStatus:  models.SensitivityStatus(r.SensitivityStatus),
		SensitivityScore:   r.SensitivityScore,
		FrameSummary:       r.FrameSummary,
		FrameResults:       r.FrameResults,
		ProcessingError:    r.ProcessingError,
		RejectReason:       r.RejectReason,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		ProcessedAt:        r.ProcessedAt,
	}
}

// Store implements the video store on PostgreSQL.
type Store struct {
	db      *gorm.DB
	metrics *metrics.Collector
}

// Open connects to PostgreSQL and migrates the videos table.
func Open(dsn string) (*Store, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := New(gdb)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an open gorm handle.
func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// SetMetrics enables store query timing.
func (s *Store) SetMetrics(m *metrics.Collector) {
	s.metrics = m
}

// Migrate creates or updates the videos table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&videoRow{}); err != nil {
		return fmt.Errorf("migrate videos: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) observe(start time.Time, errp *error) {
	s.metrics.RecordTiming(metrics.OpStoreQuery, time.Since(start), *errp != nil)
}

// CreateVideo inserts a new row. Returns db.ErrAlreadyExists if the id is taken.
func (s *Store) CreateVideo(ctx context.Context, v *models.Video) (err error) {
	defer s.observe(time.Now(), &err)

	row := fromModel(v)
	if err = s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("create video %s: %w", v.ID, db.ErrAlreadyExists)
		}
		return fmt.Errorf("create video: %w", err)
	}
	return nil
}

// GetVideo retrieves a video by id. Returns nil if not found.
func (s *Store) GetVideo(ctx context.Context, id string) (_ *models.Video, err error) {
	defer s.observe(time.Now(), &err)

	var row videoRow
	err = s.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return row.toModel(), nil
}

// UpdateVideo applies patch under a row lock and returns the new state.
func (s *Store) UpdateVideo(ctx context.Context, id string, patch models.VideoPatch) (_ *models.Video, err error) {
	defer s.observe(time.Now(), &err)

	var updated *models.Video
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row videoRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&row, "id = ?", id).Error; err != nil {
			return err
		}
		v := row.toModel()
		patch.Apply(v, time.Now().UTC())
		next := fromModel(v)
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		updated = v
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("update video %s: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update video: %w", err)
	}
	return updated, nil
}

// ListVideos returns videos newest first, optionally restricted to one owner.
func (s *Store) ListVideos(ctx context.Context, ownerID string) (_ []models.Video, err error) {
	defer s.observe(time.Now(), &err)

	q := s.db.WithContext(ctx).Order("created_at DESC")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var rows []videoRow
	if err = q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return toModels(rows), nil
}

// ListVideosByStatus returns videos in any of the given states, oldest first.
func (s *Store) ListVideosByStatus(ctx context.Context, statuses ...models.ProcessingStatus) (_ []models.Video, err error) {
	defer s.observe(time.Now(), &err)

	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	var rows []videoRow
	if err = s.db.WithContext(ctx).
		Where("processing_status IN ?", values).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list videos by status: %w", err)
	}
	return toModels(rows), nil
}

// DeleteVideo removes a row. Returns false if it did not exist.
func (s *Store) DeleteVideo(ctx context.Context, id string) (_ bool, err error) {
	defer s.observe(time.Now(), &err)

	res := s.db.WithContext(ctx).Delete(&videoRow{}, "id = ?", id)
	if err = res.Error; err != nil {
		return false, fmt.Errorf("delete video: %w", err)
	}
	return res.RowsAffected > 0, nil
}

func toModels(rows []videoRow) []models.Video {
	videos := make([]models.Video, 0, len(rows))
	for _, r := range rows {
		videos = append(videos, *r.toModel())
	}
	return videos
}
