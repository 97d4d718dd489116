package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/raphaelgruber/clipvault/internal/db"
	"github.com/raphaelgruber/clipvault/internal/models"
)

// UploadInput describes one uploaded clip.
type UploadInput struct {
	OwnerID      string
	Title        string
	OriginalName string
	ContentType  string
	Body         io.Reader
}

// VideoService handles the lifecycle operations around ingestion runs.
type VideoService struct {
	store     VideoStore
	jobs      *JobManager
	uploadDir string
}

// NewVideoService creates a video service storing uploads under uploadDir.
func NewVideoService(store VideoStore, jobs *JobManager, uploadDir string) *VideoService {
	return &VideoService{store: store, jobs: jobs, uploadDir: uploadDir}
}

// Upload stores the clip, creates a pending record and schedules its run.
// It returns as soon as the record exists; processing happens in the background.
// Content is not inspected here: empty or unreadable files fail their run.
func (s *VideoService) Upload(ctx context.Context, in UploadInput) (*models.Video, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(s.uploadDir, id+uploadExt(in.OriginalName))
	size, err := writeUpload(path, in.Body)
	if err != nil {
		return nil, err
	}

	v := models.NewVideo(id, in.OwnerID, path, in.OriginalName, in.ContentType, size)
	v.Title = in.Title
	if v.Title == "" {
		v.Title = strings.TrimSuffix(in.OriginalName, filepath.Ext(in.OriginalName))
	}
	if err := s.store.CreateVideo(ctx, v); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("create video: %w", err)
	}

	slog.Info("video uploaded", "video_id", id, "user_id", in.OwnerID, "size", size)
	s.jobs.StartJob(id)
	return v, nil
}

func writeUpload(path string, body io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write upload: %w", err)
	}
	return n, nil
}

// uploadExt keeps a short, plain file extension from the client's file name.
func uploadExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 6 || strings.ContainsAny(ext, `/\ `) {
		return ".bin"
	}
	return ext
}

// Get returns one video or ErrVideoNotFound.
func (s *VideoService) Get(ctx context.Context, id string) (*models.Video, error) {
	v, err := s.store.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVideoNotFound
	}
	return v, nil
}

// List returns videos newest first. An empty owner lists every video.
func (s *VideoService) List(ctx context.Context, ownerID string) ([]models.Video, error) {
	return s.store.ListVideos(ctx, ownerID)
}

// busy reports whether a run may still write to the record.
func (s *VideoService) busy(v *models.Video) bool {
	return v.ProcessingStatus == models.StatusProcessing || s.jobs.IsActive(v.ID)
}

// Reject marks a video as rejected by an operator. Videos with an active run
// cannot be rejected.
func (s *VideoService) Reject(ctx context.Context, id, reason string) (*models.Video, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.busy(v) {
		return nil, ErrVideoBusy
	}
	if v.ProcessingStatus == models.StatusRejected {
		return nil, fmt.Errorf("%w: video is already rejected", ErrInvalidTransition)
	}

	updated, err := s.store.UpdateVideo(ctx, id, models.VideoPatch{
		ProcessingStatus: models.Ptr(models.StatusRejected),
		RejectReason:     models.Ptr(reason),
	})
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	slog.Info("video rejected", "video_id", id, "reason", reason)
	return updated, nil
}

// Reprocess resets a finished video to pending and schedules a fresh run.
func (s *VideoService) Reprocess(ctx context.Context, id string) (*models.Video, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.busy(v) {
		return nil, ErrVideoBusy
	}
	if !v.ProcessingStatus.Terminal() {
		return nil, fmt.Errorf("%w: %s video cannot be reprocessed", ErrInvalidTransition, v.ProcessingStatus)
	}

	updated, err := s.store.UpdateVideo(ctx, id, models.VideoPatch{
		ProcessingStatus:   models.Ptr(models.StatusPending),
		ProcessingProgress: models.Ptr(0),
		SensitivityStatus:  models.Ptr(models.SensitivityUnknown),
		SensitivityScore:   models.Ptr(0),
		RejectReason:       models.Ptr(""),
		ClearError:         true,
		ClearResults:       true,
	})
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	slog.Info("video queued for reprocessing", "video_id", id)
	s.jobs.StartJob(id)
	return updated, nil
}

// Delete removes a video record and its source file.
func (s *VideoService) Delete(ctx context.Context, id string) error {
	v, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.busy(v) {
		return ErrVideoBusy
	}

	if err := os.Remove(v.SourcePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove source: %w", err)
	}
	deleted, err := s.store.DeleteVideo(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrVideoNotFound
	}
	slog.Info("video deleted", "video_id", id)
	return nil
}

func (s *VideoService) mapStoreErr(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrVideoNotFound
	}
	return err
}
