// Package service runs the video ingestion pipeline and the video lifecycle operations around it.
package service

import (
	"context"

	"github.com/raphaelgruber/clipvault/internal/media"
	"github.com/raphaelgruber/clipvault/internal/models"
	"github.com/raphaelgruber/clipvault/internal/notify"
)

// VideoStore persists video records. GetVideo returns nil, nil for unknown ids.
type VideoStore interface {
	CreateVideo(ctx context.Context, v *models.Video) error
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	UpdateVideo(ctx context.Context, id string, patch models.VideoPatch) (*models.Video, error)
	ListVideos(ctx context.Context, ownerID string) ([]models.Video, error)
	ListVideosByStatus(ctx context.Context, statuses ...models.ProcessingStatus) ([]models.Video, error)
	DeleteVideo(ctx context.Context, id string) (bool, error)
}

// FrameSampler reads clip metadata and captures stills.
type FrameSampler interface {
	CheckSource(sourcePath string) error
	Probe(ctx context.Context, sourcePath string) (*models.VideoMetadata, error)
	Sample(ctx context.Context, sourcePath, outputDir string, duration float64, frameCount int) ([]media.Frame, error)
}

// FrameClassifier judges one still image.
type FrameClassifier interface {
	Classify(ctx context.Context, imagePath string) (models.Verdict, error)
}

// Publisher delivers progress events to a user. Delivery is best effort.
type Publisher interface {
	Publish(userID string, ev notify.Event) error
}
