package db

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/clipvault/internal/models"
)

func TestWrapQueryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate", &surrealdb.QueryError{Message: "Database record `video:abc` already exists"}, ErrAlreadyExists},
		{"conflict", &surrealdb.QueryError{Message: "Transaction conflict: resource busy"}, ErrTransactionConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, wrapQueryError(tt.err), tt.want)
		})
	}

	plain := errors.New("socket closed")
	assert.Equal(t, plain, wrapQueryError(plain))
	assert.NoError(t, wrapQueryError(nil))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(ErrNotFound))
	assert.False(t, Retryable(ErrAlreadyExists))
	assert.True(t, Retryable(ErrTransactionConflict))
	assert.True(t, Retryable(errors.New("connection reset")))
}

func TestRecordToModel(t *testing.T) {
	rec := videoRecord{
		ID:               surrealmodels.RecordID{Table: "video", ID: "v1"},
		OwnerID:          "u1",
		ProcessingStatus: models.StatusCompleted,
	}
	v, err := rec.toModel()
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
	assert.Equal(t, "u1", v.OwnerID)

	_, err = videoRecord{ID: surrealmodels.RecordID{Table: "video", ID: 42}}.toModel()
	assert.Error(t, err)
}

func TestVideoContentOmitsID(t *testing.T) {
	v := models.NewVideo("v1", "u1", "/uploads/v1.mp4", "clip.mp4", "video/mp4", 4096)
	content := videoContent(v)
	assert.NotContains(t, content, "id")
	assert.Equal(t, "pending", content["processing_status"])
	assert.Equal(t, "unknown", content["sensitivity_status"])
}

func TestVideoLifecycle(t *testing.T) {
	client, ctx := integration(t)

	id := uuid.NewString()
	v := models.NewVideo(id, "owner-"+id, "/uploads/"+id+".mp4", "clip.mp4", "video/mp4", 4096)
	require.NoError(t, client.CreateVideo(ctx, v))
	t.Cleanup(func() { _, _ = client.DeleteVideo(ctx, id) })

	err := client.CreateVideo(ctx, v)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := client.GetVideo(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusPending, got.ProcessingStatus)
	assert.Equal(t, models.SensitivityUnknown, got.SensitivityStatus)

	updated, err := client.UpdateVideo(ctx, id, models.VideoPatch{
		ProcessingStatus:   models.Ptr(models.StatusProcessing),
		ProcessingProgress: models.Ptr(20),
		Metadata:           &models.VideoMetadata{Duration: 2, Width: 640, Height: 480, Codec: "h264"},
	})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.ProcessingProgress)
	require.NotNil(t, updated.Metadata)
	assert.Equal(t, 640, updated.Metadata.Width)

	updated, err = client.UpdateVideo(ctx, id, models.VideoPatch{
		ProcessingStatus: models.Ptr(models.StatusFailed),
		ProcessingError:  &models.ProcessingError{Message: "friendly", Internal: "raw"},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.ProcessingError)
	assert.Equal(t, "friendly", updated.ProcessingError.Message)

	updated, err = client.UpdateVideo(ctx, id, models.VideoPatch{
		ProcessingStatus: models.Ptr(models.StatusPending),
		ClearError:       true,
		ClearResults:     true,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.ProcessingError)

	pending, err := client.ListVideosByStatus(ctx, models.StatusPending, models.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, containsVideo(pending, id))

	owned, err := client.ListVideos(ctx, "owner-"+id)
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	deleted, err := client.DeleteVideo(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	gone, err := client.GetVideo(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = client.UpdateVideo(ctx, id, models.VideoPatch{ProcessingProgress: models.Ptr(50)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func containsVideo(videos []models.Video, id string) bool {
	for _, v := range videos {
		if v.ID == id {
			return true
		}
	}
	return false
}
