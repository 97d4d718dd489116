package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/clipvault/internal/models"
)

// videoRecord is the stored shape of a video. The record id is table-qualified.
type videoRecord struct {
	ID           surrealmodels.RecordID `json:"id"`
	OwnerID      string                 `json:"owner_id"`
	Title        string                 `json:"title,omitempty"`
	SourcePath   string                 `json:"source_path"`
	OriginalName string                 `json:"original_name"`
	ContentType  string                 `json:"content_type"`
	Size         int64                  `json:"size"`

	ProcessingStatus   models.ProcessingStatus `json:"processing_status"`
	ProcessingProgress int                     `json:"processing_progress"`
	Metadata           *models.VideoMetadata   `json:"metadata,omitempty"`

	SensitivityStatus models.SensitivityStatus `json:"sensitivity_status"`
	SensitivityScore  int                      `json:"sensitivity_score"`
	FrameSummary      *models.FrameSummary     `json:"frame_summary,omitempty"`
	FrameResults      []models.FrameResult     `json:"frame_results,omitempty"`

	ProcessingError *models.ProcessingError `json:"processing_error,omitempty"`
	RejectReason    string                  `json:"reject_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// recordIDString extracts the string key from a SurrealDB record id.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected record id type: %T (expected string)", id.ID)
	}
	return s, nil
}

func (r videoRecord) toModel() (*models.Video, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return nil, err
	}
	return &models.Video{
		ID:                 id,
		OwnerID:            r.OwnerID,
		Title:              r.Title,
		SourcePath:         r.SourcePath,
		OriginalName:       r.OriginalName,
		ContentType:        r.ContentType,
		Size:               r.Size,
		ProcessingStatus:   r.ProcessingStatus,
		ProcessingProgress: r.ProcessingProgress,
		Metadata:           r.Metadata,
		SensitivityStatus:  r.SensitivityStatus,
		SensitivityScore:   r.SensitivityScore,
		FrameSummary:       r.FrameSummary,
		FrameResults:       r.FrameResults,
		ProcessingError:    r.ProcessingError,
		RejectReason:       r.RejectReason,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		ProcessedAt:        r.ProcessedAt,
	}, nil
}

func toModels(records []videoRecord) ([]models.Video, error) {
	videos := make([]models.Video, 0, len(records))
	for _, r := range records {
		v, err := r.toModel()
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, nil
}

// videoContent is the document written on create; the id lives in the record key.
func videoContent(v *models.Video) map[string]any {
	content := map[string]any{
		"owner_id":            v.OwnerID,
		"title":               v.Title,
		"source_path":         v.SourcePath,
		"original_name":       v.OriginalName,
		"content_type":        v.ContentType,
		"size":                v.Size,
		"processing_status":   string(v.ProcessingStatus),
		"processing_progress": v.ProcessingProgress,
		"sensitivity_status":  string(v.SensitivityStatus),
		"sensitivity_score":   v.SensitivityScore,
		"created_at":          v.CreatedAt,
		"updated_at":          v.UpdatedAt,
	}
	if v.Metadata != nil {
		content["metadata"] = *v.Metadata
	}
	return content
}

// CreateVideo inserts a new record. Returns ErrAlreadyExists if the id is taken.
func (c *Client) CreateVideo(ctx context.Context, v *models.Video) (err error) {
	defer c.observe(time.Now(), &err)

	_, err = surrealdb.Query[[]videoRecord](ctx, c.db, `
		CREATE type::record("video", $id) CONTENT $content
	`, map[string]any{"id": v.ID, "content": videoContent(v)})
	if err != nil {
		return fmt.Errorf("create video: %w", wrapQueryError(err))
	}
	return nil
}

// GetVideo retrieves a video by id. Returns nil if not found.
func (c *Client) GetVideo(ctx context.Context, id string) (_ *models.Video, err error) {
	defer c.observe(time.Now(), &err)

	results, err := surrealdb.Query[[]videoRecord](ctx, c.db, `
		SELECT * FROM type::record("video", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return (*results)[0].Result[0].toModel()
}

// UpdateVideo merges patch into an existing record and returns the new state.
// Returns ErrNotFound if the record does not exist.
func (c *Client) UpdateVideo(ctx context.Context, id string, patch models.VideoPatch) (_ *models.Video, err error) {
	defer c.observe(time.Now(), &err)

	results, err := surrealdb.Query[[]videoRecord](ctx, c.db, `
		UPDATE type::record("video", $id) MERGE $fields RETURN AFTER
	`, map[string]any{"id": id, "fields": patch.Fields(time.Now().UTC())})
	if err != nil {
		return nil, fmt.Errorf("update video: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("update video %s: %w", id, ErrNotFound)
	}
	return (*results)[0].Result[0].toModel()
}

// ListVideos returns videos newest first, optionally restricted to one owner.
func (c *Client) ListVideos(ctx context.Context, ownerID string) (_ []models.Video, err error) {
	defer c.observe(time.Now(), &err)

	sql := `SELECT * FROM video ORDER BY created_at DESC`
	vars := map[string]any{}
	if ownerID != "" {
		sql = `SELECT * FROM video WHERE owner_id = $owner ORDER BY created_at DESC`
		vars["owner"] = ownerID
	}

	results, err := surrealdb.Query[[]videoRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Video{}, nil
	}
	return toModels((*results)[0].Result)
}

// ListVideosByStatus returns videos in any of the given states, oldest first.
func (c *Client) ListVideosByStatus(ctx context.Context, statuses ...models.ProcessingStatus) (_ []models.Video, err error) {
	defer c.observe(time.Now(), &err)

	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	results, err := surrealdb.Query[[]videoRecord](ctx, c.db, `
		SELECT * FROM video WHERE processing_status IN $statuses ORDER BY created_at ASC
	`, map[string]any{"statuses": values})
	if err != nil {
		return nil, fmt.Errorf("list videos by status: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Video{}, nil
	}
	return toModels((*results)[0].Result)
}

// DeleteVideo removes a record. Returns false if it did not exist.
func (c *Client) DeleteVideo(ctx context.Context, id string) (_ bool, err error) {
	defer c.observe(time.Now(), &err)

	results, err := surrealdb.Query[[]videoRecord](ctx, c.db, `
		DELETE type::record("video", $id) RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("delete video: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return false, nil
	}
	return len((*results)[0].Result) > 0, nil
}
