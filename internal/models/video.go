// Package models defines the data structures shared by the clipvault stores and services.
package models

import "time"

// ProcessingStatus is the lifecycle state of a video's ingestion run.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
	// StatusRejected is only set by an administrative override, never by the pipeline.
	StatusRejected ProcessingStatus = "rejected"
)

// Terminal reports whether no further pipeline-driven transition follows.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRejected
}

// SensitivityStatus is the video-level safety disposition.
type SensitivityStatus string

const (
	SensitivityUnknown SensitivityStatus = "unknown"
	SensitivitySafe    SensitivityStatus = "safe"
	SensitivityFlagged SensitivityStatus = "flagged"
)

// Verdict is a single frame's classification.
type Verdict string

const (
	VerdictSafe    Verdict = "SAFE"
	VerdictFlagged Verdict = "FLAGGED"
	// VerdictError marks a frame the classifier could not judge.
	VerdictError Verdict = "ERROR"
)

// VideoMetadata holds the technical properties reported by the prober.
type VideoMetadata struct {
	Duration  float64 `json:"duration"` // seconds
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Codec     string  `json:"codec"`
	FrameRate float64 `json:"frame_rate"`
	Bitrate   int64   `json:"bitrate"`
	Format    string  `json:"format"`
}

// FrameResult is the audit record for one sampled frame.
type FrameResult struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Verdict   Verdict `json:"verdict"`
	Error     string  `json:"error,omitempty"`
}

// FrameSummary counts per-frame verdicts. Total always equals Flagged+Safe+Errored.
type FrameSummary struct {
	Flagged int `json:"flagged"`
	Safe    int `json:"safe"`
	Errored int `json:"errored"`
	Total   int `json:"total"`
}

// ProcessingError carries the two failure messages of a failed run.
type ProcessingError struct {
	// Message is safe to show to the uploader.
	Message string `json:"message"`
	// Internal is the raw diagnostic for operators and is never exposed over the API.
	Internal string `json:"internal"`
}

// Video is the persisted job record for one uploaded clip.
type Video struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	Title        string `json:"title,omitempty"`
	SourcePath   string `json:"source_path"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`

	ProcessingStatus   ProcessingStatus `json:"processing_status"`
	ProcessingProgress int              `json:"processing_progress"`

	Metadata *VideoMetadata `json:"metadata,omitempty"`

	SensitivityStatus SensitivityStatus `json:"sensitivity_status"`
	SensitivityScore  int               `json:"sensitivity_score"`
	FrameSummary      *FrameSummary     `json:"frame_summary,omitempty"`
	FrameResults      []FrameResult     `json:"frame_results,omitempty"`

	ProcessingError *ProcessingError `json:"processing_error,omitempty"`
	RejectReason    string           `json:"reject_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// NewVideo returns a pending record with the default disposition.
func NewVideo(id, ownerID, sourcePath, originalName, contentType string, size int64) *Video {
	now := time.Now().UTC()
	return &Video{
		ID:                id,
		OwnerID:           ownerID,
		SourcePath:        sourcePath,
		OriginalName:      originalName,
		ContentType:       contentType,
		Size:              size,
		ProcessingStatus:  StatusPending,
		SensitivityStatus: SensitivityUnknown,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
