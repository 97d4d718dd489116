package models

import "time"

// VideoPatch is a partial update of a Video. Nil fields are left unchanged.
type VideoPatch struct {
	ProcessingStatus   *ProcessingStatus
	ProcessingProgress *int
	Metadata           *VideoMetadata
	SensitivityStatus  *SensitivityStatus
	SensitivityScore   *int
	FrameSummary       *FrameSummary
	FrameResults       []FrameResult
	ProcessingError    *ProcessingError
	RejectReason       *string
	ProcessedAt        *time.Time

	// ClearError removes a previous processing error.
	ClearError bool
	// ClearResults drops the frame audit trail and processed-at timestamp.
	ClearResults bool
}

// Ptr returns a pointer to v. Convenience for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// Apply mutates v in place and bumps UpdatedAt.
func (p VideoPatch) Apply(v *Video, now time.Time) {
	if p.ProcessingStatus != nil {
		v.ProcessingStatus = *p.ProcessingStatus
	}
	if p.ProcessingProgress != nil {
		v.ProcessingProgress = *p.ProcessingProgress
	}
	if p.Metadata != nil {
		md := *p.Metadata
		v.Metadata = &md
	}
	if p.SensitivityStatus != nil {
		v.SensitivityStatus = *p.SensitivityStatus
	}
	if p.SensitivityScore != nil {
		v.SensitivityScore = *p.SensitivityScore
	}
	if p.ClearResults {
		v.FrameSummary = nil
		v.FrameResults = nil
		v.ProcessedAt = nil
	}
	if p.FrameSummary != nil {
		fs := *p.FrameSummary
		v.FrameSummary = &fs
	}
	if p.FrameResults != nil {
		v.FrameResults = append([]FrameResult(nil), p.FrameResults...)
	}
	if p.ClearError {
		v.ProcessingError = nil
	}
	if p.ProcessingError != nil {
		pe := *p.ProcessingError
		v.ProcessingError = &pe
	}
	if p.RejectReason != nil {
		v.RejectReason = *p.RejectReason
	}
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		v.ProcessedAt = &t
	}
	v.UpdatedAt = now
}

// Fields renders the patch as a document merge keyed by the JSON field names.
// Cleared fields map to nil.
func (p VideoPatch) Fields(now time.Time) map[string]any {
	fields := map[string]any{"updated_at": now}
	if p.ProcessingStatus != nil {
		fields["processing_status"] = string(*p.ProcessingStatus)
	}
	if p.ProcessingProgress != nil {
		fields["processing_progress"] = *p.ProcessingProgress
	}
	if p.Metadata != nil {
		fields["metadata"] = *p.Metadata
	}
	if p.SensitivityStatus != nil {
		fields["sensitivity_status"] = string(*p.SensitivityStatus)
	}
	if p.SensitivityScore != nil {
		fields["sensitivity_score"] = *p.SensitivityScore
	}
	if p.ClearResults {
		fields["frame_summary"] = nil
		fields["frame_results"] = nil
		fields["processed_at"] = nil
	}
	if p.FrameSummary != nil {
		fields["frame_summary"] = *p.FrameSummary
	}
	if p.FrameResults != nil {
		fields["frame_results"] = p.FrameResults
	}
	if p.ClearError {
		fields["processing_error"] = nil
	}
	if p.ProcessingError != nil {
		fields["processing_error"] = *p.ProcessingError
	}
	if p.RejectReason != nil {
		fields["reject_reason"] = *p.RejectReason
	}
	if p.ProcessedAt != nil {
		fields["processed_at"] = *p.ProcessedAt
	}
	return fields
}
