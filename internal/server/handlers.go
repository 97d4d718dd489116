package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/clipvault/internal/metrics"
	"github.com/raphaelgruber/clipvault/internal/models"
	"github.com/raphaelgruber/clipvault/internal/service"
)

// VideoResponse is the public view of a video. Internal diagnostics and
// server paths are never included.
type VideoResponse struct {
	ID                 string                   `json:"id"`
	OwnerID            string                   `json:"owner_id"`
	Title              string                   `json:"title,omitempty"`
	OriginalName       string                   `json:"original_name"`
	ContentType        string                   `json:"content_type"`
	Size               int64                    `json:"size"`
	ProcessingStatus   models.ProcessingStatus  `json:"processing_status"`
	ProcessingProgress int                      `json:"processing_progress"`
	Metadata           *models.VideoMetadata    `json:"metadata,omitempty"`
	SensitivityStatus  models.SensitivityStatus `json:"sensitivity_status"`
	SensitivityScore   int                      `json:"sensitivity_score"`
	FrameSummary       *models.FrameSummary     `json:"frame_summary,omitempty"`
	FrameResults       []models.FrameResult     `json:"frame_results,omitempty"`
	Error              string                   `json:"error,omitempty"`
	RejectReason       string                   `json:"reject_reason,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
	ProcessedAt        *time.Time               `json:"processed_at,omitempty"`
}

func toResponse(v *models.Video) VideoResponse {
	resp := VideoResponse{
		ID:                 v.ID,
		OwnerID:            v.OwnerID,
		Title:              v.Title,
		OriginalName:       v.OriginalName,
		ContentType:        v.ContentType,
		Size:               v.Size,
		ProcessingStatus:   v.ProcessingStatus,
		ProcessingProgress: v.ProcessingProgress,
		Metadata:           v.Metadata,
		SensitivityStatus:  v.SensitivityStatus,
		SensitivityScore:   v.SensitivityScore,
		FrameSummary:       v.FrameSummary,
		FrameResults:       v.FrameResults,
		RejectReason:       v.RejectReason,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
		ProcessedAt:        v.ProcessedAt,
	}
	if v.ProcessingError != nil {
		resp.Error = v.ProcessingError.Message
	}
	return resp
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	metrics.Snapshot
	Concurrency int                   `json:"concurrency"`
	ActiveJobs  []service.JobSnapshot `json:"active_jobs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get("X-User-ID")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing X-User-ID header")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"video\" is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	v, err := s.videos.Upload(r.Context(), service.UploadInput{
		OwnerID:      owner,
		Title:        r.FormValue("title"),
		OriginalName: header.Filename,
		ContentType:  contentType,
		Body:         file,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(v))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	videos, err := s.videos.List(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]VideoResponse, 0, len(videos))
	for i := range videos {
		out = append(out, toResponse(&videos[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	v, err := s.videos.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(v))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	v, err := s.videos.Reject(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(v))
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	v, err := s.videos.Reprocess(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toResponse(v))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.videos.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Snapshot:    s.metrics.Snapshot(),
		Concurrency: s.jobs.Concurrency(),
		ActiveJobs:  s.jobs.ListJobs(),
	})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrVideoNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrVideoBusy), errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
