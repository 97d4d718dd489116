// Package server exposes the video API over HTTP and the progress push channel over WebSocket.
package server

import (
	"log/slog"
	"net/http"

	"github.com/raphaelgruber/clipvault/internal/metrics"
	"github.com/raphaelgruber/clipvault/internal/notify"
	"github.com/raphaelgruber/clipvault/internal/service"
)

// maxUploadBytes bounds a single multipart upload.
const maxUploadBytes = 2 << 30

// Server wires HTTP routes to the video service.
type Server struct {
	videos  *service.VideoService
	jobs    *service.JobManager
	hub     *notify.Hub
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates a server over the given dependencies.
func New(videos *service.VideoService, jobs *service.JobManager, hub *notify.Hub, m *metrics.Collector, logger *slog.Logger) *Server {
	return &Server{
		videos:  videos,
		jobs:    jobs,
		hub:     hub,
		metrics: m,
		logger:  logger,
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/videos", s.handleUpload)
	mux.HandleFunc("GET /api/videos", s.handleList)
	mux.HandleFunc("GET /api/videos/{id}", s.handleGet)
	mux.HandleFunc("POST /api/videos/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /api/videos/{id}/reprocess", s.handleReprocess)
	mux.HandleFunc("DELETE /api/videos/{id}", s.handleDelete)

	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /stats", s.handleStats)

	return LoggingMiddleware(s.logger, mux)
}
