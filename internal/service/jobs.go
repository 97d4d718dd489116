package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/clipvault/internal/models"
)

// Runner executes one ingestion run for a video.
type Runner interface {
	Run(ctx context.Context, videoID string) error
}

// JobStatus is the in-memory state of a background run.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
)

// Job is a background run tracked by the JobManager.
type Job struct {
	VideoID   string
	Status    JobStatus
	QueuedAt  time.Time
	StartedAt *time.Time

	mu sync.RWMutex
}

// JobSnapshot is a point-in-time copy of a Job.
type JobSnapshot struct {
	VideoID   string     `json:"video_id"`
	Status    JobStatus  `json:"status"`
	QueuedAt  time.Time  `json:"queued_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobSnapshot{
		VideoID:   j.VideoID,
		Status:    j.Status,
		QueuedAt:  j.QueuedAt,
		StartedAt: j.StartedAt,
	}
}

// JobManager runs pipeline jobs in the background with bounded concurrency.
// At most one run per video is active at a time.
type JobManager struct {
	runner  Runner
	store   VideoStore
	timeout time.Duration
	sem     chan struct{}

	jobs map[string]*Job
	mu   sync.RWMutex
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewJobManager creates a job manager. Runs are cancelled by Shutdown.
func NewJobManager(runner Runner, store VideoStore, concurrency int, timeout time.Duration) *JobManager {
	if concurrency <= 0 {
		concurrency = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		runner:  runner,
		store:   store,
		timeout: timeout,
		sem:     make(chan struct{}, concurrency),
		jobs:    make(map[string]*Job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Concurrency returns the configured concurrency level.
func (m *JobManager) Concurrency() int {
	return cap(m.sem)
}

// StartJob schedules a run for videoID and returns immediately. It returns
// false if a run for the video is already queued or running, or the manager
// is shutting down.
func (m *JobManager) StartJob(videoID string) bool {
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	if _, ok := m.jobs[videoID]; ok {
		m.mu.Unlock()
		slog.Debug("job already active", "video_id", videoID)
		return false
	}
	job := &Job{VideoID: videoID, Status: JobStatusQueued, QueuedAt: time.Now()}
	m.jobs[videoID] = job
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(job)
	return true
}

func (m *JobManager) run(job *Job) {
	defer m.wg.Done()
	defer m.remove(job.VideoID)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job goroutine panicked", "video_id", job.VideoID, "panic", r)
		}
	}()

	select {
	case m.sem <- struct{}{}:
	case <-m.ctx.Done():
		slog.Info("job dropped before start", "video_id", job.VideoID)
		return
	}
	defer func() { <-m.sem }()

	now := time.Now()
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	slog.Info("job started", "video_id", job.VideoID, "queued_ms", now.Sub(job.QueuedAt).Milliseconds())
	if err := m.runner.Run(ctx, job.VideoID); err != nil {
		slog.Warn("job ended with error", "video_id", job.VideoID, "error", err, "duration_ms", time.Since(now).Milliseconds())
		return
	}
	slog.Info("job finished", "video_id", job.VideoID, "duration_ms", time.Since(now).Milliseconds())
}

func (m *JobManager) remove(videoID string) {
	m.mu.Lock()
	delete(m.jobs, videoID)
	m.mu.Unlock()
}

// IsActive reports whether a run for videoID is queued or running.
func (m *JobManager) IsActive(videoID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.jobs[videoID]
	return ok
}

// ListJobs returns active jobs, oldest first.
func (m *JobManager) ListJobs() []JobSnapshot {
	m.mu.RLock()
	jobs := make([]JobSnapshot, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.Snapshot())
	}
	m.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b JobSnapshot) int {
		return a.QueuedAt.Compare(b.QueuedAt)
	})
	return jobs
}

// ResumeIncomplete restarts runs interrupted by a previous shutdown. Videos
// left in processing restart from scratch; pending videos are queued as is.
func (m *JobManager) ResumeIncomplete(ctx context.Context) (int, error) {
	videos, err := m.store.ListVideosByStatus(ctx, models.StatusPending, models.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list incomplete videos: %w", err)
	}
	if len(videos) == 0 {
		slog.Info("no incomplete videos to resume")
		return 0, nil
	}

	slog.Info("found incomplete videos", "count", len(videos))
	resumed := 0
	for _, v := range videos {
		if v.ProcessingStatus == models.StatusProcessing {
			if _, err := m.store.UpdateVideo(ctx, v.ID, models.VideoPatch{
				ProcessingStatus:   models.Ptr(models.StatusPending),
				ProcessingProgress: models.Ptr(0),
			}); err != nil {
				slog.Warn("failed to reset interrupted video", "video_id", v.ID, "error", err)
				continue
			}
		}
		if m.StartJob(v.ID) {
			resumed++
		}
	}
	return resumed, nil
}

// Shutdown cancels all runs and waits for them to return or ctx to expire.
// Interrupted videos stay in processing and are picked up by ResumeIncomplete.
func (m *JobManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until no runs are active.
func (m *JobManager) Wait() {
	m.wg.Wait()
}
