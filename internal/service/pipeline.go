package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/raphaelgruber/clipvault/internal/db"
	"github.com/raphaelgruber/clipvault/internal/media"
	"github.com/raphaelgruber/clipvault/internal/metrics"
	"github.com/raphaelgruber/clipvault/internal/models"
	"github.com/raphaelgruber/clipvault/internal/moderation"
	"github.com/raphaelgruber/clipvault/internal/notify"
)

// Progress checkpoints of one run.
const (
	ProgressInit       = 5
	ProgressMetadata   = 20
	ProgressSampled    = 45
	ProgressClassified = 75
	ProgressFinalizing = 95
	ProgressDone       = 100
)

const (
	defaultWriteAttempts = 3
	failureWriteTimeout  = 10 * time.Second
)

// errVideoGone aborts a run whose record was deleted mid-flight.
var errVideoGone = errors.New("video deleted during processing")

// PipelineConfig holds the tunables of the ingestion pipeline.
type PipelineConfig struct {
	WorkDir    string
	FrameCount int
	Policy     moderation.Policy

	// WriteAttempts bounds each store write. Zero means 3.
	WriteAttempts int
	// RetryInterval is the first backoff delay between write attempts. Zero means 200ms.
	RetryInterval time.Duration
}

// Pipeline drives one video from pending to a terminal state.
type Pipeline struct {
	store      VideoStore
	sampler    FrameSampler
	classifier FrameClassifier
	publisher  Publisher
	cfg        PipelineConfig
	metrics    *metrics.Collector
}

// NewPipeline wires the pipeline collaborators.
func NewPipeline(store VideoStore, sampler FrameSampler, classifier FrameClassifier, publisher Publisher, cfg PipelineConfig) *Pipeline {
	if cfg.FrameCount <= 0 {
		cfg.FrameCount = 5
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Policy.Name == "" {
		cfg.Policy = moderation.Policy{Name: moderation.ZeroTolerance}
	}
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = defaultWriteAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	return &Pipeline{
		store:      store,
		sampler:    sampler,
		classifier: classifier,
		publisher:  publisher,
		cfg:        cfg,
	}
}

// SetMetrics enables run timing.
func (p *Pipeline) SetMetrics(m *metrics.Collector) {
	p.metrics = m
}

// WorkDirFor returns the temporary directory owned by one run.
func (p *Pipeline) WorkDirFor(videoID string) string {
	return filepath.Join(p.cfg.WorkDir, "clipvault-"+videoID)
}

// Run processes one pending video. A missing record or a video that is no
// longer pending ends the run silently. All step failures end in a single
// failed transition; the returned error is for logging only.
func (p *Pipeline) Run(ctx context.Context, videoID string) (err error) {
	video, err := p.load(ctx, videoID)
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}
	if video == nil {
		slog.Info("video deleted before processing", "video_id", videoID)
		return nil
	}
	if video.ProcessingStatus != models.StatusPending {
		slog.Info("skipping video that is not pending", "video_id", videoID, "status", video.ProcessingStatus)
		return nil
	}

	r := &run{
		Pipeline: p,
		video:    video,
		workDir:  p.WorkDirFor(videoID),
	}
	start := time.Now()

	defer func() {
		if cleanupErr := RemoveWorkDir(r.workDir); cleanupErr != nil {
			slog.Warn("failed to remove work dir", "video_id", videoID, "dir", r.workDir, "error", cleanupErr)
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline panic: %v", rec)
			slog.Error("pipeline panicked", "video_id", videoID, "panic", rec)
			r.fail(ctx, err)
		}
		p.metrics.RecordTiming(metrics.OpPipeline, time.Since(start), err != nil)
	}()

	if err = r.execute(ctx); err != nil {
		switch {
		case errors.Is(err, errVideoGone):
			slog.Info("video deleted during processing", "video_id", videoID)
			return nil
		case errors.Is(err, context.Canceled):
			// Shutdown: the record stays in processing and is resumed on next start.
			slog.Warn("pipeline interrupted", "video_id", videoID)
			return err
		}
		r.fail(ctx, err)
		return err
	}
	return nil
}

// RemoveWorkDir deletes a run's temporary directory. Removing a missing
// directory succeeds.
func RemoveWorkDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// run is the state of a single pipeline execution.
type run struct {
	*Pipeline
	video    *models.Video
	workDir  string
	progress int
}

func (r *run) execute(ctx context.Context) error {
	id := r.video.ID
	log := slog.With("video_id", id, "user_id", r.video.OwnerID)

	if err := r.checkpoint(ctx, ProgressInit, "Initializing", models.VideoPatch{
		ProcessingStatus: models.Ptr(models.StatusProcessing),
		ClearError:       true,
	}); err != nil {
		return err
	}

	if err := r.sampler.CheckSource(r.video.SourcePath); err != nil {
		return fmt.Errorf("check source: %w", err)
	}

	md, err := r.sampler.Probe(ctx, r.video.SourcePath)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	log.Debug("metadata extracted", "duration", md.Duration, "width", md.Width, "height", md.Height, "codec", md.Codec)
	if err := r.checkpoint(ctx, ProgressMetadata, "Metadata extracted", models.VideoPatch{Metadata: md}); err != nil {
		return err
	}

	frames, err := r.sampler.Sample(ctx, r.video.SourcePath, filepath.Join(r.workDir, "frames"), md.Duration, r.cfg.FrameCount)
	if err != nil {
		return fmt.Errorf("sample frames: %w", err)
	}
	if err := r.checkpoint(ctx, ProgressSampled, fmt.Sprintf("Sampled %d frames", len(frames)), models.VideoPatch{}); err != nil {
		return err
	}

	results, err := r.classifyFrames(ctx, frames)
	if err != nil {
		return err
	}
	verdicts := make([]models.Verdict, len(results))
	for i, fr := range results {
		verdicts[i] = fr.Verdict
	}

	agg, err := r.cfg.Policy.Aggregate(verdicts)
	if err != nil {
		return fmt.Errorf("aggregate verdicts: %w", err)
	}
	if err := r.checkpoint(ctx, ProgressClassified, "Content review finished", models.VideoPatch{}); err != nil {
		return err
	}

	if err := r.checkpoint(ctx, ProgressFinalizing, "Finalizing", models.VideoPatch{}); err != nil {
		return err
	}

	summary := agg.Summary()
	now := time.Now().UTC()
	if _, err := r.update(ctx, models.VideoPatch{
		ProcessingStatus:   models.Ptr(models.StatusCompleted),
		ProcessingProgress: models.Ptr(ProgressDone),
		SensitivityStatus:  models.Ptr(agg.Status),
		SensitivityScore:   models.Ptr(agg.Score),
		FrameSummary:       &summary,
		FrameResults:       results,
		ProcessedAt:        &now,
	}); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}

	r.publish(notify.Completed(id, notify.Result{
		SensitivityStatus: agg.Status,
		SensitivityScore:  agg.Score,
		FrameSummary:      &summary,
		Metadata:          md,
	}))
	log.Info("video processed",
		"sensitivity", agg.Status,
		"score", agg.Score,
		"flagged", agg.FlaggedCount,
		"errored", agg.ErrorCount,
		"total", agg.TotalCount,
		"policy", r.cfg.Policy.String())
	return nil
}

// classifyFrames classifies every frame in order. A classifier error turns
// that frame into an error frame and the run continues. Per-frame progress
// between the sampling and classification checkpoints is published but not persisted.
func (r *run) classifyFrames(ctx context.Context, frames []media.Frame) ([]models.FrameResult, error) {
	results := make([]models.FrameResult, 0, len(frames))
	var lastErr error

	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		verdict, err := r.classifier.Classify(ctx, f.Path)
		res := models.FrameResult{Index: f.Index, Timestamp: f.Timestamp, Verdict: verdict}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			res.Verdict = models.VerdictError
			res.Error = frameErrorCode(err)
			lastErr = err
			slog.Warn("frame classification failed", "video_id", r.video.ID, "frame", f.Index, "error", err)
		}
		results = append(results, res)

		span := ProgressClassified - ProgressSampled
		pct := ProgressSampled + span*(i+1)/(len(frames)+1)
		r.notify(pct, fmt.Sprintf("Reviewed frame %d of %d", i+1, len(frames)))
	}

	allErrored := lastErr != nil
	for _, res := range results {
		if res.Verdict != models.VerdictError {
			allErrored = false
			break
		}
	}
	if allErrored {
		return nil, fmt.Errorf("%w: %d frames: last error: %w", moderation.ErrNoClassifiedFrames, len(results), lastErr)
	}
	return results, nil
}

// checkpoint persists progress (plus extra fields) and publishes it. A store
// failure after retries is logged and the run continues; a deleted record aborts.
func (r *run) checkpoint(ctx context.Context, pct int, message string, patch models.VideoPatch) error {
	if pct < r.progress {
		pct = r.progress
	}
	patch.ProcessingProgress = models.Ptr(pct)

	if _, err := r.update(ctx, patch); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return errVideoGone
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Error("failed to persist checkpoint", "video_id", r.video.ID, "progress", pct, "error", err)
		if patch.ProcessingStatus != nil {
			return fmt.Errorf("persist %s: %w", *patch.ProcessingStatus, err)
		}
	}
	r.notify(pct, message)
	return nil
}

func (r *run) notify(pct int, message string) {
	if pct < r.progress {
		return
	}
	r.progress = pct
	r.publish(notify.Progress(r.video.ID, pct, message))
}

func (r *run) publish(ev notify.Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(r.video.OwnerID, ev); err != nil {
		slog.Warn("failed to publish event", "video_id", r.video.ID, "event", ev.Name, "error", err)
	}
}

// fail records the terminal failure. It runs even if ctx is already done.
func (r *run) fail(ctx context.Context, cause error) {
	message := FailureMessage(cause)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	if _, err := r.update(wctx, models.VideoPatch{
		ProcessingStatus:   models.Ptr(models.StatusFailed),
		ProcessingProgress: models.Ptr(0),
		SensitivityStatus:  models.Ptr(models.SensitivityUnknown),
		SensitivityScore:   models.Ptr(0),
		ProcessingError:    &models.ProcessingError{Message: message, Internal: cause.Error()},
	}); err != nil {
		slog.Error("failed to persist failure", "video_id", r.video.ID, "error", err)
	}

	r.publish(notify.Failed(r.video.ID, message))
	slog.Error("video processing failed", "video_id", r.video.ID, "user_message", message, "error", cause)
}

func (r *run) update(ctx context.Context, patch models.VideoPatch) (*models.Video, error) {
	return r.Pipeline.update(ctx, r.video.ID, patch)
}

// update writes a patch with bounded exponential backoff.
func (p *Pipeline) update(ctx context.Context, id string, patch models.VideoPatch) (*models.Video, error) {
	var out *models.Video
	op := func() error {
		v, err := p.store.UpdateVideo(ctx, id, patch)
		if err != nil {
			if !db.Retryable(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}
	if err := backoff.Retry(op, p.backOff(ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) load(ctx context.Context, id string) (*models.Video, error) {
	var out *models.Video
	op := func() error {
		v, err := p.store.GetVideo(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}
	if err := backoff.Retry(op, p.backOff(ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryInterval
	b.MaxInterval = 5 * p.cfg.RetryInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.WriteAttempts-1)), ctx)
}
