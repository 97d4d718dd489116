// Package media wraps ffprobe and ffmpeg to read clip metadata and capture still frames.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/clipvault/internal/metrics"
	"github.com/raphaelgruber/clipvault/internal/models"
)

var (
	// ErrCorruptMedia means the source is missing, too small, or has no parseable video stream.
	ErrCorruptMedia = errors.New("corrupt or unreadable media")
	// ErrNoFramesExtracted means the decoder ran but left no usable stills behind.
	ErrNoFramesExtracted = errors.New("no frames extracted")
	// ErrToolMissing means ffmpeg or ffprobe is not installed.
	ErrToolMissing = errors.New("media tool not installed")
)

// Frame is one captured still.
type Frame struct {
	Index     int
	Timestamp float64 // seconds from start
	Path      string
}

// Sampler probes clips and captures evenly spaced frames.
type Sampler struct {
	ffmpeg         string
	ffprobe        string
	minSourceBytes int64
	runner         commandRunner
	metrics        *metrics.Collector
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithMetrics records probe and sample timings.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Sampler) { s.metrics = c }
}

func withRunner(r commandRunner) Option {
	return func(s *Sampler) { s.runner = r }
}

// NewSampler creates a Sampler. Empty tool paths resolve via PATH.
func NewSampler(ffmpegPath, ffprobePath string, minSourceBytes int64, opts ...Option) *Sampler {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	s := &Sampler{
		ffmpeg:         ffmpegPath,
		ffprobe:        ffprobePath,
		minSourceBytes: minSourceBytes,
		runner:         execRunner{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckSource fails fast on missing, non-regular or near-empty files
// before any decoder is started.
func (s *Sampler) CheckSource(sourcePath string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: source %s does not exist", ErrCorruptMedia, sourcePath)
		}
		return fmt.Errorf("%w: stat source: %v", ErrCorruptMedia, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: source %s is not a regular file", ErrCorruptMedia, sourcePath)
	}
	if info.Size() < s.minSourceBytes {
		return fmt.Errorf("%w: source is %d bytes (minimum %d)", ErrCorruptMedia, info.Size(), s.minSourceBytes)
	}
	return nil
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		BitRate      string `json:"bit_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// Probe reads the technical metadata of the first video stream.
func (s *Sampler) Probe(ctx context.Context, sourcePath string) (*models.VideoMetadata, error) {
	start := time.Now()
	md, err := s.probe(ctx, sourcePath)
	s.metrics.RecordTiming(metrics.OpProbe, time.Since(start), err != nil)
	return md, err
}

func (s *Sampler) probe(ctx context.Context, sourcePath string) (*models.VideoMetadata, error) {
	if err := s.CheckSource(sourcePath); err != nil {
		return nil, err
	}

	out, err := s.runner.Run(ctx, s.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		sourcePath,
	)
	if err != nil {
		if errors.Is(err, ErrToolMissing) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptMedia, err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %v", ErrCorruptMedia, err)
	}

	for _, st := range parsed.Streams {
		if st.CodecType != "video" {
			continue
		}
		md := &models.VideoMetadata{
			Width:     st.Width,
			Height:    st.Height,
			Codec:     st.CodecName,
			FrameRate: parseRate(st.RFrameRate),
			Format:    parsed.Format.FormatName,
		}
		if md.FrameRate == 0 {
			md.FrameRate = parseRate(st.AvgFrameRate)
		}
		md.Duration = parseFloat(parsed.Format.Duration)
		if md.Duration <= 0 {
			md.Duration = parseFloat(st.Duration)
		}
		md.Bitrate = parseInt(parsed.Format.BitRate)
		if md.Bitrate == 0 {
			md.Bitrate = parseInt(st.BitRate)
		}
		if md.Duration <= 0 {
			return nil, fmt.Errorf("%w: no duration reported", ErrCorruptMedia)
		}
		return md, nil
	}
	return nil, fmt.Errorf("%w: no video stream", ErrCorruptMedia)
}

// Sample captures frameCount stills into outputDir, one at the midpoint of each
// equal slice of a clip lasting duration seconds. duration comes from a prior
// Probe; placement depends only on it.
func (s *Sampler) Sample(ctx context.Context, sourcePath, outputDir string, duration float64, frameCount int) ([]Frame, error) {
	start := time.Now()
	frames, err := s.sample(ctx, sourcePath, outputDir, duration, frameCount)
	s.metrics.RecordTiming(metrics.OpSample, time.Since(start), err != nil)
	return frames, err
}

func (s *Sampler) sample(ctx context.Context, sourcePath, outputDir string, duration float64, frameCount int) ([]Frame, error) {
	if frameCount <= 0 {
		return nil, fmt.Errorf("frame count must be positive, got %d", frameCount)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: clip has no duration", ErrCorruptMedia)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	var frames []Frame
	for i, ts := range Timestamps(duration, frameCount) {
		out := filepath.Join(outputDir, fmt.Sprintf("frame_%03d.jpg", i))
		_, err := s.runner.Run(ctx, s.ffmpeg,
			"-hide_banner",
			"-loglevel", "error",
			"-y",
			"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
			"-i", sourcePath,
			"-frames:v", "1",
			"-q:v", "2",
			out,
		)
		if err != nil {
			if errors.Is(err, ErrToolMissing) || ctx.Err() != nil {
				return nil, err
			}
			// A seek past the last keyframe can fail on its own; the other frames still count.
			slog.Debug("frame capture failed", "source", sourcePath, "index", i, "timestamp", ts, "error", err)
			continue
		}
		if info, statErr := os.Stat(out); statErr == nil && info.Size() > 0 {
			frames = append(frames, Frame{Index: i, Timestamp: ts, Path: out})
		}
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %d capture points produced no images", ErrNoFramesExtracted, frameCount)
	}
	return frames, nil
}

// Timestamps returns n capture points at the midpoints of n equal slices of duration.
func Timestamps(duration float64, n int) []float64 {
	if n <= 0 || duration <= 0 {
		return nil
	}
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = duration * (float64(i) + 0.5) / float64(n)
	}
	return ts
}

// parseRate parses ffprobe rates like "30000/1001" or "25".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
