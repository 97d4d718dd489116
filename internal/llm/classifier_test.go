package llm

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/clipvault/internal/metrics"
	"github.com/raphaelgruber/clipvault/internal/models"
)

type fakeModel struct {
	mu      sync.Mutex
	reply   Reply
	err     error
	images  [][]byte
	systems []string
	delay   time.Duration
}

func (f *fakeModel) Describe(ctx context.Context, system, _ string, img []byte, _ string) (Reply, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, img)
	f.systems = append(f.systems, system)
	return f.reply, f.err
}

func (f *fakeModel) Name() string { return "fake-vision" }

func writeFrame(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.jpg")
	img := imaging.New(w, h, color.NRGBA{R: 40, G: 120, B: 200, A: 255})
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		reply string
		want  models.Verdict
	}{
		{"FLAGGED", models.VerdictFlagged},
		{"flagged", models.VerdictFlagged},
		{"  Flagged.\n", models.VerdictFlagged},
		{"This frame is FLAGGED for violence", models.VerdictFlagged},
		{"SAFE", models.VerdictSafe},
		{"safe", models.VerdictSafe},
		{"I cannot determine this", models.VerdictSafe},
		{"UNSAFE", models.VerdictSafe},
		{"flag", models.VerdictSafe},
		{"", models.VerdictSafe},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerdict(tt.reply))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  models.Verdict
	}{
		{"safe", "SAFE", models.VerdictSafe},
		{"flagged", "FLAGGED", models.VerdictFlagged},
		{"chatty flagged", "After review: flagged.", models.VerdictFlagged},
		{"unparseable defaults safe", "maybe?", models.VerdictSafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{reply: Reply{Text: tt.reply}}
			c := NewClassifier(model, WithPacer(NewPacer(0)))

			got, err := c.Classify(context.Background(), writeFrame(t, 64, 48))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, DefaultPrompt, model.systems[0])
		})
	}
}

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		name        string
		model       *fakeModel
		rateLimited bool
		malformed   bool
	}{
		{"quota", &fakeModel{err: errors.New("429 Too Many Requests: quota exceeded")}, true, false},
		{"network", &fakeModel{err: errors.New("dial tcp 127.0.0.1:11434: connection refused")}, false, false},
		{"empty reply", &fakeModel{reply: Reply{Text: "   "}}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(tt.model, WithPacer(NewPacer(0)))

			got, err := c.Classify(context.Background(), writeFrame(t, 32, 32))
			require.Error(t, err)
			assert.Equal(t, models.VerdictError, got)
			assert.ErrorIs(t, err, ErrClassifierUnavailable)
			assert.Equal(t, tt.rateLimited, errors.Is(err, ErrRateLimited))
			assert.Equal(t, tt.malformed, errors.Is(err, ErrMalformedOutput))
		})
	}
}

func TestClassifyTimeout(t *testing.T) {
	model := &fakeModel{delay: time.Second, reply: Reply{Text: "SAFE"}}
	c := NewClassifier(model, WithPacer(NewPacer(0)), WithTimeout(20*time.Millisecond))

	got, err := c.Classify(context.Background(), writeFrame(t, 32, 32))
	assert.Equal(t, models.VerdictError, got)
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyMissingImage(t *testing.T) {
	model := &fakeModel{reply: Reply{Text: "SAFE"}}
	c := NewClassifier(model, WithPacer(NewPacer(0)))

	got, err := c.Classify(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
	assert.Equal(t, models.VerdictError, got)
	assert.Empty(t, model.images, "model must not be called without an image")
}

func TestClassifyDownscales(t *testing.T) {
	model := &fakeModel{reply: Reply{Text: "SAFE"}}
	c := NewClassifier(model, WithPacer(NewPacer(0)), WithMaxDimension(100))

	_, err := c.Classify(context.Background(), writeFrame(t, 400, 200))
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(model.images[0]))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestClassifyCustomPrompt(t *testing.T) {
	model := &fakeModel{reply: Reply{Text: "SAFE"}}
	c := NewClassifier(model, WithPacer(NewPacer(0)), WithPrompt("strict prompt"))

	_, err := c.Classify(context.Background(), writeFrame(t, 16, 16))
	require.NoError(t, err)
	assert.Equal(t, "strict prompt", model.systems[0])
}

func TestClassifyRecordsMetrics(t *testing.T) {
	collector := metrics.NewCollector()
	model := &fakeModel{reply: Reply{Text: "SAFE", InputTokens: 900, OutputTokens: 2}}
	c := NewClassifier(model, WithPacer(NewPacer(0)), WithClassifierMetrics(collector))

	_, err := c.Classify(context.Background(), writeFrame(t, 16, 16))
	require.NoError(t, err)

	snap := collector.Snapshot()
	require.NotNil(t, snap.Classify)
	assert.Equal(t, int64(1), snap.Classify.Count)
	require.NotNil(t, snap.Classify.TotalInputTokens)
	assert.Equal(t, int64(900), *snap.Classify.TotalInputTokens)
}

func TestTokenUsage(t *testing.T) {
	in, out := tokenUsage(map[string]any{"InputTokens": 10, "OutputTokens": 2})
	assert.Equal(t, int64(10), in)
	assert.Equal(t, int64(2), out)

	in, out = tokenUsage(map[string]any{"PromptTokens": 7, "CompletionTokens": float64(1)})
	assert.Equal(t, int64(7), in)
	assert.Equal(t, int64(1), out)

	in, out = tokenUsage(nil)
	assert.Zero(t, in)
	assert.Zero(t, out)
}
