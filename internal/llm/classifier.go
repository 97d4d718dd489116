package llm

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/raphaelgruber/clipvault/internal/metrics"
	"github.com/raphaelgruber/clipvault/internal/models"
)

// DefaultPrompt is the moderation instruction sent with every frame.
const DefaultPrompt = `You are a content moderation system reviewing a single still frame from a user-uploaded video.

Flag the frame ONLY if it clearly shows one of these:
- explicit sexual content or nudity
- graphic violence, gore, or serious injury
- illegal drug use
- hate symbols or extremist imagery

Do NOT flag:
- everyday scenes, people, pets, food, sports, or landscapes
- swimwear, fitness, or medical and educational material
- cartoons, games, or clearly fictional content without graphic detail
- anything borderline or ambiguous

Answer with exactly one word: FLAGGED or SAFE.`

const verdictInstruction = "Classify this frame. Reply with one word: FLAGGED or SAFE."

// ParseVerdict maps free text to a verdict. A reply containing "FLAGGED" in
// any case is FLAGGED; every other reply is SAFE.
func ParseVerdict(text string) models.Verdict {
	if strings.Contains(strings.ToUpper(text), string(models.VerdictFlagged)) {
		return models.VerdictFlagged
	}
	return models.VerdictSafe
}

// Classifier produces a verdict for one still image.
type Classifier struct {
	model   VisionModel
	prompt  string
	maxDim  int
	timeout time.Duration
	pacer   *Pacer
	metrics *metrics.Collector
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithPrompt overrides DefaultPrompt. Empty keeps the default.
func WithPrompt(prompt string) ClassifierOption {
	return func(c *Classifier) {
		if strings.TrimSpace(prompt) != "" {
			c.prompt = prompt
		}
	}
}

// WithMaxDimension downsizes frames so neither side exceeds px. Zero sends frames as captured.
func WithMaxDimension(px int) ClassifierOption {
	return func(c *Classifier) { c.maxDim = px }
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) ClassifierOption {
	return func(c *Classifier) { c.timeout = d }
}

// WithPacer sets the pacer shared across callers.
func WithPacer(p *Pacer) ClassifierOption {
	return func(c *Classifier) { c.pacer = p }
}

// WithClassifierMetrics records call timings and token usage.
func WithClassifierMetrics(m *metrics.Collector) ClassifierOption {
	return func(c *Classifier) { c.metrics = m }
}

// NewClassifier creates a Classifier around model.
func NewClassifier(model VisionModel, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		model:  model,
		prompt: DefaultPrompt,
		maxDim: 768,
		pacer:  NewPacer(500 * time.Millisecond),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the underlying model name.
func (c *Classifier) Model() string {
	return c.model.Name()
}

// Classify loads the image at imagePath and asks the model for a verdict.
// Provider failures are wrapped with ErrClassifierUnavailable.
func (c *Classifier) Classify(ctx context.Context, imagePath string) (models.Verdict, error) {
	data, err := c.loadFrame(imagePath)
	if err != nil {
		return models.VerdictError, err
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return models.VerdictError, err
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := c.model.Describe(callCtx, c.prompt, verdictInstruction, data, "image/jpeg")
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = fmt.Errorf("%w: empty reply", ErrMalformedOutput)
	}
	c.metrics.RecordClassifierUsage(time.Since(start), err != nil, reply.InputTokens, reply.OutputTokens)
	if err != nil {
		return models.VerdictError, wrapProviderError(err)
	}

	return ParseVerdict(reply.Text), nil
}

// loadFrame decodes the image and re-encodes it as JPEG, downscaled to maxDim.
func (c *Classifier) loadFrame(path string) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}

	if c.maxDim > 0 && exceeds(img.Bounds(), c.maxDim) {
		img = imaging.Fit(img, c.maxDim, c.maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func exceeds(b image.Rectangle, px int) bool {
	return b.Dx() > px || b.Dy() > px
}
