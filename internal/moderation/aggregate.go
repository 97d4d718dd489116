// Package moderation turns per-frame verdicts into a video-level disposition.
package moderation

import (
	"errors"
	"fmt"
	"math"

	"github.com/raphaelgruber/clipvault/internal/models"
)

var (
	// ErrNoFrames is returned for an empty verdict list. Callers must catch
	// this upstream as a sampling failure.
	ErrNoFrames = errors.New("no frame verdicts to aggregate")
	// ErrNoClassifiedFrames is returned when every frame errored.
	ErrNoClassifiedFrames = errors.New("no frame could be classified")
)

// PolicyName selects how flagged frames combine.
type PolicyName string

const (
	// ZeroTolerance flags the video if any frame is flagged.
	ZeroTolerance PolicyName = "zero_tolerance"
	// Threshold flags the video only if the flagged share exceeds a limit.
	Threshold PolicyName = "threshold"
)

// Policy is a named aggregation variant.
type Policy struct {
	Name PolicyName
	// Limit is the flagged fraction that must be exceeded under Threshold.
	Limit float64
}

// NewPolicy validates and builds a policy.
func NewPolicy(name string, limit float64) (Policy, error) {
	switch PolicyName(name) {
	case ZeroTolerance:
		return Policy{Name: ZeroTolerance}, nil
	case Threshold:
		if limit < 0 || limit > 1 {
			return Policy{}, fmt.Errorf("threshold must be within [0,1], got %v", limit)
		}
		return Policy{Name: Threshold, Limit: limit}, nil
	default:
		return Policy{}, fmt.Errorf("unknown moderation policy: %q", name)
	}
}

func (p Policy) String() string {
	if p.Name == Threshold {
		return fmt.Sprintf("%s(>%.2f)", p.Name, p.Limit)
	}
	return string(p.Name)
}

// Result is the aggregated disposition.
type Result struct {
	Status       models.SensitivityStatus
	Score        int
	FlaggedCount int
	SafeCount    int
	ErrorCount   int
	// TotalCount includes error frames.
	TotalCount int
}

// Summary returns the audit counts.
func (r Result) Summary() models.FrameSummary {
	return models.FrameSummary{
		Flagged: r.FlaggedCount,
		Safe:    r.SafeCount,
		Errored: r.ErrorCount,
		Total:   r.TotalCount,
	}
}

// Aggregate combines verdicts under p. Error frames are counted in TotalCount
// but never enter the flagged ratio.
func (p Policy) Aggregate(verdicts []models.Verdict) (Result, error) {
	if len(verdicts) == 0 {
		return Result{}, ErrNoFrames
	}

	var r Result
	for _, v := range verdicts {
		switch v {
		case models.VerdictFlagged:
			r.FlaggedCount++
		case models.VerdictSafe:
			r.SafeCount++
		default:
			r.ErrorCount++
		}
	}
	r.TotalCount = len(verdicts)

	classified := r.FlaggedCount + r.SafeCount
	if classified == 0 {
		return r, fmt.Errorf("%w: %d of %d frames errored", ErrNoClassifiedFrames, r.ErrorCount, r.TotalCount)
	}

	switch p.Name {
	case Threshold:
		ratio := float64(r.FlaggedCount) / float64(classified)
		r.Score = int(math.Round(100 * ratio))
		r.Status = models.SensitivitySafe
		if ratio > p.Limit {
			r.Status = models.SensitivityFlagged
		}
	default:
		r.Status = models.SensitivitySafe
		if r.FlaggedCount > 0 {
			r.Status = models.SensitivityFlagged
			r.Score = 100
		}
	}
	return r, nil
}
