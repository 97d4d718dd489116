package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/clipvault/internal/models"
)

const (
	S = models.VerdictSafe
	F = models.VerdictFlagged
	E = models.VerdictError
)

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name    string
		limit   float64
		want    Policy
		wantErr bool
	}{
		{"zero_tolerance", 0.9, Policy{Name: ZeroTolerance}, false},
		{"threshold", 0.5, Policy{Name: Threshold, Limit: 0.5}, false},
		{"threshold", 1.5, Policy{}, true},
		{"threshold", -0.1, Policy{}, true},
		{"lenient", 0.5, Policy{}, true},
		{"", 0, Policy{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPolicy(tt.name, tt.limit)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZeroTolerance(t *testing.T) {
	p := Policy{Name: ZeroTolerance}

	tests := []struct {
		name     string
		verdicts []models.Verdict
		status   models.SensitivityStatus
		score    int
	}{
		{"all safe", []models.Verdict{S, S, S, S, S}, models.SensitivitySafe, 0},
		{"one flagged of five", []models.Verdict{S, F, S, S, S}, models.SensitivityFlagged, 100},
		{"all flagged", []models.Verdict{F, F}, models.SensitivityFlagged, 100},
		{"safe with errors", []models.Verdict{S, E, E}, models.SensitivitySafe, 0},
		{"flagged with errors", []models.Verdict{E, F, E}, models.SensitivityFlagged, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := p.Aggregate(tt.verdicts)
			require.NoError(t, err)
			assert.Equal(t, tt.status, r.Status)
			assert.Equal(t, tt.score, r.Score)
			assert.Equal(t, r.TotalCount, r.FlaggedCount+r.SafeCount+r.ErrorCount)
		})
	}
}

func TestThreshold(t *testing.T) {
	p := Policy{Name: Threshold, Limit: 0.5}

	tests := []struct {
		name     string
		verdicts []models.Verdict
		status   models.SensitivityStatus
		score    int
	}{
		{"none flagged", []models.Verdict{S, S, S, S}, models.SensitivitySafe, 0},
		{"below", []models.Verdict{F, S, S, S}, models.SensitivitySafe, 25},
		{"exactly at threshold stays safe", []models.Verdict{F, F, S, S}, models.SensitivitySafe, 50},
		{"above", []models.Verdict{F, F, F, S}, models.SensitivityFlagged, 75},
		{"errors excluded from ratio", []models.Verdict{F, S, E, E, E}, models.SensitivitySafe, 50},
		{"errors excluded, above", []models.Verdict{F, F, S, E}, models.SensitivityFlagged, 67},
		{"rounding", []models.Verdict{F, S, S}, models.SensitivitySafe, 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := p.Aggregate(tt.verdicts)
			require.NoError(t, err)
			assert.Equal(t, tt.status, r.Status)
			assert.Equal(t, tt.score, r.Score)
			assert.Equal(t, len(tt.verdicts), r.TotalCount)
		})
	}
}

func TestThresholdBoundaryStable(t *testing.T) {
	p := Policy{Name: Threshold, Limit: 0.5}
	in := []models.Verdict{F, S}
	first, err := p.Aggregate(in)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		r, err := p.Aggregate(in)
		require.NoError(t, err)
		assert.Equal(t, first, r)
	}
	assert.Equal(t, models.SensitivitySafe, first.Status)
}

func TestAggregateEdgeCases(t *testing.T) {
	p := Policy{Name: ZeroTolerance}

	_, err := p.Aggregate(nil)
	assert.ErrorIs(t, err, ErrNoFrames)

	r, err := p.Aggregate([]models.Verdict{E, E, E})
	assert.ErrorIs(t, err, ErrNoClassifiedFrames)
	assert.Equal(t, 3, r.ErrorCount)
	assert.Equal(t, 3, r.TotalCount)
}

func TestResultSummary(t *testing.T) {
	r, err := Policy{Name: ZeroTolerance}.Aggregate([]models.Verdict{S, F, E, S})
	require.NoError(t, err)
	assert.Equal(t, models.FrameSummary{Flagged: 1, Safe: 2, Errored: 1, Total: 4}, r.Summary())
}
