package srs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hitoshi/vocalearn/internal/model"
)

func TestApply_FirstThreeCorrectReviews(t *testing.T) {
	s := model.NewSRSState()

	s = Apply(s, 5)
	assert.Equal(t, 1, s.IntervalDays)
	assert.Equal(t, 1, s.Repetitions)
	assert.InDelta(t, 2.6, s.EaseFactor, 1e-9)

	s = Apply(s, 5)
	assert.Equal(t, 6, s.IntervalDays)
	assert.Equal(t, 2, s.Repetitions)
	assert.InDelta(t, 2.7, s.EaseFactor, 1e-9)

	// round(6 × 2.7) = 16 (EF before the update is used)
	s = Apply(s, 5)
	assert.Equal(t, 16, s.IntervalDays)
	assert.Equal(t, 3, s.Repetitions)
	assert.InDelta(t, 2.8, s.EaseFactor, 1e-9)
}

func TestApply_EaseFactorDelta(t *testing.T) {
	tests := []struct {
		quality int
		wantEF  float64
	}{
		{5, 2.6},
		{4, 2.5},
		{3, 2.36},
		{2, 2.18},
		{1, 1.96},
		{0, 1.7},
	}
	for _, tt := range tests {
		s := Apply(model.NewSRSState(), tt.quality)
		assert.InDelta(t, tt.wantEF, s.EaseFactor, 1e-9, "quality=%d", tt.quality)
	}
}

func TestApply_EaseFactorStoredAtTwoDecimals(t *testing.T) {
	s := model.NewSRSState()
	for _, q := range []int{5, 5, 5} {
		s = Apply(s, q)
	}
	assert.Equal(t, 2.8, s.EaseFactor)

	// 6回連続で失敗すると下限に張り付き、その後も下限のまま
	for i := 0; i < 6; i++ {
		s = Apply(s, 0)
		assert.Equal(t, 1, s.IntervalDays)
	}
	assert.Equal(t, model.MinEaseFactor, s.EaseFactor)

	s = Apply(s, 3)
	assert.Equal(t, 1, s.IntervalDays)
	assert.Equal(t, model.MinEaseFactor, s.EaseFactor)

	s = Apply(model.SRSState{EaseFactor: 2.36}, 3)
	assert.Equal(t, 2.22, s.EaseFactor)
}

func TestApply_FailingQualityResets(t *testing.T) {
	s := model.SRSState{EaseFactor: 2.5, IntervalDays: 16, Repetitions: 3}

	s = Apply(s, 2)
	assert.Equal(t, 0, s.Repetitions)
	assert.Equal(t, 1, s.IntervalDays)

	// the next correct answer starts the 1 → 6 sequence again
	s = Apply(s, 4)
	assert.Equal(t, 1, s.IntervalDays)
	assert.Equal(t, 1, s.Repetitions)
}

func TestApply_EaseFactorFloor(t *testing.T) {
	s := model.SRSState{EaseFactor: model.MinEaseFactor, IntervalDays: 1, Repetitions: 0}
	for i := 0; i < 5; i++ {
		s = Apply(s, 0)
		assert.GreaterOrEqual(t, s.EaseFactor, model.MinEaseFactor)
	}
	assert.Equal(t, model.MinEaseFactor, s.EaseFactor)
}

func TestApply_DoesNotTouchNextReviewDate(t *testing.T) {
	d := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := model.NewSRSState()
	s.NextReviewDate = &d

	next := Apply(s, 5)
	assert.Equal(t, &d, next.NextReviewDate)
}

func TestNextReviewDate_TruncatesToUTCDate(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	// 2026-03-01 08:00 JST は UTC では 2026-02-28 23:00
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, jst)

	got := NextReviewDate(now, 6)
	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), got)
}

func TestValidQuality(t *testing.T) {
	for q := -1; q <= 6; q++ {
		assert.Equal(t, q >= 0 && q <= 5, ValidQuality(q), "quality=%d", q)
	}
}
