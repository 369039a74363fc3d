// Package srs はSM-2方式の復習スケジューリングを提供する。
package srs

import (
	"math"
	"time"

	"github.com/hitoshi/vocalearn/internal/model"
)

// 品質評価の範囲。
const (
	MinQuality = 0
	MaxQuality = 5
)

// DefaultCorrectThreshold は正解とみなす品質の既定の下限。
const DefaultCorrectThreshold = 3

// ValidQuality は品質評価が0〜5の範囲内かを返す。
func ValidQuality(q int) bool {
	return q >= MinQuality && q <= MaxQuality
}

// Apply は品質評価qualityを受けたSM-2の次状態を返す。
// NextReviewDate は変更しない。呼び出し側で NextReviewDate(today, interval) を設定する。
//
// quality < 3 の場合は repetitions=0, interval=1 に戻す。
// それ以外は repetitions を1増やし、intervalを 1 → 6 → round(前回interval × 更新前EF) と伸ばす。
// EFは品質に関わらず更新し、小数第2位で丸め、1.3を下回らない。
func Apply(s model.SRSState, quality int) model.SRSState {
	next := s
	if quality < 3 {
		next.Repetitions = 0
		next.IntervalDays = 1
	} else {
		switch s.Repetitions {
		case 0:
			next.IntervalDays = 1
		case 1:
			next.IntervalDays = 6
		default:
			next.IntervalDays = int(math.Round(float64(s.IntervalDays) * s.EaseFactor))
		}
		next.Repetitions = s.Repetitions + 1
	}

	d := float64(MaxQuality - quality)
	ef := math.Round((s.EaseFactor+(0.1-d*(0.08+d*0.02)))*100) / 100
	if ef < model.MinEaseFactor {
		ef = model.MinEaseFactor
	}
	next.EaseFactor = ef
	return next
}

// NextReviewDate は today（UTCの日付）に intervalDays を加えた日付を返す。
func NextReviewDate(today time.Time, intervalDays int) time.Time {
	return Today(today).AddDate(0, 0, intervalDays)
}

// Today は t のUTC日付の0時を返す。
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
