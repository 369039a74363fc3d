package model

import (
	"math"
	"time"
)

// クォータの既定値。
const (
	DefaultQuotaBytes int64 = 100 * 1024 * 1024
	DefaultMaxFiles         = 50
)

const bytesPerMB = 1024 * 1024

// QuotaLedger はユーザーごとの音声保存量の台帳。
// UsedBytes と FileCount は台帳の debit/credit 操作でのみ変更する。
type QuotaLedger struct {
	UserID     string
	UsedBytes  int64
	QuotaBytes int64
	FileCount  int
	MaxFiles   int
	UpdatedAt  time.Time
}

// CanAdmit は sizeBytes の音声を追加で保存できるかを返す。
func (q *QuotaLedger) CanAdmit(sizeBytes int64) bool {
	return q.UsedBytes+sizeBytes <= q.QuotaBytes && q.FileCount < q.MaxFiles
}

// RemainingBytes は残り容量を返す。
func (q *QuotaLedger) RemainingBytes() int64 {
	r := q.QuotaBytes - q.UsedBytes
	if r < 0 {
		return 0
	}
	return r
}

// UsagePercentage は使用率（%、小数第2位で丸め）を返す。
func (q *QuotaLedger) UsagePercentage() float64 {
	if q.QuotaBytes <= 0 {
		return 0
	}
	return round2(float64(q.UsedBytes) / float64(q.QuotaBytes) * 100)
}

// CanUploadMore はファイル数と容量の両方に余裕があるかを返す。
func (q *QuotaLedger) CanUploadMore() bool {
	return q.FileCount < q.MaxFiles && q.RemainingBytes() > 0
}

// QuotaSummary はAPIで返すクォータの要約。
type QuotaSummary struct {
	UsedMB          float64 `json:"used_mb"`
	QuotaMB         float64 `json:"quota_mb"`
	RemainingMB     float64 `json:"remaining_mb"`
	UsagePercentage float64 `json:"usage_percentage"`
	FileCount       int     `json:"file_count"`
	MaxFiles        int     `json:"max_files"`
	CanUploadMore   bool    `json:"can_upload_more"`
}

// Summary は台帳の要約を返す。
func (q *QuotaLedger) Summary() QuotaSummary {
	return QuotaSummary{
		UsedMB:          round2(float64(q.UsedBytes) / bytesPerMB),
		QuotaMB:         round2(float64(q.QuotaBytes) / bytesPerMB),
		RemainingMB:     round2(float64(q.RemainingBytes()) / bytesPerMB),
		UsagePercentage: q.UsagePercentage(),
		FileCount:       q.FileCount,
		MaxFiles:        q.MaxFiles,
		CanUploadMore:   q.CanUploadMore(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
