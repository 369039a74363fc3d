package model

import "time"

// SM-2 の初期値と下限。
const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
)

// ItemKind は保存項目の種別を表す。
type ItemKind string

const (
	// ItemKindTranslation は翻訳結果の保存項目。
	ItemKindTranslation ItemKind = "translation"
	// ItemKindTranscript は音声書き起こしの保存項目。
	ItemKindTranscript ItemKind = "speech_to_text"
	// ItemKindPronunciation は発音評価の保存項目。
	ItemKindPronunciation ItemKind = "pronunciation"
)

// Valid は定義済みの種別かを返す。
func (k ItemKind) Valid() bool {
	switch k {
	case ItemKindTranslation, ItemKindTranscript, ItemKindPronunciation:
		return true
	}
	return false
}

// AudioRef は保存済み音声への参照を表す。
// 存在する場合、SizeBytes は所有ユーザーのクォータから既に差し引かれている。
type AudioRef struct {
	Key         string
	SizeBytes   int64
	ContentType string
}

// Languages は保存項目の言語コードの組。
type Languages struct {
	Source string
	Target string
}

// SRSState は SM-2 の復習スケジュール状態。
type SRSState struct {
	EaseFactor     float64
	IntervalDays   int
	Repetitions    int
	NextReviewDate *time.Time // 日付（UTCの0時）
}

// NewSRSState は未復習の初期状態を返す。
func NewSRSState() SRSState {
	return SRSState{EaseFactor: DefaultEaseFactor}
}

// Item はユーザーが保存した学習項目を表す。
type Item struct {
	ID             string
	UserID         string
	Kind           ItemKind
	Content        Content
	Languages      Languages
	Audio          *AudioRef
	SearchText     string
	SRS            SRSState
	LastReviewedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasAudio は音声が保存されているかを返す。
func (i *Item) HasAudio() bool {
	return i.Audio != nil && i.Audio.Key != ""
}
