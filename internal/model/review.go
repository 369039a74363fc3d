package model

import (
	"math"
	"time"
)

// Review は保存項目に対する1回の復習記録。作成後は変更しない。
type Review struct {
	ID               string
	ItemID           string
	SessionID        *string // セッション削除時はnullになる
	Quality          int
	WasCorrect       bool
	TimeSpentSeconds *int
	ReviewedAt       time.Time
}

// StudySessionKind は学習セッションの種別。
type StudySessionKind string

const (
	StudySessionFlashcard             StudySessionKind = "flashcard"
	StudySessionPronunciationPractice StudySessionKind = "pronunciation_practice"
	StudySessionVocabularyReview      StudySessionKind = "vocabulary_review"
	StudySessionMixed                 StudySessionKind = "mixed"
)

// Valid は定義済みの種別かを返す。
func (k StudySessionKind) Valid() bool {
	switch k {
	case StudySessionFlashcard, StudySessionPronunciationPractice, StudySessionVocabularyReview, StudySessionMixed:
		return true
	}
	return false
}

// StudySession は一連の復習をまとめる学習セッション。
type StudySession struct {
	ID            string
	UserID        string
	Kind          StudySessionKind
	StartedAt     time.Time
	EndedAt       *time.Time
	ItemsReviewed int
}

// IsOpen はセッションが終了していないかを返す。
func (s *StudySession) IsOpen() bool {
	return s.EndedAt == nil
}

// DurationMinutes はセッションの所要時間（分、小数第2位で丸め）を返す。
// 終了していない場合はnilを返す。
func (s *StudySession) DurationMinutes() *float64 {
	if s.EndedAt == nil {
		return nil
	}
	m := s.EndedAt.Sub(s.StartedAt).Minutes()
	m = math.Round(m*100) / 100
	return &m
}
