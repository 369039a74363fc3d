package handler

import (
	"time"

	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
)

// itemResponse は保存項目のAPIレスポンス。
type itemResponse struct {
	ID             string        `json:"id"`
	Kind           string        `json:"kind"`
	Content        model.Content `json:"content"`
	SourceLanguage string        `json:"source_language,omitempty"`
	TargetLanguage string        `json:"target_language,omitempty"`
	HasAudio       bool          `json:"has_audio"`
	AudioSizeBytes int64         `json:"audio_size_bytes,omitempty"`
	EaseFactor     float64       `json:"ease_factor"`
	IntervalDays   int           `json:"interval_days"`
	Repetitions    int           `json:"repetitions"`
	NextReviewDate *string       `json:"next_review_date"`
	LastReviewedAt *time.Time    `json:"last_reviewed_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func toItemResponse(item *model.Item) itemResponse {
	resp := itemResponse{
		ID:             item.ID,
		Kind:           string(item.Kind),
		Content:        item.Content,
		SourceLanguage: item.Languages.Source,
		TargetLanguage: item.Languages.Target,
		HasAudio:       item.HasAudio(),
		EaseFactor:     item.SRS.EaseFactor,
		IntervalDays:   item.SRS.IntervalDays,
		Repetitions:    item.SRS.Repetitions,
		LastReviewedAt: item.LastReviewedAt,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
	if item.Audio != nil {
		resp.AudioSizeBytes = item.Audio.SizeBytes
	}
	if item.SRS.NextReviewDate != nil {
		d := item.SRS.NextReviewDate.UTC().Format(time.DateOnly)
		resp.NextReviewDate = &d
	}
	return resp
}

func toItemResponses(items []*model.Item) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	return out
}

// reviewResponse は復習記録のAPIレスポンス。
type reviewResponse struct {
	ID               string    `json:"id"`
	ItemID           string    `json:"item_id"`
	SessionID        *string   `json:"session_id"`
	Quality          int       `json:"quality"`
	WasCorrect       bool      `json:"was_correct"`
	TimeSpentSeconds *int      `json:"time_spent_seconds"`
	ReviewedAt       time.Time `json:"reviewed_at"`
}

func toReviewResponse(r *model.Review) reviewResponse {
	return reviewResponse{
		ID:               r.ID,
		ItemID:           r.ItemID,
		SessionID:        r.SessionID,
		Quality:          r.Quality,
		WasCorrect:       r.WasCorrect,
		TimeSpentSeconds: r.TimeSpentSeconds,
		ReviewedAt:       r.ReviewedAt,
	}
}

// studySessionResponse は学習セッションのAPIレスポンス。
type studySessionResponse struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	ItemsReviewed   int        `json:"items_reviewed"`
	DurationMinutes *float64   `json:"duration_minutes"`
}

func toStudySessionResponse(s *model.StudySession) studySessionResponse {
	return studySessionResponse{
		ID:              s.ID,
		Kind:            string(s.Kind),
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		ItemsReviewed:   s.ItemsReviewed,
		DurationMinutes: s.DurationMinutes(),
	}
}

// collectionResponse はコレクションのAPIレスポンス。
type collectionResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	ItemCount   int       `json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toCollectionResponse(c *model.Collection) collectionResponse {
	return collectionResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Icon:        c.Icon,
		ItemCount:   c.ItemCount,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// collectionEntryResponse はコレクション内の保存項目。
type collectionEntryResponse struct {
	Position int          `json:"position"`
	AddedAt  time.Time    `json:"added_at"`
	Item     itemResponse `json:"item"`
}

func toCollectionEntryResponses(entries []repository.CollectionEntry) []collectionEntryResponse {
	out := make([]collectionEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, collectionEntryResponse{
			Position: e.Position,
			AddedAt:  e.AddedAt,
			Item:     toItemResponse(e.Item),
		})
	}
	return out
}
