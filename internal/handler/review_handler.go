package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/srs"
)

// ReviewServiceInterface は復習ハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	RecordReview(ctx context.Context, userID, itemID string, in srs.ReviewInput) (*model.Review, *model.Item, error)
	History(ctx context.Context, userID, itemID string) ([]*model.Review, error)
	Schedule(ctx context.Context, userID, itemID string, date time.Time) (*model.Item, error)
	DueItems(ctx context.Context, userID string, asOf time.Time) ([]*model.Item, error)

	StartSession(ctx context.Context, userID string, kind model.StudySessionKind) (*model.StudySession, error)
	EndSession(ctx context.Context, userID, sessionID string) (*model.StudySession, error)
	GetSession(ctx context.Context, userID, sessionID string) (*model.StudySession, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]*model.StudySession, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

// ReviewHandler は復習と学習セッションのHTTPハンドラー。
type ReviewHandler struct {
	service   ReviewServiceInterface
	validator *requestValidator
	now       func() time.Time
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service ReviewServiceInterface) *ReviewHandler {
	return &ReviewHandler{
		service:   service,
		validator: newRequestValidator(),
		now:       time.Now,
	}
}

// recordReviewRequest は復習記録リクエストのボディ。
// qualityの範囲はサービス層でINVALID_QUALITYとして検証する。
type recordReviewRequest struct {
	Quality          *int    `json:"quality" validate:"required"`
	TimeSpentSeconds *int    `json:"time_spent_seconds" validate:"omitempty,gte=0"`
	SessionID        *string `json:"session_id" validate:"omitempty,uuid"`
}

// recordReviewResponse は復習記録のレスポンス。
type recordReviewResponse struct {
	Review reviewResponse `json:"review"`
	Item   itemResponse   `json:"item"`
}

// scheduleRequest は復習日設定リクエストのボディ。
type scheduleRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// startSessionRequest は学習セッション開始リクエストのボディ。
type startSessionRequest struct {
	Kind string `json:"kind" validate:"required,oneof=flashcard pronunciation_practice vocabulary_review mixed"`
}

// RecordReview は品質評価を記録する。
// POST /api/items/{id}/reviews
func (h *ReviewHandler) RecordReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req recordReviewRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}

	review, it, err := h.service.RecordReview(r.Context(), userID, chi.URLParam(r, "id"), srs.ReviewInput{
		Quality:          *req.Quality,
		TimeSpentSeconds: req.TimeSpentSeconds,
		SessionID:        req.SessionID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, recordReviewResponse{
		Review: toReviewResponse(review),
		Item:   toItemResponse(it),
	})
}

// ListReviews は保存項目の復習履歴を返す。
// GET /api/items/{id}/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	reviews, err := h.service.History(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]reviewResponse, 0, len(reviews))
	for _, rv := range reviews {
		out = append(out, toReviewResponse(rv))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": out})
}

// ScheduleItem は保存項目の次回復習日を設定する。
// PUT /api/items/{id}/schedule
func (h *ReviewHandler) ScheduleItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req scheduleRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("date must be YYYY-MM-DD"))
		return
	}

	it, err := h.service.Schedule(r.Context(), userID, chi.URLParam(r, "id"), date)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toItemResponse(it))
}

// DueItems は復習期限を迎えた保存項目を返す。
// GET /api/reviews/due?as_of=YYYY-MM-DD
func (h *ReviewHandler) DueItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	asOf := h.now()
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("as_of must be YYYY-MM-DD"))
			return
		}
		asOf = d
	}

	items, err := h.service.DueItems(r.Context(), userID, asOf)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, itemListResponse{Items: toItemResponses(items)})
}

// StartSession は学習セッションを開始する。
// POST /api/study-sessions
func (h *ReviewHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req startSessionRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.service.StartSession(r.Context(), userID, model.StudySessionKind(req.Kind))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStudySessionResponse(session))
}

// ListSessions は学習セッションを新しい順に返す。
// GET /api/study-sessions?limit=N
func (h *ReviewHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	sessions, err := h.service.ListSessions(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]studySessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toStudySessionResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// GetSession は学習セッションを返す。
// GET /api/study-sessions/{id}
func (h *ReviewHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	session, err := h.service.GetSession(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toStudySessionResponse(session))
}

// EndSession は学習セッションを終了する。
// POST /api/study-sessions/{id}/end
func (h *ReviewHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	session, err := h.service.EndSession(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toStudySessionResponse(session))
}

// DeleteSession は学習セッションを削除する。復習記録は残る。
// DELETE /api/study-sessions/{id}
func (h *ReviewHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteSession(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
