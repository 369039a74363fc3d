package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vocalearn/internal/item"
	"github.com/hitoshi/vocalearn/internal/model"
)

// ItemServiceInterface は保存項目ハンドラーが必要とするサービスインターフェース。
type ItemServiceInterface interface {
	Search(ctx context.Context, userID string, kind *model.ItemKind, query string) ([]*model.Item, error)
	Get(ctx context.Context, userID, itemID string) (*model.Item, error)
	// Delete は保存項目を削除し、音声があればクォータに差し戻す。
	Delete(ctx context.Context, userID, itemID string) error
	OpenAudio(ctx context.Context, userID, itemID string) (io.ReadCloser, string, error)
	Subtitles(ctx context.Context, userID, itemID string, format item.SubtitleFormat, w io.Writer) error
}

// QuotaReaderInterface はクォータ要約の取得インターフェース。
type QuotaReaderInterface interface {
	Summary(ctx context.Context, userID string) (model.QuotaSummary, error)
}

// ItemHandler は保存項目のHTTPハンドラー。
type ItemHandler struct {
	service ItemServiceInterface
	quota   QuotaReaderInterface
}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler(service ItemServiceInterface, quota QuotaReaderInterface) *ItemHandler {
	return &ItemHandler{
		service: service,
		quota:   quota,
	}
}

// itemListResponse は保存項目一覧のレスポンス。
type itemListResponse struct {
	Items []itemResponse `json:"items"`
}

// deleteItemResponse は保存項目削除のレスポンス。
type deleteItemResponse struct {
	Quota model.QuotaSummary `json:"quota"`
}

// SearchItems は保存項目を検索する。
// GET /api/items?kind=translation|speech_to_text|pronunciation&q=xxx
func (h *ItemHandler) SearchItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var kind *model.ItemKind
	if s := r.URL.Query().Get("kind"); s != "" {
		k := model.ItemKind(s)
		if !k.Valid() {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError(fmt.Sprintf("unknown kind: %q", s)))
			return
		}
		kind = &k
	}

	items, err := h.service.Search(r.Context(), userID, kind, r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, itemListResponse{Items: toItemResponses(items)})
}

// GetItem は保存項目の詳細を取得する。
// GET /api/items/{id}
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	it, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toItemResponse(it))
}

// DeleteItem は保存項目を削除し、更新後のクォータを返す。
// DELETE /api/items/{id}
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	summary, err := h.quota.Summary(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteItemResponse{Quota: summary})
}

// GetAudio は保存済み音声を返す。
// GET /api/items/{id}/audio
func (h *ItemHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	rc, contentType, err := h.service.OpenAudio(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "audio/wav"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		// ヘッダー送信後のためステータスは変更できない
		slog.Warn("音声の送信に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// GetSubtitles は書き起こし項目の字幕を返す。
// GET /api/items/{id}/subtitles?format=srt|vtt|ttml
func (h *ItemHandler) GetSubtitles(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	format, err := item.ParseSubtitleFormat(r.URL.Query().Get("format"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := h.service.Subtitles(r.Context(), userID, chi.URLParam(r, "id"), format, &buf); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
