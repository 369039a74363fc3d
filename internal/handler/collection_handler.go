package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
)

// CollectionServiceInterface はコレクションハンドラーが必要とするサービスインターフェース。
type CollectionServiceInterface interface {
	Create(ctx context.Context, userID, name, description, icon string) (*model.Collection, error)
	List(ctx context.Context, userID string) ([]*model.Collection, error)
	Get(ctx context.Context, userID, collectionID string) (*model.Collection, error)
	Items(ctx context.Context, userID, collectionID string) ([]repository.CollectionEntry, error)
	Rename(ctx context.Context, userID, collectionID, name string) (*model.Collection, error)
	Describe(ctx context.Context, userID, collectionID, description, icon string) (*model.Collection, error)
	Delete(ctx context.Context, userID, collectionID string) error
	AddItem(ctx context.Context, userID, collectionID, itemID string) (*model.CollectionItem, error)
	RemoveItem(ctx context.Context, userID, collectionID, itemID string) error
}

// CollectionHandler はコレクションのHTTPハンドラー。
type CollectionHandler struct {
	service   CollectionServiceInterface
	validator *requestValidator
}

// NewCollectionHandler はCollectionHandlerを生成する。
func NewCollectionHandler(service CollectionServiceInterface) *CollectionHandler {
	return &CollectionHandler{
		service:   service,
		validator: newRequestValidator(),
	}
}

// createCollectionRequest はコレクション作成リクエストのボディ。
type createCollectionRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	Icon        string `json:"icon" validate:"max=32"`
}

// updateCollectionRequest はコレクション更新リクエストのボディ。nilのフィールドは変更しない。
type updateCollectionRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Icon        *string `json:"icon" validate:"omitempty,max=32"`
}

// addCollectionItemRequest はコレクションへの項目追加リクエストのボディ。
type addCollectionItemRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

// collectionItemResponse はコレクションへの追加結果。
type collectionItemResponse struct {
	CollectionID string `json:"collection_id"`
	ItemID       string `json:"item_id"`
	Position     int    `json:"position"`
}

// ListCollections はコレクション一覧を返す。
// GET /api/collections
func (h *CollectionHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	collections, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]collectionResponse, 0, len(collections))
	for _, c := range collections {
		out = append(out, toCollectionResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

// CreateCollection はコレクションを作成する。
// POST /api/collections
func (h *CollectionHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createCollectionRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}

	c, err := h.service.Create(r.Context(), userID, req.Name, req.Description, req.Icon)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCollectionResponse(c))
}

// GetCollection はコレクションを返す。
// GET /api/collections/{id}
func (h *CollectionHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCollectionResponse(c))
}

// UpdateCollection は名前・説明・アイコンを部分更新する。
// PATCH /api/collections/{id}
func (h *CollectionHandler) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateCollectionRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}
	if req.Name == nil && req.Description == nil && req.Icon == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("no fields to update"))
		return
	}

	collectionID := chi.URLParam(r, "id")
	var c *model.Collection
	var err error

	if req.Name != nil {
		c, err = h.service.Rename(r.Context(), userID, collectionID, *req.Name)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
	}

	if req.Description != nil || req.Icon != nil {
		if c == nil {
			c, err = h.service.Get(r.Context(), userID, collectionID)
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
		}
		description, icon := c.Description, c.Icon
		if req.Description != nil {
			description = *req.Description
		}
		if req.Icon != nil {
			icon = *req.Icon
		}
		c, err = h.service.Describe(r.Context(), userID, collectionID, description, icon)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, toCollectionResponse(c))
}

// DeleteCollection はコレクションを削除する。保存項目自体は残る。
// DELETE /api/collections/{id}
func (h *CollectionHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListCollectionItems はコレクション内の保存項目を位置順で返す。
// GET /api/collections/{id}/items
func (h *CollectionHandler) ListCollectionItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.Items(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": toCollectionEntryResponses(entries)})
}

// AddCollectionItem は保存項目をコレクションの末尾に追加する。
// POST /api/collections/{id}/items
func (h *CollectionHandler) AddCollectionItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addCollectionItemRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}

	ci, err := h.service.AddItem(r.Context(), userID, chi.URLParam(r, "id"), req.ItemID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, collectionItemResponse{
		CollectionID: ci.CollectionID,
		ItemID:       ci.ItemID,
		Position:     ci.Position,
	})
}

// RemoveCollectionItem は保存項目をコレクションから外す。
// DELETE /api/collections/{id}/items/{itemId}
func (h *CollectionHandler) RemoveCollectionItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveItem(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "itemId")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
