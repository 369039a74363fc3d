// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/vocalearn/internal/middleware"
	"github.com/hitoshi/vocalearn/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// writeInvalidRequestBody はリクエストボディの解析失敗を返す。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// requireUserID は認証済みユーザーIDを返す。未認証の場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return "", false
	}
	return userID, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError {
			slog.Warn("upstream error",
				slog.String("code", apiErr.Code),
				slog.String("detail", apiErr.Detail),
				slog.String("path", r.URL.Path),
			)
		}
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidInput, model.ErrCodeInvalidContent, model.ErrCodeInvalidQuality, "INVALID_REQUEST":
		return http.StatusBadRequest
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case model.ErrCodeItemNotFound, model.ErrCodeCollectionNotFound, model.ErrCodeCollectionItemNotFound,
		model.ErrCodeStudySessionNotFound, model.ErrCodeUserNotFound, model.ErrCodeAudioNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateCollectionName, model.ErrCodeDuplicateCollectionItem, model.ErrCodeStudySessionEnded:
		return http.StatusConflict
	case model.ErrCodeAudioProcessingFailed, model.ErrCodeNoSpeechRecognized:
		return http.StatusUnprocessableEntity
	case model.ErrCodeRecognitionFailed, model.ErrCodeTranslationFailed, model.ErrCodeStorageUploadFailed:
		return http.StatusBadGateway
	case model.ErrCodeRecognitionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
