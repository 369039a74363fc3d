package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, item, collection, review, ingest, system
	Action   string // ユーザー向け対処方法
	Detail   string // 上流サービスのエラー詳細（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput            = "INVALID_INPUT"
	ErrCodeInvalidContent          = "INVALID_CONTENT"
	ErrCodeInvalidQuality          = "INVALID_QUALITY"
	ErrCodeItemNotFound            = "ITEM_NOT_FOUND"
	ErrCodeCollectionNotFound      = "COLLECTION_NOT_FOUND"
	ErrCodeCollectionItemNotFound  = "COLLECTION_ITEM_NOT_FOUND"
	ErrCodeStudySessionNotFound    = "STUDY_SESSION_NOT_FOUND"
	ErrCodeStudySessionEnded       = "STUDY_SESSION_ENDED"
	ErrCodeAudioNotFound           = "AUDIO_NOT_FOUND"
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodeDuplicateCollectionName = "DUPLICATE_COLLECTION_NAME"
	ErrCodeDuplicateCollectionItem = "DUPLICATE_COLLECTION_ITEM"
	ErrCodeAudioProcessingFailed   = "AUDIO_PROCESSING_FAILED"
	ErrCodeNoSpeechRecognized      = "NO_SPEECH_RECOGNIZED"
	ErrCodeRecognitionFailed       = "RECOGNITION_FAILED"
	ErrCodeRecognitionTimeout      = "RECOGNITION_TIMEOUT"
	ErrCodeTranslationFailed       = "TRANSLATION_FAILED"
	ErrCodeStorageUploadFailed     = "STORAGE_UPLOAD_FAILED"
)

// IsCode はerrがAPIErrorであり、かつ指定コードを持つかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewInvalidInputError は入力値不正エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidContentError は保存項目の内容が種別のスキーマに一致しない場合のエラーを生成する。
func NewInvalidContentError(kind ItemKind, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidContent,
		Message:  fmt.Sprintf("%s の内容が不正です: %s", kind, reason),
		Category: "validation",
		Action:   "保存する内容の形式を確認してください。",
	}
}

// NewInvalidQualityError は復習評価値が範囲外の場合のエラーを生成する。
func NewInvalidQualityError(quality int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuality,
		Message:  fmt.Sprintf("評価値が範囲外です: %d", quality),
		Category: "validation",
		Action:   "評価値は0から5の整数で指定してください。",
	}
}

// NewItemNotFoundError は保存項目未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定された保存項目が見つかりません: %s", itemID),
		Category: "item",
		Action:   "保存項目IDを確認してください。",
	}
}

// NewCollectionNotFoundError はコレクション未検出エラーを生成する。
func NewCollectionNotFoundError(collectionID string) *APIError {
	return &APIError{
		Code:     ErrCodeCollectionNotFound,
		Message:  fmt.Sprintf("指定されたコレクションが見つかりません: %s", collectionID),
		Category: "collection",
		Action:   "コレクションIDを確認してください。",
	}
}

// NewCollectionItemNotFoundError はコレクションに項目が含まれていない場合のエラーを生成する。
func NewCollectionItemNotFoundError(collectionID, itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeCollectionItemNotFound,
		Message:  fmt.Sprintf("コレクション %s に保存項目 %s は含まれていません", collectionID, itemID),
		Category: "collection",
		Action:   "コレクションの内容を確認してください。",
	}
}

// NewStudySessionNotFoundError は学習セッション未検出エラーを生成する。
func NewStudySessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeStudySessionNotFound,
		Message:  fmt.Sprintf("指定された学習セッションが見つかりません: %s", sessionID),
		Category: "review",
		Action:   "学習セッションIDを確認してください。",
	}
}

// NewStudySessionEndedError は終了済みの学習セッションに記録しようとした場合のエラーを生成する。
func NewStudySessionEndedError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeStudySessionEnded,
		Message:  fmt.Sprintf("学習セッションは既に終了しています: %s", sessionID),
		Category: "review",
		Action:   "新しい学習セッションを開始してください。",
	}
}

// NewAudioNotFoundError は音声が保存されていない項目の音声を要求した場合のエラーを生成する。
func NewAudioNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeAudioNotFound,
		Message:  fmt.Sprintf("この保存項目には音声がありません: %s", itemID),
		Category: "item",
		Action:   "音声付きで保存された項目を指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewDuplicateCollectionNameError は同名のコレクションが既に存在する場合のエラーを生成する。
func NewDuplicateCollectionNameError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateCollectionName,
		Message:  fmt.Sprintf("同じ名前のコレクションが既に存在します: %s", name),
		Category: "collection",
		Action:   "別の名前を指定してください。",
	}
}

// NewDuplicateCollectionItemError は項目が既にコレクションに含まれている場合のエラーを生成する。
func NewDuplicateCollectionItemError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateCollectionItem,
		Message:  "この保存項目は既にコレクションに追加されています。",
		Category: "collection",
		Action:   "コレクションの内容を確認してください。",
	}
}

// NewAudioProcessingError は音声のデコード・再エンコード失敗エラーを生成する。
func NewAudioProcessingError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAudioProcessingFailed,
		Message:  "音声ファイルの処理に失敗しました。",
		Category: "ingest",
		Action:   "対応している形式（WAV, MP3, WebM, M4A など）の音声をアップロードしてください。",
		Detail:   reason,
	}
}

// NewNoSpeechRecognizedError は音声から発話を認識できなかった場合のエラーを生成する。
func NewNoSpeechRecognizedError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSpeechRecognized,
		Message:  "音声から発話を認識できませんでした。",
		Category: "ingest",
		Action:   "周囲の雑音が少ない環境で、はっきりと発話して録音し直してください。",
	}
}

// NewRecognitionFailedError は音声認識サービスの失敗エラーを生成する。
func NewRecognitionFailedError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeRecognitionFailed,
		Message:  "音声認識サービスでエラーが発生しました。",
		Category: "ingest",
		Action:   "しばらく待ってから再度お試しください。",
		Detail:   detail,
	}
}

// NewRecognitionTimeoutError は音声認識が待機上限時間内に完了しなかった場合のエラーを生成する。
func NewRecognitionTimeoutError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeRecognitionTimeout,
		Message:  "音声認識がタイムアウトしました。",
		Category: "ingest",
		Action:   "短い音声に分割して再度お試しください。",
		Detail:   detail,
	}
}

// NewTranslationFailedError は翻訳サービスの失敗エラーを生成する。
func NewTranslationFailedError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeTranslationFailed,
		Message:  "翻訳サービスでエラーが発生しました。",
		Category: "ingest",
		Action:   "しばらく待ってから再度お試しください。",
		Detail:   detail,
	}
}

// NewStorageUploadFailedError は音声ファイルの保存失敗エラーを生成する。
func NewStorageUploadFailedError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeStorageUploadFailed,
		Message:  "音声ファイルの保存に失敗しました。",
		Category: "ingest",
		Action:   "しばらく待ってから再度お試しください。",
		Detail:   detail,
	}
}
