package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/hitoshi/vocalearn/internal/ingest"
	"github.com/hitoshi/vocalearn/internal/middleware"
	"github.com/hitoshi/vocalearn/internal/model"
)

// multipartMemoryLimit はマルチパート解析時にメモリに保持する上限。超過分は一時ファイルに書き出される。
const multipartMemoryLimit = 8 << 20

// IngestServiceInterface は取り込みハンドラーが必要とするサービスインターフェース。
type IngestServiceInterface interface {
	Transcribe(ctx context.Context, req ingest.AudioRequest) (*ingest.TranscriptResult, error)
	Assess(ctx context.Context, req ingest.AudioRequest) (*ingest.AssessmentResult, error)
	Translate(ctx context.Context, userID, text, from, to string) (*ingest.TranslationResult, error)
}

// IngestHandler は翻訳・書き起こし・発音評価のHTTPハンドラー。
// 匿名でも利用でき、認証済みの場合のみ結果を保存する。
type IngestHandler struct {
	service        IngestServiceInterface
	validator      *requestValidator
	maxUploadBytes int64
}

// NewIngestHandler はIngestHandlerを生成する。
func NewIngestHandler(service IngestServiceInterface, maxUploadBytes int64) *IngestHandler {
	return &IngestHandler{
		service:        service,
		validator:      newRequestValidator(),
		maxUploadBytes: maxUploadBytes,
	}
}

// translateRequest は翻訳リクエストのボディ。
type translateRequest struct {
	Text string `json:"text" validate:"required,max=5000"`
	From string `json:"from" validate:"max=35"`
	To   string `json:"to" validate:"required,max=35"`
}

// outcomeResponse は保存結果のレスポンス表現。
type outcomeResponse struct {
	ItemID        string              `json:"item_id,omitempty"`
	IsSaved       bool                `json:"is_saved"`
	AudioSaved    bool                `json:"audio_saved"`
	QuotaExceeded bool                `json:"quota_exceeded"`
	StorageError  bool                `json:"storage_error"`
	Quota         *model.QuotaSummary `json:"quota,omitempty"`
}

// ingestResponse は取り込み結果のレスポンス。
type ingestResponse struct {
	Result any `json:"result"`
	outcomeResponse
}

func newIngestResponse(result any, out ingest.Outcome) ingestResponse {
	return ingestResponse{
		Result: result,
		outcomeResponse: outcomeResponse{
			ItemID:        out.ItemID,
			IsSaved:       out.IsSaved,
			AudioSaved:    out.AudioSaved,
			QuotaExceeded: out.QuotaExceeded,
			StorageError:  out.StorageError,
			Quota:         out.Quota,
		},
	}
}

// Translate はテキストを翻訳する。
// POST /api/translate
func (h *IngestHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !h.validator.decodeAndValidate(w, r, &req) {
		return
	}

	userID := middleware.OptionalUserID(r.Context())
	res, err := h.service.Translate(r.Context(), userID, req.Text, req.From, req.To)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newIngestResponse(res.Translation, res.Outcome))
}

// SpeechToText は音声を書き起こす。
// POST /api/speech-to-text
func (h *IngestHandler) SpeechToText(w http.ResponseWriter, r *http.Request) {
	req, cleanup, ok := h.parseAudioRequest(w, r)
	if !ok {
		return
	}
	defer cleanup()

	res, err := h.service.Transcribe(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newIngestResponse(res.Transcript, res.Outcome))
}

// PronunciationAssessment は参照テキストに対する発音を評価する。
// POST /api/pronunciation-assessment
func (h *IngestHandler) PronunciationAssessment(w http.ResponseWriter, r *http.Request) {
	req, cleanup, ok := h.parseAudioRequest(w, r)
	if !ok {
		return
	}
	defer cleanup()

	if req.ReferenceText == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("reference_text is required"))
		return
	}

	res, err := h.service.Assess(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newIngestResponse(res.Assessment, res.Outcome))
}

// parseAudioRequest はマルチパートフォームから音声リクエストを組み立てる。
// 戻り値のcleanupはハンドラー終了時に呼び出すこと。
func (h *IngestHandler) parseAudioRequest(w http.ResponseWriter, r *http.Request) (ingest.AudioRequest, func(), bool) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, &model.APIError{
				Code:     "AUDIO_TOO_LARGE",
				Message:  "音声ファイルが大きすぎます。",
				Category: "validation",
				Action:   "ファイルサイズを小さくしてください。",
			})
			return ingest.AudioRequest{}, nil, false
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("multipart form is required"))
		return ingest.AudioRequest{}, nil, false
	}
	cleanupForm := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		cleanupForm()
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("audio is required"))
		return ingest.AudioRequest{}, nil, false
	}

	req := ingest.AudioRequest{
		UserID:        middleware.OptionalUserID(r.Context()),
		Audio:         file,
		OriginalName:  header.Filename,
		ContentType:   partContentType(header),
		Language:      r.FormValue("language"),
		ReferenceText: r.FormValue("reference_text"),
	}
	return req, func() {
		file.Close()
		cleanupForm()
	}, true
}

func partContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
