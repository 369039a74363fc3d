// Package ingest は音声・テキストの取り込みパイプラインを提供する。
// 音声の正規化、外部サービスでの認識・評価、クォータ判定、音声の保存、保存項目の作成までを1リクエスト単位で行う。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/hitoshi/vocalearn/internal/audio"
	"github.com/hitoshi/vocalearn/internal/blob"
	"github.com/hitoshi/vocalearn/internal/config"
	"github.com/hitoshi/vocalearn/internal/metrics"
	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/security"
	"github.com/hitoshi/vocalearn/internal/speech"
	"github.com/hitoshi/vocalearn/internal/translate"
)

// DefaultRecognitionMaxWait は認識完了を待つ既定の上限時間。
const DefaultRecognitionMaxWait = 60 * time.Second

// メトリクスと保存キーに使う取り込み種別。
const (
	kindTranscript    = string(model.ItemKindTranscript)
	kindPronunciation = string(model.ItemKindPronunciation)
	kindTranslation   = string(model.ItemKindTranslation)
)

// Normalizer は音声を認識サービス向けの形式に変換する。
type Normalizer interface {
	Normalize(ctx context.Context, ws *audio.Workspace, r io.Reader, originalName string) (*audio.Normalized, error)
}

// QuotaLedger はクォータ台帳の判定と増減を行う。
type QuotaLedger interface {
	CanAdmit(ctx context.Context, userID string, sizeBytes int64) (bool, *model.QuotaLedger, error)
	Debit(ctx context.Context, userID string, sizeBytes int64) (bool, *model.QuotaLedger, error)
	Credit(ctx context.Context, userID string, sizeBytes int64) (*model.QuotaLedger, error)
}

// ItemCreator は保存項目を作成する。
type ItemCreator interface {
	Create(ctx context.Context, userID string, content model.Content, langs model.Languages, audio *model.AudioRef) (*model.Item, error)
}

// BlobUploader は音声オブジェクトの保存と削除を行う。
type BlobUploader interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Config はPipelineの設定。
type Config struct {
	RecognitionMaxWait  time.Duration
	UploadFailurePolicy config.UploadFailurePolicy
	TempDir             string
}

// Deps はPipelineが利用する外部コンポーネント。
type Deps struct {
	Normalizer Normalizer
	Recognizer speech.Recognizer
	Assessor   speech.Assessor
	Translator translate.Translator
	Blobs      BlobUploader
	Ledger     QuotaLedger
	Items      ItemCreator
	Sanitizer  security.TextSanitizer
	Metrics    metrics.MetricsCollector
}

// Pipeline は取り込みパイプライン。プロセス内で共有する可変状態は持たない。
type Pipeline struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

// NewPipeline はPipelineを生成する。
func NewPipeline(cfg Config, deps Deps) *Pipeline {
	if cfg.RecognitionMaxWait <= 0 {
		cfg.RecognitionMaxWait = DefaultRecognitionMaxWait
	}
	if !cfg.UploadFailurePolicy.Valid() {
		cfg.UploadFailurePolicy = config.UploadFailureDiscard
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Pipeline{cfg: cfg, deps: deps, now: time.Now}
}

// AudioRequest は音声を伴う取り込みの入力。
type AudioRequest struct {
	// UserID は空の場合に匿名として扱い、何も保存しない。
	UserID       string
	Audio        io.Reader
	OriginalName string
	ContentType  string
	Language     string
	// ReferenceText は発音評価でのみ使う。
	ReferenceText string
}

// Outcome は保存処理の結果。
type Outcome struct {
	ItemID        string
	IsSaved       bool
	AudioSaved    bool
	QuotaExceeded bool
	StorageError  bool
	// Quota は認証済みの場合のみ設定される。
	Quota *model.QuotaSummary
}

// TranscriptResult は書き起こしの結果。
type TranscriptResult struct {
	Transcript *model.TranscriptContent
	Outcome
}

// AssessmentResult は発音評価の結果。
type AssessmentResult struct {
	Assessment *model.PronunciationContent
	Outcome
}

// TranslationResult は翻訳の結果。
type TranslationResult struct {
	Translation *model.TranslationContent
	Outcome
}

// Transcribe は音声を書き起こす。認証済みの場合は音声と書き起こしを保存する。
func (p *Pipeline) Transcribe(ctx context.Context, req AudioRequest) (*TranscriptResult, error) {
	if err := validateAudioRequest(req); err != nil {
		return nil, err
	}

	ws, err := audio.NewWorkspace(p.cfg.TempDir)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	normalized, err := p.deps.Normalizer.Normalize(ctx, ws, req.Audio, req.OriginalName)
	if err != nil {
		p.deps.Metrics.RecordIngestion(kindTranscript, metrics.OutcomeFailed)
		return nil, err
	}

	finals, err := p.recognize(ctx, kindTranscript, normalized, func(ctx context.Context, r io.Reader) (speech.Session, error) {
		return p.deps.Recognizer.StartRecognition(ctx, r, req.Language)
	})
	if err != nil {
		p.deps.Metrics.RecordIngestion(kindTranscript, metrics.OutcomeFailed)
		return nil, err
	}

	content := &model.TranscriptContent{
		Segments: make([]model.TranscriptSegment, 0, len(finals)),
		Audio:    normalized.Metadata(req.OriginalName, req.ContentType),
	}
	texts := make([]string, 0, len(finals))
	for _, ev := range finals {
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		content.Segments = append(content.Segments, model.TranscriptSegment{
			Text:       text,
			OffsetMs:   ev.OffsetMs,
			DurationMs: ev.DurationMs,
		})
	}
	content.Transcription = strings.Join(texts, " ")
	if content.Transcription == "" {
		p.deps.Metrics.RecordRecognitionFailure(kindTranscript, "no_speech")
		p.deps.Metrics.RecordIngestion(kindTranscript, metrics.OutcomeFailed)
		return nil, model.NewNoSpeechRecognizedError()
	}

	result := &TranscriptResult{Transcript: content}
	result.Outcome, err = p.persist(ctx, req, model.ItemKindTranscript, normalized, content)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Assess は参照テキストに対する発音を評価する。認証済みの場合は音声と評価結果を保存する。
func (p *Pipeline) Assess(ctx context.Context, req AudioRequest) (*AssessmentResult, error) {
	if err := validateAudioRequest(req); err != nil {
		return nil, err
	}
	req.ReferenceText = p.sanitize(req.ReferenceText)
	if req.ReferenceText == "" {
		return nil, model.NewInvalidInputError("reference_text is required")
	}
	reference := TokenizerFor(req.Language).Tokenize(req.ReferenceText)
	if len(reference) == 0 {
		return nil, model.NewInvalidInputError("reference_text has no words")
	}

	ws, err := audio.NewWorkspace(p.cfg.TempDir)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	normalized, err := p.deps.Normalizer.Normalize(ctx, ws, req.Audio, req.OriginalName)
	if err != nil {
		p.deps.Metrics.RecordIngestion(kindPronunciation, metrics.OutcomeFailed)
		return nil, err
	}

	finals, err := p.recognize(ctx, kindPronunciation, normalized, func(ctx context.Context, r io.Reader) (speech.Session, error) {
		return p.deps.Assessor.StartAssessment(ctx, r, req.Language, req.ReferenceText)
	})
	if err != nil {
		p.deps.Metrics.RecordIngestion(kindPronunciation, metrics.OutcomeFailed)
		return nil, err
	}

	segments := make([]Segment, 0, len(finals))
	texts := make([]string, 0, len(finals))
	for _, ev := range finals {
		if ev.Assessment == nil || len(ev.Assessment.Words) == 0 {
			continue
		}
		if text := strings.TrimSpace(ev.Text); text != "" {
			texts = append(texts, text)
		}
		segments = append(segments, Segment{
			Words:      ev.Assessment.Words,
			Fluency:    ev.Assessment.Fluency,
			Prosody:    ev.Assessment.Prosody,
			DurationMs: ev.DurationMs,
		})
	}
	if len(segments) == 0 {
		p.deps.Metrics.RecordRecognitionFailure(kindPronunciation, "no_speech")
		p.deps.Metrics.RecordIngestion(kindPronunciation, metrics.OutcomeFailed)
		return nil, model.NewNoSpeechRecognizedError()
	}

	score := ScoreAssessment(reference, segments)
	content := &model.PronunciationContent{
		ReferenceText:  req.ReferenceText,
		RecognizedText: strings.Join(texts, " "),
		Accuracy:       score.Accuracy,
		Fluency:        score.Fluency,
		Completeness:   score.Completeness,
		Prosody:        score.Prosody,
		Words:          score.Words,
		Audio:          normalized.Metadata(req.OriginalName, req.ContentType),
	}

	result := &AssessmentResult{Assessment: content}
	result.Outcome, err = p.persist(ctx, req, model.ItemKindPronunciation, normalized, content)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Translate はテキストを翻訳する。fromが空の場合は自動検出する。
// 認証済みの場合は翻訳結果を音声なしの保存項目として保存し、クォータは消費しない。
func (p *Pipeline) Translate(ctx context.Context, userID, text, from, to string) (*TranslationResult, error) {
	text = p.sanitize(text)
	if text == "" {
		return nil, model.NewInvalidInputError("text is required")
	}
	if err := validateLanguage("to", to, true); err != nil {
		return nil, err
	}
	if err := validateLanguage("from", from, false); err != nil {
		return nil, err
	}

	res, err := p.deps.Translator.Translate(ctx, text, from, to)
	if err != nil {
		p.deps.Metrics.RecordIngestion(kindTranslation, metrics.OutcomeFailed)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, model.NewTranslationFailedError(err.Error())
	}
	if strings.TrimSpace(res.Translation) == "" {
		p.deps.Metrics.RecordIngestion(kindTranslation, metrics.OutcomeFailed)
		return nil, model.NewTranslationFailedError("empty translation")
	}

	content := &model.TranslationContent{
		Text:             text,
		Translation:      res.Translation,
		Alternatives:     res.Alternatives,
		DetectedLanguage: res.DetectedLanguage,
	}
	result := &TranslationResult{Translation: content}
	if userID == "" {
		p.deps.Metrics.RecordIngestion(kindTranslation, metrics.OutcomeAnonymous)
		return result, nil
	}

	source := from
	if source == "" {
		source = res.DetectedLanguage
	}
	item, err := p.deps.Items.Create(ctx, userID, content, model.Languages{Source: source, Target: to}, nil)
	if err != nil {
		p.deps.Metrics.RecordIngestion(kindTranslation, metrics.OutcomeFailed)
		return nil, err
	}
	result.ItemID = item.ID
	result.IsSaved = true
	p.deps.Metrics.RecordIngestion(kindTranslation, metrics.OutcomeSaved)
	return result, nil
}

// persist は認証済みユーザーの音声と内容を保存する。匿名の場合は何もしない。
// 容量の計上は音声の保存に成功した後でのみ行い、計上に負けた場合や保存項目の作成に失敗した場合は
// 音声を削除して台帳を元に戻す。
func (p *Pipeline) persist(ctx context.Context, req AudioRequest, kind model.ItemKind, normalized *audio.Normalized, content model.Content) (Outcome, error) {
	var out Outcome
	metricKind := string(kind)
	if req.UserID == "" {
		p.deps.Metrics.RecordIngestion(metricKind, metrics.OutcomeAnonymous)
		return out, nil
	}
	userID := req.UserID
	size := normalized.SizeBytes
	langs := model.Languages{Source: req.Language}

	admitted, ledger, err := p.deps.Ledger.CanAdmit(ctx, userID, size)
	if err != nil {
		return out, err
	}
	if !admitted {
		out.QuotaExceeded = true
		out.Quota = summaryOf(ledger)
		p.deps.Metrics.RecordIngestion(metricKind, metrics.OutcomeQuotaExceeded)
		return out, nil
	}

	key := blob.UserKey(userID, metricKind, p.now(), wavName(req.OriginalName))
	if uploadErr := p.upload(ctx, key, normalized); uploadErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		slog.Error("音声ファイルの保存に失敗しました",
			slog.String("user_id", userID),
			slog.String("key", key),
			slog.String("policy", string(p.cfg.UploadFailurePolicy)),
			slog.String("error", uploadErr.Error()),
		)
		out.StorageError = true
		out.Quota = summaryOf(ledger)

		switch p.cfg.UploadFailurePolicy {
		case config.UploadFailureFail:
			p.deps.Metrics.RecordIngestion(metricKind, metrics.OutcomeFailed)
			return Outcome{}, model.NewStorageUploadFailedError(uploadErr.Error())
		case config.UploadFailureSaveWithoutAudio:
			item, err := p.deps.Items.Create(ctx, userID, content, langs, nil)
			if err != nil {
				return Outcome{}, err
			}
			out.ItemID = item.ID
			out.IsSaved = true
		}
		p.deps.Metrics.RecordIngestion(metricKind, metrics.OutcomeStorageError)
		return out, nil
	}

	// 以降の補償処理はリクエストが中断されても完了させる
	cleanupCtx := context.WithoutCancel(ctx)

	admitted, ledger, err = p.deps.Ledger.Debit(ctx, userID, size)
	if err != nil {
		p.deleteBlob(cleanupCtx, key)
		return out, err
	}
	if !admitted {
		// 判定から計上までの間に他のリクエストが容量を使い切った
		p.deleteBlob(cleanupCtx, key)
		out.QuotaExceeded = true
		out.Quota = summaryOf(ledger)
		p.deps.Metrics.RecordIngestion(metricKind, metrics.OutcomeQuotaExceeded)
		return out, nil
	}

	ref := &model.AudioRef{Key: key, SizeBytes: size, ContentType: audio.ContentType}
	item, err := p.deps.Items.Create(ctx, userID, content, langs, ref)
	if err != nil {
		if _, creditErr := p.deps.Ledger.Credit(cleanupCtx, userID, size); creditErr != nil {
			slog.Error("クォータの差し戻しに失敗しました",
				slog.String("user_id", userID),
				slog.Int64("size_bytes", size),
				slog.String("error", creditErr.Error()),
			)
		}
		p.deleteBlob(cleanupCtx, key)
		p.deps.Metrics.RecordIngestion(metricKind, metrics.OutcomeFailed)
		return Outcome{}, err
	}

	out.ItemID = item.ID
	out.IsSaved = true
	out.AudioSaved = true
	out.Quota = summaryOf(ledger)
	p.deps.Metrics.RecordUploadedBytes(size)
	p.deps.Metrics.RecordIngestion(metricKind, metrics.OutcomeSaved)

	slog.Info("音声を保存しました",
		slog.String("user_id", userID),
		slog.String("item_id", item.ID),
		slog.Int64("size_bytes", size),
	)
	return out, nil
}

func (p *Pipeline) upload(ctx context.Context, key string, normalized *audio.Normalized) error {
	f, err := normalized.Open()
	if err != nil {
		return fmt.Errorf("正規化済み音声のオープンに失敗しました: %w", err)
	}
	defer f.Close()
	return p.deps.Blobs.Upload(ctx, key, f, normalized.SizeBytes, audio.ContentType)
}

func (p *Pipeline) deleteBlob(ctx context.Context, key string) {
	if err := p.deps.Blobs.Delete(ctx, key); err != nil {
		slog.Warn("音声ファイルの削除に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) sanitize(s string) string {
	if p.deps.Sanitizer == nil {
		return strings.TrimSpace(s)
	}
	return p.deps.Sanitizer.Sanitize(s)
}

// wavName は保存する正規化済み音声のファイル名を返す。拡張子は.wavに揃える。
func wavName(originalName string) string {
	base := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	if base == "." || base == "/" {
		return "audio.wav"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".wav"
}

func summaryOf(ledger *model.QuotaLedger) *model.QuotaSummary {
	if ledger == nil {
		return nil
	}
	s := ledger.Summary()
	return &s
}

func validateAudioRequest(req AudioRequest) error {
	if req.Audio == nil {
		return model.NewInvalidInputError("audio is required")
	}
	return validateLanguage("language", req.Language, true)
}

// validateLanguage はBCP 47の言語タグとして解釈できるかを検証する。
func validateLanguage(field, tag string, required bool) error {
	if tag == "" {
		if required {
			return model.NewInvalidInputError(field + " is required")
		}
		return nil
	}
	if _, err := language.Parse(tag); err != nil {
		var valErr language.ValueError
		if errors.As(err, &valErr) {
			// 未知のサブタグは許容する
			return nil
		}
		return model.NewInvalidInputError(fmt.Sprintf("%s is not a valid language tag: %q", field, tag))
	}
	return nil
}
