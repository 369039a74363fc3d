package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content は保存項目の種別ごとの内容を表す。
// 実装は TranslationContent, TranscriptContent, PronunciationContent の3種のみ。
type Content interface {
	Kind() ItemKind
	// Validate は種別ごとのスキーマを満たすかを検証する。
	Validate() error
	// TextFields は検索対象の text, translation, transcription を返す。存在しないものは空文字。
	TextFields() (text, translation, transcription string)
}

// TranslationContent は翻訳結果の内容。
type TranslationContent struct {
	Text             string   `json:"text"`
	Translation      string   `json:"translation"`
	Alternatives     []string `json:"alternatives,omitempty"`
	DetectedLanguage string   `json:"detected_language,omitempty"`
}

// Kind はContentインターフェースを実装する。
func (c *TranslationContent) Kind() ItemKind { return ItemKindTranslation }

// Validate はtextとtranslationが空でないことを検証する。
func (c *TranslationContent) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return NewInvalidContentError(c.Kind(), "text は必須です")
	}
	if strings.TrimSpace(c.Translation) == "" {
		return NewInvalidContentError(c.Kind(), "translation は必須です")
	}
	return nil
}

// TextFields はContentインターフェースを実装する。
func (c *TranslationContent) TextFields() (string, string, string) {
	return c.Text, c.Translation, ""
}

// TranscriptSegment は書き起こしの確定区間。
type TranscriptSegment struct {
	Text       string `json:"text"`
	OffsetMs   int64  `json:"offset_ms"`
	DurationMs int64  `json:"duration_ms"`
}

// AudioMetadata は取り込んだ音声のメタデータ。
type AudioMetadata struct {
	OriginalName string `json:"original_name,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	BitDepth     int    `json:"bit_depth,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
}

// TranscriptContent は音声書き起こしの内容。
type TranscriptContent struct {
	Transcription string              `json:"transcription"`
	Segments      []TranscriptSegment `json:"segments,omitempty"`
	Audio         AudioMetadata       `json:"audio"`
}

// Kind はContentインターフェースを実装する。
func (c *TranscriptContent) Kind() ItemKind { return ItemKindTranscript }

// Validate はtranscriptionが空でないことを検証する。
func (c *TranscriptContent) Validate() error {
	if strings.TrimSpace(c.Transcription) == "" {
		return NewInvalidContentError(c.Kind(), "transcription は必須です")
	}
	return nil
}

// TextFields はContentインターフェースを実装する。
func (c *TranscriptContent) TextFields() (string, string, string) {
	return "", "", c.Transcription
}

// WordErrorType は単語ごとの発音評価エラー種別。
type WordErrorType string

const (
	WordErrorNone             WordErrorType = "None"
	WordErrorOmission         WordErrorType = "Omission"
	WordErrorInsertion        WordErrorType = "Insertion"
	WordErrorMispronunciation WordErrorType = "Mispronunciation"
	WordErrorUnexpectedBreak  WordErrorType = "UnexpectedBreak"
	WordErrorMissingBreak     WordErrorType = "MissingBreak"
	WordErrorMonotone         WordErrorType = "Monotone"
)

// Valid は定義済みのエラー種別かを返す。
func (t WordErrorType) Valid() bool {
	switch t {
	case WordErrorNone, WordErrorOmission, WordErrorInsertion, WordErrorMispronunciation,
		WordErrorUnexpectedBreak, WordErrorMissingBreak, WordErrorMonotone:
		return true
	}
	return false
}

// WordAssessment は単語単位の発音評価。
type WordAssessment struct {
	Word       string        `json:"word"`
	Accuracy   float64       `json:"accuracy"`
	ErrorType  WordErrorType `json:"error_type"`
	OffsetMs   int64         `json:"offset_ms,omitempty"`
	DurationMs int64         `json:"duration_ms,omitempty"`
}

// PronunciationContent は発音評価の内容。
type PronunciationContent struct {
	ReferenceText  string           `json:"reference_text"`
	RecognizedText string           `json:"recognized_text"`
	Accuracy       float64          `json:"accuracy"`
	Fluency        float64          `json:"fluency"`
	Completeness   float64          `json:"completeness"`
	Prosody        *float64         `json:"prosody,omitempty"`
	Words          []WordAssessment `json:"words"`
	Audio          AudioMetadata    `json:"audio"`
}

// Kind はContentインターフェースを実装する。
func (c *PronunciationContent) Kind() ItemKind { return ItemKindPronunciation }

// Validate は参照テキスト、スコア範囲、単語リストを検証する。
func (c *PronunciationContent) Validate() error {
	if strings.TrimSpace(c.ReferenceText) == "" {
		return NewInvalidContentError(c.Kind(), "reference_text は必須です")
	}
	scores := map[string]float64{
		"accuracy":     c.Accuracy,
		"fluency":      c.Fluency,
		"completeness": c.Completeness,
	}
	if c.Prosody != nil {
		scores["prosody"] = *c.Prosody
	}
	for name, v := range scores {
		if v < 0 || v > 100 {
			return NewInvalidContentError(c.Kind(), fmt.Sprintf("%s は0から100の範囲で指定してください: %v", name, v))
		}
	}
	if len(c.Words) == 0 {
		return NewInvalidContentError(c.Kind(), "words は1件以上必要です")
	}
	for i, w := range c.Words {
		if !w.ErrorType.Valid() {
			return NewInvalidContentError(c.Kind(), fmt.Sprintf("words[%d] のエラー種別が不正です: %q", i, w.ErrorType))
		}
	}
	return nil
}

// TextFields はContentインターフェースを実装する。
// 発音評価は text/translation/transcription を持たない。
func (c *PronunciationContent) TextFields() (string, string, string) {
	return "", "", ""
}

// EncodeContent は内容をJSONに変換する。
func EncodeContent(c Content) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("content is nil")
	}
	return json.Marshal(c)
}

// DecodeContent は種別に応じてJSONから内容を復元する。
func DecodeContent(kind ItemKind, raw []byte) (Content, error) {
	var c Content
	switch kind {
	case ItemKindTranslation:
		c = &TranslationContent{}
	case ItemKindTranscript:
		c = &TranscriptContent{}
	case ItemKindPronunciation:
		c = &PronunciationContent{}
	default:
		return nil, fmt.Errorf("unknown item kind: %q", kind)
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("failed to decode %s content: %w", kind, err)
	}
	return c, nil
}
