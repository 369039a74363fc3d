package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hitoshi/vocalearn/internal/model"
)

// recognitionPath はAzure Speechの短い音声向けREST APIのパス。
const recognitionPath = "/speech/recognition/conversation/cognitiveservices/v1"

// eventBufferSize はセッションのイベントチャネルの容量。
const eventBufferSize = 16

// ticksPerMs はAzureの時間単位（100ナノ秒）をミリ秒に変換する係数。
const ticksPerMs = 10000

// AzureConfig はAzureClientの設定。
type AzureConfig struct {
	Endpoint        string // 例: https://japaneast.stt.speech.microsoft.com
	SubscriptionKey string
}

// AzureClient はAzure Speechの短い音声向けREST APIを使うRecognizer/Assessor。
// 1リクエストの応答を認識イベント列に変換してセッションのチャネルに流す。
type AzureClient struct {
	httpClient *http.Client
	cfg        AzureConfig
}

// NewAzureClient はAzureClientを生成する。
func NewAzureClient(httpClient *http.Client, cfg AzureConfig) *AzureClient {
	return &AzureClient{
		httpClient: httpClient,
		cfg:        cfg,
	}
}

// StartRecognition は書き起こしセッションを開始する。
func (c *AzureClient) StartRecognition(ctx context.Context, audio io.Reader, language string) (Session, error) {
	return c.start(ctx, audio, language, "")
}

// StartAssessment は発音評価セッションを開始する。
func (c *AzureClient) StartAssessment(ctx context.Context, audio io.Reader, language, referenceText string) (Session, error) {
	if strings.TrimSpace(referenceText) == "" {
		return nil, fmt.Errorf("reference text is required")
	}
	return c.start(ctx, audio, language, referenceText)
}

func (c *AzureClient) start(ctx context.Context, audio io.Reader, language, referenceText string) (Session, error) {
	body, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("音声の読み込みに失敗しました: %w", err)
	}
	req, err := c.newRequest(body, language, referenceText)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &azureSession{
		events: make(chan Event, eventBufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(sctx, c.httpClient, req.WithContext(sctx), referenceText != "")
	return s, nil
}

// pronunciationAssessmentParams はPronunciation-Assessmentヘッダーの内容。
type pronunciationAssessmentParams struct {
	ReferenceText           string `json:"ReferenceText"`
	GradingSystem           string `json:"GradingSystem"`
	Granularity             string `json:"Granularity"`
	Dimension               string `json:"Dimension"`
	EnableMiscue            bool   `json:"EnableMiscue"`
	EnableProsodyAssessment bool   `json:"EnableProsodyAssessment"`
}

func (c *AzureClient) newRequest(body []byte, language, referenceText string) (*http.Request, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.Endpoint, "/") + recognitionPath)
	if err != nil {
		return nil, fmt.Errorf("invalid speech endpoint: %w", err)
	}
	q := u.Query()
	q.Set("language", language)
	q.Set("format", "detailed")
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json")

	if referenceText != "" {
		params, err := json.Marshal(pronunciationAssessmentParams{
			ReferenceText:           referenceText,
			GradingSystem:           "HundredMark",
			Granularity:             "Phoneme",
			Dimension:               "Comprehensive",
			EnableMiscue:            true,
			EnableProsodyAssessment: true,
		})
		if err != nil {
			return nil, err
		}
		req.Header.Set("Pronunciation-Assessment", base64.StdEncoding.EncodeToString(params))
	}
	return req, nil
}

// azureSession はREST応答をイベントに変換するセッション。
type azureSession struct {
	events    chan Event
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (s *azureSession) Events() <-chan Event {
	return s.events
}

// Close はリクエストを中止し、送信ゴルーチンの終了を待つ。
func (s *azureSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// emit はイベントを送る。セッションが中止された場合はfalseを返す。
func (s *azureSession) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *azureSession) run(ctx context.Context, client *http.Client, req *http.Request, assessment bool) {
	defer close(s.done)
	defer close(s.events)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.emit(ctx, Event{Type: EventCanceled, Reason: fmt.Sprintf("request failed: %v", err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.emit(ctx, Event{Type: EventCanceled, Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))})
		return
	}

	var result detailedResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.emit(ctx, Event{Type: EventCanceled, Reason: fmt.Sprintf("invalid response: %v", err)})
		return
	}

	for _, ev := range result.events(assessment) {
		if !s.emit(ctx, ev) {
			return
		}
	}
}

// detailedResult はformat=detailedの応答。
type detailedResult struct {
	RecognitionStatus string      `json:"RecognitionStatus"`
	DisplayText       string      `json:"DisplayText"`
	Offset            int64       `json:"Offset"`
	Duration          int64       `json:"Duration"`
	NBest             []nBestItem `json:"NBest"`
}

type scores struct {
	AccuracyScore     float64  `json:"AccuracyScore"`
	FluencyScore      float64  `json:"FluencyScore"`
	CompletenessScore float64  `json:"CompletenessScore"`
	ProsodyScore      *float64 `json:"ProsodyScore"`
}

type nBestItem struct {
	Confidence float64 `json:"Confidence"`
	Lexical    string  `json:"Lexical"`
	Display    string  `json:"Display"`
	scores
	PronunciationAssessment *scores     `json:"PronunciationAssessment"`
	Words                   []wordEntry `json:"Words"`
}

type wordScores struct {
	AccuracyScore float64 `json:"AccuracyScore"`
	ErrorType     string  `json:"ErrorType"`
}

type wordEntry struct {
	Word     string `json:"Word"`
	Offset   int64  `json:"Offset"`
	Duration int64  `json:"Duration"`
	wordScores
	PronunciationAssessment *wordScores `json:"PronunciationAssessment"`
}

// events は応答を確定イベントと終了イベントに変換する。
// 音声が検出されなかった場合は確定イベントなしで終了する。
func (r *detailedResult) events(assessment bool) []Event {
	switch r.RecognitionStatus {
	case "Success":
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return []Event{{Type: EventSessionStopped}}
	default:
		return []Event{{Type: EventCanceled, Reason: "recognition status: " + r.RecognitionStatus}}
	}

	text := r.DisplayText
	if len(r.NBest) > 0 && r.NBest[0].Display != "" {
		text = r.NBest[0].Display
	}
	ev := Event{
		Type:       EventRecognized,
		Text:       text,
		OffsetMs:   r.Offset / ticksPerMs,
		DurationMs: r.Duration / ticksPerMs,
	}
	if assessment && len(r.NBest) > 0 {
		ev.Assessment = r.NBest[0].assessment()
	}

	slog.Debug("音声認識の結果を受信しました",
		slog.String("status", r.RecognitionStatus),
		slog.Int("text_length", len(text)),
	)
	return []Event{ev, {Type: EventSessionStopped}}
}

func (n *nBestItem) assessment() *Assessment {
	sc := n.scores
	if n.PronunciationAssessment != nil {
		sc = *n.PronunciationAssessment
	}
	a := &Assessment{
		Accuracy:     sc.AccuracyScore,
		Fluency:      sc.FluencyScore,
		Completeness: sc.CompletenessScore,
		Prosody:      sc.ProsodyScore,
		Words:        make([]model.WordAssessment, 0, len(n.Words)),
	}
	for _, w := range n.Words {
		ws := w.wordScores
		if w.PronunciationAssessment != nil {
			ws = *w.PronunciationAssessment
		}
		et := model.WordErrorType(ws.ErrorType)
		if !et.Valid() {
			et = model.WordErrorNone
		}
		a.Words = append(a.Words, model.WordAssessment{
			Word:       w.Word,
			Accuracy:   ws.AccuracyScore,
			ErrorType:  et,
			OffsetMs:   w.Offset / ticksPerMs,
			DurationMs: w.Duration / ticksPerMs,
		})
	}
	return a
}

// compile-time interface check
var (
	_ Recognizer = (*AzureClient)(nil)
	_ Assessor   = (*AzureClient)(nil)
)
