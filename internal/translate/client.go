// Package translate はテキスト翻訳サービスのクライアントを提供する。
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// apiVersion はAzure Translatorのバージョン。
	apiVersion = "3.0"
	// maxTextLength は1リクエストで翻訳するテキストの最大文字数。
	maxTextLength = 10000
)

// Result は翻訳結果。
type Result struct {
	Translation      string
	Alternatives     []string
	DetectedLanguage string
}

// Translator はテキストを翻訳する。
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (*Result, error)
}

// Config はClientの設定。
type Config struct {
	Endpoint        string // 例: https://api.cognitive.microsofttranslator.com
	SubscriptionKey string
	Region          string
}

// Client はAzure Translator v3のクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
	}
}

type requestItem struct {
	Text string `json:"Text"`
}

type responseItem struct {
	DetectedLanguage *struct {
		Language string  `json:"language"`
		Score    float64 `json:"score"`
	} `json:"detectedLanguage"`
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// Translate はtextをtoの言語に翻訳する。fromが空の場合は言語を自動検出する。
// サービスのエラーはそのまま返し、APIErrorへの変換は呼び出し側で行う。
func (c *Client) Translate(ctx context.Context, text, from, to string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is empty")
	}
	if len([]rune(text)) > maxTextLength {
		return nil, fmt.Errorf("テキストが上限を超えています: %d > %d", len([]rune(text)), maxTextLength)
	}
	if to == "" {
		return nil, fmt.Errorf("target language is empty")
	}

	reqURL, err := url.Parse(strings.TrimRight(c.cfg.Endpoint, "/") + "/translate")
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	q.Set("api-version", apiVersion)
	q.Set("to", to)
	if from != "" {
		q.Set("from", from)
	}
	reqURL.RawQuery = q.Encode()

	body, err := json.Marshal([]requestItem{{Text: text}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	if c.cfg.Region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", c.cfg.Region)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("翻訳APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("翻訳APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("翻訳APIがステータス %d を返しました: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var items []responseItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if len(items) == 0 || len(items[0].Translations) == 0 {
		return nil, fmt.Errorf("翻訳結果が空です")
	}

	item := items[0]
	result := &Result{Translation: item.Translations[0].Text}
	for _, tr := range item.Translations[1:] {
		if tr.Text != "" && tr.Text != result.Translation {
			result.Alternatives = append(result.Alternatives, tr.Text)
		}
	}
	if item.DetectedLanguage != nil {
		result.DetectedLanguage = item.DetectedLanguage.Language
	}
	return result, nil
}

// compile-time interface check
var _ Translator = (*Client)(nil)
