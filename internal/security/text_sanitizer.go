// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーが入力したテキスト（コレクションの説明、参照テキスト、翻訳対象文）から
// HTMLマークアップを取り除き、プレーンテキストとして保存できる形にする。
// bluemondayのStrictPolicyを使用し、すべてのタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はテキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はマークアップを除去したプレーンテキストを返す。
	// タグは中身のテキストを残して除去し、script/styleは中身ごと除去する。
	// HTMLエンティティは元の文字に戻し、前後の空白を取り除く。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなため、1インスタンスを共有する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はマークアップを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
