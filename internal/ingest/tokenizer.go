package ingest

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"
	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer は参照テキストを単語列に分割する。
type Tokenizer interface {
	Tokenize(text string) []string
}

// TokenizerFunc は関数をTokenizerとして扱う。
type TokenizerFunc func(text string) []string

// Tokenize はTokenizerインターフェースを実装する。
func (f TokenizerFunc) Tokenize(text string) []string { return f(text) }

// TokenizerFor は言語コードの主言語部分に応じたTokenizerを返す。
// zh はgseの単語分割、ja はkagomeの形態素解析、それ以外は空白区切り。
func TokenizerFor(language string) Tokenizer {
	switch primaryLanguage(language) {
	case "zh":
		return TokenizerFunc(tokenizeChinese)
	case "ja":
		return TokenizerFunc(tokenizeJapanese)
	}
	return TokenizerFunc(tokenizeWhitespace)
}

func primaryLanguage(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	return lang
}

// NormalizeWord は単語の照合キーを返す。
// NFKC正規化と小文字化のあと、前後の句読点と記号を取り除く。
func NormalizeWord(w string) string {
	w = strings.ToLower(norm.NFKC.String(w))
	return strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r)
	})
}

// tokenizeWhitespace は空白で分割し、句読点だけの語を除く。
func tokenizeWhitespace(text string) []string {
	fields := strings.Fields(norm.NFKC.String(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := NormalizeWord(f); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// keepWords は句読点や空白だけの語を取り除き、照合キーに変換する。
func keepWords(tokens []string) []string {
	words := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if w := NormalizeWord(t); w != "" {
			words = append(words, w)
		}
	}
	return words
}

var (
	gseOnce sync.Once
	gseSeg  *gse.Segmenter
)

// chineseSegmenter は辞書を読み込んだ分割器を返す。辞書の読み込みは初回のみ行う。
func chineseSegmenter() *gse.Segmenter {
	gseOnce.Do(func() {
		var seg gse.Segmenter
		if err := seg.LoadDict(); err != nil {
			slog.Error("中国語辞書の読み込みに失敗しました",
				slog.String("error", err.Error()),
			)
			return
		}
		gseSeg = &seg
	})
	return gseSeg
}

func tokenizeChinese(text string) []string {
	seg := chineseSegmenter()
	if seg == nil {
		return tokenizeWhitespace(text)
	}
	return keepWords(seg.Cut(norm.NFKC.String(text), true))
}

var (
	kagomeOnce sync.Once
	kagomeTok  *tokenizer.Tokenizer
)

// japaneseTokenizer はIPA辞書の形態素解析器を返す。初期化は初回のみ行う。
func japaneseTokenizer() *tokenizer.Tokenizer {
	kagomeOnce.Do(func() {
		t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
		if err != nil {
			slog.Error("形態素解析器の初期化に失敗しました",
				slog.String("error", err.Error()),
			)
			return
		}
		kagomeTok = t
	})
	return kagomeTok
}

func tokenizeJapanese(text string) []string {
	t := japaneseTokenizer()
	if t == nil {
		return tokenizeWhitespace(text)
	}
	return keepWords(t.Wakati(norm.NFKC.String(text)))
}
