// Package speech は音声認識・発音評価サービスとのイベントストリーム契約を定義する。
package speech

import (
	"context"
	"io"

	"github.com/hitoshi/vocalearn/internal/model"
)

// EventType は認識セッションが発行するイベントの種別。
type EventType int

const (
	// EventRecognizing は途中経過。確定結果ではないため集計しない。
	EventRecognizing EventType = iota + 1
	// EventRecognized は確定した認識結果。
	EventRecognized
	// EventCanceled はサービス側のエラーやキャンセル。Reason に理由が入る。
	EventCanceled
	// EventSessionStopped はセッションの正常終了。
	EventSessionStopped
)

// String はログ出力用の名前を返す。
func (t EventType) String() string {
	switch t {
	case EventRecognizing:
		return "recognizing"
	case EventRecognized:
		return "recognized"
	case EventCanceled:
		return "canceled"
	case EventSessionStopped:
		return "session_stopped"
	}
	return "unknown"
}

// Assessment は1区間分の発音評価。
type Assessment struct {
	Accuracy     float64
	Fluency      float64
	Completeness float64
	Prosody      *float64
	// Words は認識された単語の評価。サービスが付けたエラー種別をそのまま持つ。
	Words []model.WordAssessment
}

// Event は認識セッションのイベント。
type Event struct {
	Type       EventType
	Text       string
	OffsetMs   int64
	DurationMs int64
	// Assessment は発音評価セッションの確定イベントでのみ設定される。
	Assessment *Assessment
	// Reason はEventCanceledの理由。
	Reason string
}

// Session は進行中の認識セッション。
// Events は有界チャネルで、終端イベント（EventCanceled または EventSessionStopped）の後に閉じられる。
type Session interface {
	Events() <-chan Event
	// Close はセッションを中止し、リソースを解放する。複数回呼んでもよい。
	Close() error
}

// Recognizer は音声書き起こしのセッションを開始する。
// audio は16kHz・16bit・モノラルのWAV。
type Recognizer interface {
	StartRecognition(ctx context.Context, audio io.Reader, language string) (Session, error)
}

// Assessor は参照テキストに対する発音評価のセッションを開始する。
type Assessor interface {
	StartAssessment(ctx context.Context, audio io.Reader, language, referenceText string) (Session, error)
}
