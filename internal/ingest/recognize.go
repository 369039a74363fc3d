package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hitoshi/vocalearn/internal/audio"
	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/speech"
)

type startFunc func(ctx context.Context, r io.Reader) (speech.Session, error)

// recognize は正規化済み音声で認識セッションを開始し、終端イベントまでの確定結果を返す。
func (p *Pipeline) recognize(ctx context.Context, kind string, normalized *audio.Normalized, start startFunc) ([]speech.Event, error) {
	f, err := normalized.Open()
	if err != nil {
		return nil, fmt.Errorf("正規化済み音声のオープンに失敗しました: %w", err)
	}
	defer f.Close()

	began := time.Now()
	session, err := start(ctx, f)
	if err != nil {
		p.deps.Metrics.RecordRecognitionFailure(kind, "start")
		return nil, model.NewRecognitionFailedError(err.Error())
	}

	finals, err := p.collect(ctx, kind, session)
	p.deps.Metrics.RecordRecognitionLatency(kind, time.Since(began))
	return finals, err
}

// collect はセッションのイベントを終端まで読み、確定結果だけを蓄積する。
// 途中経過は読み捨てる。上限時間を超えた場合と呼び出し元がキャンセルした場合はセッションを中止する。
// セッションはどの経路でも閉じる。
func (p *Pipeline) collect(ctx context.Context, kind string, session speech.Session) ([]speech.Event, error) {
	defer session.Close()

	timer := time.NewTimer(p.cfg.RecognitionMaxWait)
	defer timer.Stop()

	var finals []speech.Event
	events := session.Events()
	for {
		select {
		case <-ctx.Done():
			p.deps.Metrics.RecordRecognitionFailure(kind, "canceled_by_caller")
			return nil, ctx.Err()

		case <-timer.C:
			slog.Warn("音声認識が待機上限時間内に完了しませんでした",
				slog.String("kind", kind),
				slog.Duration("max_wait", p.cfg.RecognitionMaxWait),
			)
			p.deps.Metrics.RecordRecognitionFailure(kind, "timeout")
			return nil, model.NewRecognitionTimeoutError(fmt.Sprintf("no terminal event within %s", p.cfg.RecognitionMaxWait))

		case ev, ok := <-events:
			if !ok {
				// 終端イベントなしに閉じられた場合は正常終了とみなす
				return finals, nil
			}
			switch ev.Type {
			case speech.EventRecognized:
				finals = append(finals, ev)
			case speech.EventCanceled:
				slog.Warn("音声認識がキャンセルされました",
					slog.String("kind", kind),
					slog.String("reason", ev.Reason),
				)
				p.deps.Metrics.RecordRecognitionFailure(kind, "canceled")
				return nil, model.NewRecognitionFailedError(ev.Reason)
			case speech.EventSessionStopped:
				return finals, nil
			}
		}
	}
}
