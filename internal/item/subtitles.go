package item

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/asticode/go-astisub"

	"github.com/hitoshi/vocalearn/internal/model"
)

// SubtitleFormat は字幕の出力形式。
type SubtitleFormat string

const (
	SubtitleSRT    SubtitleFormat = "srt"
	SubtitleWebVTT SubtitleFormat = "vtt"
	SubtitleTTML   SubtitleFormat = "ttml"
)

// ContentType は形式ごとのContent-Typeを返す。
func (f SubtitleFormat) ContentType() string {
	switch f {
	case SubtitleWebVTT:
		return "text/vtt; charset=utf-8"
	case SubtitleTTML:
		return "application/ttml+xml; charset=utf-8"
	default:
		return "application/x-subrip; charset=utf-8"
	}
}

// ParseSubtitleFormat は文字列を字幕形式に変換する。空の場合はSRT。
func ParseSubtitleFormat(s string) (SubtitleFormat, error) {
	switch f := SubtitleFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return SubtitleSRT, nil
	case SubtitleSRT, SubtitleWebVTT, SubtitleTTML:
		return f, nil
	}
	return "", model.NewInvalidInputError(fmt.Sprintf("unsupported subtitle format: %q", s))
}

// Subtitles は書き起こし項目の区間を字幕としてwに書き出す。
// 区間がない場合は書き起こし全体を1つの字幕にする。
func (s *Store) Subtitles(ctx context.Context, userID, itemID string, format SubtitleFormat, w io.Writer) error {
	item, err := s.Get(ctx, userID, itemID)
	if err != nil {
		return err
	}
	transcript, ok := item.Content.(*model.TranscriptContent)
	if !ok {
		return model.NewInvalidInputError("subtitles are only available for speech_to_text items")
	}

	subs := BuildSubtitles(transcript)
	switch format {
	case SubtitleWebVTT:
		err = subs.WriteToWebVTT(w)
	case SubtitleTTML:
		err = subs.WriteToTTML(w)
	default:
		err = subs.WriteToSRT(w)
	}
	if err != nil {
		return fmt.Errorf("字幕の書き出しに失敗しました: %w", err)
	}
	return nil
}

// BuildSubtitles は書き起こしの区間から字幕を組み立てる。
func BuildSubtitles(t *model.TranscriptContent) *astisub.Subtitles {
	subs := astisub.NewSubtitles()

	segments := t.Segments
	if len(segments) == 0 {
		segments = []model.TranscriptSegment{{
			Text:       t.Transcription,
			DurationMs: t.Audio.DurationMs,
		}}
	}

	for _, seg := range segments {
		end := seg.OffsetMs + seg.DurationMs
		if end <= seg.OffsetMs {
			// 長さ不明の区間は1秒表示にする
			end = seg.OffsetMs + 1000
		}
		subs.Items = append(subs.Items, &astisub.Item{
			StartAt: time.Duration(seg.OffsetMs) * time.Millisecond,
			EndAt:   time.Duration(end) * time.Millisecond,
			Lines:   []astisub.Line{{Items: []astisub.LineItem{{Text: seg.Text}}}},
		})
	}
	return subs
}
