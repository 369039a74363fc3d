package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/hitoshi/vocalearn/internal/model"
)

// 正規化後の形式。認識サービスはこの形式のみを受け付ける。
const (
	TargetSampleRate = 16000
	TargetBitDepth   = 16
	TargetChannels   = 1

	// ContentType は正規化後の音声のContent-Type。
	ContentType = "audio/wav"
)

const (
	wavFormatPCM = 1
	maxInt16     = 1<<15 - 1
	minInt16     = -1 << 15
)

// Normalized は正規化済み音声ファイル。
type Normalized struct {
	Path       string
	SizeBytes  int64
	DurationMs int64
	// SourceSampleRate, SourceChannels, SourceBitDepth は変換前の値。ffmpeg経由の場合は0。
	SourceSampleRate int
	SourceChannels   int
	SourceBitDepth   int
}

// Open は正規化済みファイルを開く。
func (n *Normalized) Open() (*os.File, error) {
	return os.Open(n.Path)
}

// Metadata は保存項目に記録するメタデータを返す。
func (n *Normalized) Metadata(originalName, originalContentType string) model.AudioMetadata {
	return model.AudioMetadata{
		OriginalName: originalName,
		ContentType:  originalContentType,
		SampleRate:   TargetSampleRate,
		Channels:     TargetChannels,
		BitDepth:     TargetBitDepth,
		DurationMs:   n.DurationMs,
		SizeBytes:    n.SizeBytes,
	}
}

// NormalizerConfig はNormalizerの設定。
type NormalizerConfig struct {
	// FFmpegPath はWAV以外の入力を変換するffmpegのパス。空の場合はWAV以外を受け付けない。
	FFmpegPath string
}

// Normalizer は音声をモノラル・16kHz・16bit PCMのWAVに変換する。
// PCM WAVはGoで直接変換し、それ以外の形式はffmpegで変換する。
type Normalizer struct {
	cfg NormalizerConfig
}

// NewNormalizer はNormalizerを生成する。
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Normalize はrの音声をws内の正規化済みWAVに変換する。
// デコード・変換に失敗した場合はAUDIO_PROCESSING_FAILEDを返す。
func (n *Normalizer) Normalize(ctx context.Context, ws *Workspace, r io.Reader, originalName string) (*Normalized, error) {
	inPath := ws.Path("input" + strings.ToLower(filepath.Ext(originalName)))
	size, err := writeFile(inPath, r)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, model.NewAudioProcessingError("audio is empty")
	}

	outPath := ws.Path("normalized.wav")
	src, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("音声ファイルのオープンに失敗しました: %w", err)
	}
	defer src.Close()

	dec := wav.NewDecoder(src)
	if dec.IsValidFile() && dec.WavAudioFormat == wavFormatPCM {
		return convertWAV(dec, outPath)
	}

	if n.cfg.FFmpegPath == "" {
		return nil, model.NewAudioProcessingError("unsupported audio format")
	}
	if err := n.transcode(ctx, inPath, outPath); err != nil {
		return nil, err
	}

	// ffmpegの出力もGoで読み直し、形式と長さを確定させる
	converted, err := os.Open(outPath)
	if err != nil {
		return nil, fmt.Errorf("変換済み音声のオープンに失敗しました: %w", err)
	}
	defer converted.Close()
	dec = wav.NewDecoder(converted)
	if !dec.IsValidFile() {
		return nil, model.NewAudioProcessingError("transcoder produced an invalid WAV file")
	}
	normalized, err := convertWAV(dec, ws.Path("canonical.wav"))
	if err != nil {
		return nil, err
	}
	normalized.SourceSampleRate, normalized.SourceChannels, normalized.SourceBitDepth = 0, 0, 0
	return normalized, nil
}

func (n *Normalizer) transcode(ctx context.Context, inPath, outPath string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, n.cfg.FFmpegPath,
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", inPath,
		"-ac", "1", "-ar", "16000", "-sample_fmt", "s16",
		"-f", "wav", outPath,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		slog.Warn("ffmpegによる音声変換に失敗しました",
			slog.String("error", err.Error()),
			slog.String("stderr", msg),
		)
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return fmt.Errorf("ffmpegを実行できません: %w", err)
		}
		return model.NewAudioProcessingError("could not decode audio")
	}
	return nil
}

// convertWAV はデコーダの音声をモノラル・16kHz・16bitに変換してoutPathに書き出す。
func convertWAV(dec *wav.Decoder, outPath string) (*Normalized, error) {
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, model.NewAudioProcessingError(fmt.Sprintf("could not decode WAV: %v", err))
	}
	channels := int(dec.NumChans)
	rate := int(dec.SampleRate)
	depth := int(dec.BitDepth)
	if channels <= 0 || rate <= 0 || depth <= 0 || depth > 32 {
		return nil, model.NewAudioProcessingError("unsupported WAV parameters")
	}

	mono := Downmix(buf.Data, channels)
	if len(mono) == 0 {
		return nil, model.NewAudioProcessingError("audio contains no samples")
	}
	samples := Resample(Requantize(mono, depth), rate, TargetSampleRate)

	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("正規化済み音声の作成に失敗しました: %w", err)
	}
	enc := wav.NewEncoder(out, TargetSampleRate, TargetBitDepth, TargetChannels, wavFormatPCM)
	werr := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: TargetChannels, SampleRate: TargetSampleRate},
		Data:           samples,
		SourceBitDepth: TargetBitDepth,
	})
	if cerr := enc.Close(); werr == nil {
		werr = cerr
	}
	if cerr := out.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return nil, fmt.Errorf("正規化済み音声の書き込みに失敗しました: %w", werr)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("正規化済み音声の取得に失敗しました: %w", err)
	}
	return &Normalized{
		Path:             outPath,
		SizeBytes:        info.Size(),
		DurationMs:       int64(len(samples)) * 1000 / TargetSampleRate,
		SourceSampleRate: rate,
		SourceChannels:   channels,
		SourceBitDepth:   depth,
	}, nil
}

// Downmix はインターリーブされたサンプルをチャンネル平均でモノラルにする。
func Downmix(data []int, channels int) []int {
	if channels <= 1 {
		return append([]int(nil), data...)
	}
	frames := len(data) / channels
	out := make([]int, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += data[i*channels+c]
		}
		out[i] = sum / channels
	}
	return out
}

// Requantize はbitDepthビットのサンプルを16ビットに変換する。
// 8ビットWAVは符号なしのため、中心値128を引いてから拡大する。
func Requantize(data []int, bitDepth int) []int {
	out := make([]int, len(data))
	for i, v := range data {
		switch {
		case bitDepth == 8:
			v = (v - 128) << 8
		case bitDepth > 16:
			v >>= bitDepth - 16
		case bitDepth < 16:
			v <<= 16 - bitDepth
		}
		out[i] = clamp16(v)
	}
	return out
}

// Resample は線形補間でサンプリングレートをfromからtoに変換する。
func Resample(data []int, from, to int) []int {
	if from == to || len(data) == 0 {
		return data
	}
	n := int(int64(len(data)) * int64(to) / int64(from))
	if n == 0 {
		n = 1
	}
	out := make([]int, n)
	ratio := float64(from) / float64(to)
	last := len(data) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = data[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = clamp16(int(float64(data[j]) + (float64(data[j+1])-float64(data[j]))*frac))
	}
	return out
}

func clamp16(v int) int {
	if v > maxInt16 {
		return maxInt16
	}
	if v < minInt16 {
		return minInt16
	}
	return v
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("音声ファイルの作成に失敗しました: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("音声ファイルの書き込みに失敗しました: %w", err)
	}
	return n, nil
}
