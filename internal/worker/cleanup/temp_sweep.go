package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/vocalearn/internal/audio"
	"github.com/hitoshi/vocalearn/internal/metrics"
)

// TempSweepJob は異常終了などで残った音声の一時作業ディレクトリを削除するジョブ。
// audio.WorkspacePrefix で始まるディレクトリのみを対象にし、他のファイルには触れない。
type TempSweepJob struct {
	dir     string
	logger  *slog.Logger
	metrics CleanupRecorder
	// MaxAge は更新からこの時間を過ぎた作業ディレクトリを削除する（デフォルト: 1時間）。
	MaxAge time.Duration
	now    func() time.Time
}

// NewTempSweepJob は新しいTempSweepJobを生成する。dirが空の場合はOSの一時ディレクトリを対象にする。
func NewTempSweepJob(dir string, logger *slog.Logger, recorder CleanupRecorder) *TempSweepJob {
	if dir == "" {
		dir = os.TempDir()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &TempSweepJob{
		dir:     dir,
		logger:  logger,
		metrics: recorder,
		MaxAge:  time.Hour,
		now:     time.Now,
	}
}

// Name はJobインターフェースを実装する。
func (j *TempSweepJob) Name() string { return "temp_sweep" }

// Run は古い作業ディレクトリを削除する。
// 個別の削除失敗はログに記録して続行し、ディレクトリ一覧の取得に失敗した場合のみエラーを返す。
func (j *TempSweepJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.Add(-j.MaxAge)

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		j.logger.Error("一時ディレクトリの読み取りに失敗しました",
			slog.String("dir", j.dir),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("一時ディレクトリの読み取りに失敗: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), audio.WorkspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(j.dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("作業ディレクトリの削除に失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	j.metrics.RecordCleanup(j.Name(), removed)
	j.logger.Info("一時作業ディレクトリを掃除しました",
		slog.Int("removed_count", removed),
		slog.Duration("max_age", j.MaxAge),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
