// Package cleanup はワーカーで定期実行する後片付けジョブを提供する。
// 放置された学習セッションの終了と、音声の一時作業ディレクトリの掃除を行う。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/vocalearn/internal/metrics"
)

// Job は定期実行されるジョブ。
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CleanupRecorder はジョブの処理件数を記録するインターフェース。
type CleanupRecorder interface {
	RecordCleanup(job string, removed int)
}

// StaleSessionCloser は放置された学習セッションを終了するリポジトリ操作。
// repository.StudySessionRepositoryの部分集合として定義する。
type StaleSessionCloser interface {
	EndStaleBefore(ctx context.Context, before, endedAt time.Time) (int64, error)
}

// StaleSessionJob は開始から一定時間を超えて終了していない学習セッションを終了するジョブ。
// 冪等: 対象がない場合でもエラーにならない。
type StaleSessionJob struct {
	sessions StaleSessionCloser
	logger   *slog.Logger
	metrics  CleanupRecorder
	// After は開始からこの時間を過ぎた未終了セッションを対象にする（デフォルト: 12時間）。
	After time.Duration
	now   func() time.Time
}

// NewStaleSessionJob は新しいStaleSessionJobを生成する。
func NewStaleSessionJob(sessions StaleSessionCloser, logger *slog.Logger, recorder CleanupRecorder) *StaleSessionJob {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &StaleSessionJob{
		sessions: sessions,
		logger:   logger,
		metrics:  recorder,
		After:    12 * time.Hour,
		now:      time.Now,
	}
}

// Name はJobインターフェースを実装する。
func (j *StaleSessionJob) Name() string { return "stale_sessions" }

// Run は放置された学習セッションを終了する。終了時刻は実行時刻とする。
func (j *StaleSessionJob) Run(ctx context.Context) error {
	start := j.now()
	before := start.Add(-j.After)

	ended, err := j.sessions.EndStaleBefore(ctx, before, start.UTC())
	if err != nil {
		j.logger.Error("学習セッションの終了処理に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("after", j.After),
		)
		return fmt.Errorf("学習セッションの終了処理に失敗: %w", err)
	}

	j.metrics.RecordCleanup(j.Name(), int(ended))
	j.logger.Info("放置された学習セッションを終了しました",
		slog.Int64("ended_count", ended),
		slog.Duration("after", j.After),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// RunPeriodically はjobを起動直後に1回実行し、以降intervalごとに実行する。
// ctxがキャンセルされると戻る。ジョブの失敗はログに記録して次回に持ち越す。
func RunPeriodically(ctx context.Context, logger *slog.Logger, interval time.Duration, job Job) {
	runOnce := func() {
		if err := job.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("cleanup job failed",
				slog.String("job", job.Name()),
				slog.String("error", err.Error()),
			)
		}
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
