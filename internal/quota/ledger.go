// Package quota はユーザーごとの音声保存量の台帳を管理する。
package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
)

// Config は台帳を新規作成するときの既定値。
type Config struct {
	DefaultQuotaBytes int64
	DefaultMaxFiles   int
}

// Ledger はクォータ台帳のサービス層。
// 残量の判定と増減はすべてリポジトリの単一SQL文で行い、上限の超過を防ぐ。
type Ledger struct {
	repo repository.QuotaRepository
	cfg  Config
}

// NewLedger はLedgerを生成する。既定値が0以下の場合はmodelの既定値を使う。
func NewLedger(repo repository.QuotaRepository, cfg Config) *Ledger {
	if cfg.DefaultQuotaBytes <= 0 {
		cfg.DefaultQuotaBytes = model.DefaultQuotaBytes
	}
	if cfg.DefaultMaxFiles <= 0 {
		cfg.DefaultMaxFiles = model.DefaultMaxFiles
	}
	return &Ledger{repo: repo, cfg: cfg}
}

// GetOrCreate はユーザーの台帳を返す。存在しない場合は既定値で作成する。
func (l *Ledger) GetOrCreate(ctx context.Context, userID string) (*model.QuotaLedger, error) {
	ledger, err := l.repo.GetOrCreate(ctx, userID, l.cfg.DefaultQuotaBytes, l.cfg.DefaultMaxFiles)
	if err != nil {
		return nil, fmt.Errorf("クォータ台帳の取得に失敗しました: %w", err)
	}
	return ledger, nil
}

// CanAdmit は sizeBytes の音声を追加で保存できるかを返す。
// 判定は直近にコミットされた台帳に基づく参考値で、確定はDebitで行う。
func (l *Ledger) CanAdmit(ctx context.Context, userID string, sizeBytes int64) (bool, *model.QuotaLedger, error) {
	if sizeBytes < 0 {
		return false, nil, fmt.Errorf("invalid size: %d", sizeBytes)
	}
	ledger, err := l.GetOrCreate(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	return ledger.CanAdmit(sizeBytes), ledger, nil
}

// Debit は残量がある場合のみ sizeBytes と1ファイル分を計上する。
// 残量が足りない場合は台帳を変更せず admitted=false を返す（エラーではない）。
func (l *Ledger) Debit(ctx context.Context, userID string, sizeBytes int64) (bool, *model.QuotaLedger, error) {
	if sizeBytes < 0 {
		return false, nil, fmt.Errorf("invalid size: %d", sizeBytes)
	}
	// 台帳が未作成の場合に条件付きUPDATEが空振りしないよう、先に作成しておく
	if _, err := l.GetOrCreate(ctx, userID); err != nil {
		return false, nil, err
	}

	ledger, admitted, err := l.repo.TryDebit(ctx, userID, sizeBytes)
	if err != nil {
		return false, nil, fmt.Errorf("クォータの計上に失敗しました: %w", err)
	}
	if !admitted {
		slog.Info("クォータ上限のため計上を見送りました",
			slog.String("user_id", userID),
			slog.Int64("size_bytes", sizeBytes),
			slog.Int64("used_bytes", ledger.UsedBytes),
			slog.Int("file_count", ledger.FileCount),
		)
	}
	return admitted, ledger, nil
}

// Credit は sizeBytes と1ファイル分を台帳から差し戻す。いずれも0未満にはならない。
func (l *Ledger) Credit(ctx context.Context, userID string, sizeBytes int64) (*model.QuotaLedger, error) {
	if sizeBytes < 0 {
		return nil, fmt.Errorf("invalid size: %d", sizeBytes)
	}
	ledger, err := l.repo.Credit(ctx, userID, sizeBytes)
	if err != nil {
		return nil, fmt.Errorf("クォータの差し戻しに失敗しました: %w", err)
	}
	return ledger, nil
}

// Summary はユーザーのクォータ要約を返す。
func (l *Ledger) Summary(ctx context.Context, userID string) (model.QuotaSummary, error) {
	ledger, err := l.GetOrCreate(ctx, userID)
	if err != nil {
		return model.QuotaSummary{}, err
	}
	return ledger.Summary(), nil
}
