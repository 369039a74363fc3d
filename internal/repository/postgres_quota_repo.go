package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/vocalearn/internal/model"
)

// PostgresQuotaRepo はPostgreSQLを使用したクォータ台帳リポジトリ。
type PostgresQuotaRepo struct {
	db *sql.DB
}

// NewPostgresQuotaRepo はPostgresQuotaRepoを生成する。
func NewPostgresQuotaRepo(db *sql.DB) *PostgresQuotaRepo {
	return &PostgresQuotaRepo{db: db}
}

const quotaColumns = `user_id, used_bytes, quota_bytes, file_count, max_files, updated_at`

func scanQuota(s rowScanner) (*model.QuotaLedger, error) {
	q := &model.QuotaLedger{}
	if err := s.Scan(&q.UserID, &q.UsedBytes, &q.QuotaBytes, &q.FileCount, &q.MaxFiles, &q.UpdatedAt); err != nil {
		return nil, err
	}
	return q, nil
}

// GetOrCreate は台帳を取得する。存在しない場合は指定の既定値で作成する。
func (r *PostgresQuotaRepo) GetOrCreate(ctx context.Context, userID string, quotaBytes int64, maxFiles int) (*model.QuotaLedger, error) {
	db := conn(ctx, r.db)
	_, err := db.ExecContext(ctx,
		`INSERT INTO quota_ledgers (user_id, used_bytes, quota_bytes, file_count, max_files, updated_at)
		 VALUES ($1, 0, $2, 0, $3, now())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, quotaBytes, maxFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("クォータ台帳の作成に失敗しました: %w", err)
	}

	q, err := scanQuota(db.QueryRowContext(ctx,
		`SELECT `+quotaColumns+` FROM quota_ledgers WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("クォータ台帳の取得に失敗しました: %w", err)
	}
	return q, nil
}

// TryDebit は条件付きUPDATEで容量とファイル数を加算する。
// 判定と加算は1文で行われ、同一ユーザーの並行アップロードでも上限を超えない。
func (r *PostgresQuotaRepo) TryDebit(ctx context.Context, userID string, sizeBytes int64) (*model.QuotaLedger, bool, error) {
	db := conn(ctx, r.db)
	q, err := scanQuota(db.QueryRowContext(ctx,
		`UPDATE quota_ledgers
		 SET used_bytes = used_bytes + $2, file_count = file_count + 1, updated_at = now()
		 WHERE user_id = $1 AND used_bytes + $2 <= quota_bytes AND file_count < max_files
		 RETURNING `+quotaColumns,
		userID, sizeBytes,
	))
	if err == nil {
		return q, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("クォータの加算に失敗しました: %w", err)
	}

	// 条件不成立: 現在の台帳を返す
	q, err = scanQuota(db.QueryRowContext(ctx,
		`SELECT `+quotaColumns+` FROM quota_ledgers WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		return nil, false, fmt.Errorf("クォータ台帳の取得に失敗しました: %w", err)
	}
	return q, false, nil
}

// Credit は容量とファイル数を減算する。いずれも0未満にはならない。
func (r *PostgresQuotaRepo) Credit(ctx context.Context, userID string, sizeBytes int64) (*model.QuotaLedger, error) {
	q, err := scanQuota(conn(ctx, r.db).QueryRowContext(ctx,
		`UPDATE quota_ledgers
		 SET used_bytes = GREATEST(0, used_bytes - $2), file_count = GREATEST(0, file_count - 1), updated_at = now()
		 WHERE user_id = $1
		 RETURNING `+quotaColumns,
		userID, sizeBytes,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("quota ledger not found: %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("クォータの減算に失敗しました: %w", err)
	}
	return q, nil
}

// compile-time interface check
var _ QuotaRepository = (*PostgresQuotaRepo)(nil)
