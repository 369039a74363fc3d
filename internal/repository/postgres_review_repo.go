package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/vocalearn/internal/model"
)

// PostgresReviewRepo はPostgreSQLを使用した復習記録リポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

// Create は復習記録を作成する。
func (r *PostgresReviewRepo) Create(ctx context.Context, review *model.Review) error {
	var sessionID sql.NullString
	if review.SessionID != nil {
		sessionID = nullString(*review.SessionID)
	}
	var timeSpent sql.NullInt64
	if review.TimeSpentSeconds != nil {
		timeSpent = sql.NullInt64{Int64: int64(*review.TimeSpentSeconds), Valid: true}
	}

	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO item_reviews (id, item_id, session_id, quality, was_correct, time_spent_seconds, reviewed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		review.ID, review.ItemID, sessionID, review.Quality, review.WasCorrect, timeSpent, review.ReviewedAt,
	)
	if err != nil {
		return fmt.Errorf("復習記録の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByItem は保存項目の復習記録をreviewed_at昇順で返す。
func (r *PostgresReviewRepo) ListByItem(ctx context.Context, itemID string) ([]*model.Review, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT id, item_id, session_id, quality, was_correct, time_spent_seconds, reviewed_at
		 FROM item_reviews
		 WHERE item_id = $1
		 ORDER BY reviewed_at ASC, id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("復習記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var reviews []*model.Review
	for rows.Next() {
		rv := &model.Review{}
		var sessionID sql.NullString
		var timeSpent sql.NullInt64
		if err := rows.Scan(&rv.ID, &rv.ItemID, &sessionID, &rv.Quality, &rv.WasCorrect, &timeSpent, &rv.ReviewedAt); err != nil {
			return nil, fmt.Errorf("復習記録のスキャンに失敗しました: %w", err)
		}
		if sessionID.Valid {
			s := sessionID.String
			rv.SessionID = &s
		}
		if timeSpent.Valid {
			v := int(timeSpent.Int64)
			rv.TimeSpentSeconds = &v
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
