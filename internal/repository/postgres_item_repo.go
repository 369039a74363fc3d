package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/vocalearn/internal/model"
)

// PostgresItemRepo はPostgreSQLを使用した保存項目リポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

const itemColumns = `id, user_id, kind, content, source_language, target_language,
	audio_key, audio_size_bytes, audio_content_type, search_text,
	ease_factor, interval_days, repetitions, next_review_date, last_reviewed_at,
	created_at, updated_at`

// rowScanner は *sql.Row と *sql.Rows の共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanItem は1行を model.Item に変換する。
func scanItem(s rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var kind string
	var content []byte
	var sourceLang, targetLang, audioKey, audioContentType sql.NullString
	var audioSize sql.NullInt64
	var nextReview, lastReviewed sql.NullTime

	err := s.Scan(
		&item.ID, &item.UserID, &kind, &content, &sourceLang, &targetLang,
		&audioKey, &audioSize, &audioContentType, &item.SearchText,
		&item.SRS.EaseFactor, &item.SRS.IntervalDays, &item.SRS.Repetitions, &nextReview, &lastReviewed,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Kind = model.ItemKind(kind)
	item.Content, err = model.DecodeContent(item.Kind, content)
	if err != nil {
		return nil, err
	}
	item.Languages = model.Languages{
		Source: nullStringValue(sourceLang),
		Target: nullStringValue(targetLang),
	}
	if audioKey.Valid {
		item.Audio = &model.AudioRef{
			Key:         audioKey.String,
			SizeBytes:   audioSize.Int64,
			ContentType: nullStringValue(audioContentType),
		}
	}
	if nextReview.Valid {
		d := nextReview.Time.UTC()
		item.SRS.NextReviewDate = &d
	}
	if lastReviewed.Valid {
		item.LastReviewedAt = &lastReviewed.Time
	}
	return item, nil
}

// Create は保存項目を作成する。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.Item) error {
	content, err := model.EncodeContent(item.Content)
	if err != nil {
		return fmt.Errorf("保存項目の内容の変換に失敗しました: %w", err)
	}

	var audioKey, audioContentType sql.NullString
	var audioSize sql.NullInt64
	if item.Audio != nil {
		audioKey = nullString(item.Audio.Key)
		audioSize = sql.NullInt64{Int64: item.Audio.SizeBytes, Valid: true}
		audioContentType = nullString(item.Audio.ContentType)
	}

	_, err = conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO items (id, user_id, kind, content, source_language, target_language,
		                    audio_key, audio_size_bytes, audio_content_type, search_text,
		                    ease_factor, interval_days, repetitions, next_review_date, last_reviewed_at,
		                    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::date, $15, $16, $17)`,
		item.ID, item.UserID, string(item.Kind), content,
		nullString(item.Languages.Source), nullString(item.Languages.Target),
		audioKey, audioSize, audioContentType, item.SearchText,
		item.SRS.EaseFactor, item.SRS.IntervalDays, item.SRS.Repetitions,
		dateParam(item.SRS.NextReviewDate), item.LastReviewedAt,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("保存項目の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの保存項目を取得する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	return r.findOne(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
}

// FindByIDForUpdate は指定IDの保存項目を行ロック付きで取得する。
func (r *PostgresItemRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Item, error) {
	return r.findOne(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresItemRepo) findOne(ctx context.Context, query, id string) (*model.Item, error) {
	item, err := scanItem(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("保存項目の取得に失敗しました: %w", err)
	}
	return item, nil
}

// Search はユーザーの保存項目をcreated_at降順で検索する。
func (r *PostgresItemRepo) Search(ctx context.Context, userID string, filter ItemSearchFilter) ([]*model.Item, error) {
	var sb strings.Builder
	args := []any{userID}
	sb.WriteString(`SELECT ` + itemColumns + ` FROM items WHERE user_id = $1`)

	if filter.Kind != nil {
		args = append(args, string(*filter.Kind))
		fmt.Fprintf(&sb, ` AND kind = $%d`, len(args))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		fmt.Fprintf(&sb, ` AND search_text ILIKE $%d ESCAPE '\'`, len(args))
	}
	sb.WriteString(` ORDER BY created_at DESC, id`)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	return r.queryItems(ctx, sb.String(), args...)
}

// ListDue はnext_review_dateがasOf以前の保存項目を返す。
func (r *PostgresItemRepo) ListDue(ctx context.Context, userID string, asOf time.Time) ([]*model.Item, error) {
	return r.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE user_id = $1 AND next_review_date IS NOT NULL AND next_review_date <= $2::date
		 ORDER BY next_review_date ASC, created_at ASC, id`,
		userID, asOf.UTC().Format(time.DateOnly),
	)
}

func (r *PostgresItemRepo) queryItems(ctx context.Context, query string, args ...any) ([]*model.Item, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("保存項目一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("保存項目のスキャンに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("保存項目一覧の読み取りに失敗しました: %w", err)
	}
	return items, nil
}

// UpdateSRS は復習スケジュール状態を更新する。
func (r *PostgresItemRepo) UpdateSRS(ctx context.Context, item *model.Item) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE items
		 SET ease_factor = $2, interval_days = $3, repetitions = $4,
		     next_review_date = $5::date, last_reviewed_at = $6, updated_at = $7
		 WHERE id = $1`,
		item.ID, item.SRS.EaseFactor, item.SRS.IntervalDays, item.SRS.Repetitions,
		dateParam(item.SRS.NextReviewDate), item.LastReviewedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("復習スケジュールの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("item not found: %s", item.ID)
	}
	return nil
}

// Delete は指定IDの保存項目を削除する。
func (r *PostgresItemRepo) Delete(ctx context.Context, id string) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("保存項目の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("item not found: %s", id)
	}
	return nil
}

// ListAudioKeysByUser はユーザーの保存済み音声キーを返す。
func (r *PostgresItemRepo) ListAudioKeysByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT audio_key FROM items WHERE user_id = $1 AND audio_key IS NOT NULL`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("音声キー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("音声キーのスキャンに失敗しました: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// dateParam は日付をDATE列向けの文字列に変換する。nilはNULLになる。
func dateParam(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.DateOnly)
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
