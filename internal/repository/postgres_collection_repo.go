package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/vocalearn/internal/model"
)

// PostgresCollectionRepo はPostgreSQLを使用したコレクションリポジトリ。
type PostgresCollectionRepo struct {
	db *sql.DB
}

// NewPostgresCollectionRepo はPostgresCollectionRepoを生成する。
func NewPostgresCollectionRepo(db *sql.DB) *PostgresCollectionRepo {
	return &PostgresCollectionRepo{db: db}
}

const collectionColumns = `id, user_id, name, description, icon, item_count, created_at, updated_at`

// qualifiedItemColumns はitemsをiとしてJOINする場合の列リスト。並びはitemColumnsと同じ。
const qualifiedItemColumns = `i.id, i.user_id, i.kind, i.content, i.source_language, i.target_language,
	i.audio_key, i.audio_size_bytes, i.audio_content_type, i.search_text,
	i.ease_factor, i.interval_days, i.repetitions, i.next_review_date, i.last_reviewed_at,
	i.created_at, i.updated_at`

func scanCollection(s rowScanner) (*model.Collection, error) {
	c := &model.Collection{}
	err := s.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.Icon, &c.ItemCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create はコレクションを作成する。
func (r *PostgresCollectionRepo) Create(ctx context.Context, c *model.Collection) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO collections (id, user_id, name, description, icon, item_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.Name, c.Description, c.Icon, c.ItemCount, c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("コレクションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのコレクションを取得する。見つからない場合はnilを返す。
func (r *PostgresCollectionRepo) FindByID(ctx context.Context, id string) (*model.Collection, error) {
	return r.findOne(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = $1`, id)
}

// FindByIDForUpdate は指定IDのコレクションを行ロック付きで取得する。
func (r *PostgresCollectionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Collection, error) {
	return r.findOne(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresCollectionRepo) findOne(ctx context.Context, query, id string) (*model.Collection, error) {
	c, err := scanCollection(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	return c, nil
}

// ListByUser はユーザーのコレクションを名前順で返す。
func (r *PostgresCollectionRepo) ListByUser(ctx context.Context, userID string) ([]*model.Collection, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE user_id = $1 ORDER BY name, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("コレクション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var collections []*model.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("コレクションのスキャンに失敗しました: %w", err)
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

// UpdateDetails は名前・説明・アイコンを更新する。
func (r *PostgresCollectionRepo) UpdateDetails(ctx context.Context, c *model.Collection) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE collections SET name = $2, description = $3, icon = $4, updated_at = $5 WHERE id = $1`,
		c.ID, c.Name, c.Description, c.Icon, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("コレクションの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete はコレクションを削除する。
func (r *PostgresCollectionRepo) Delete(ctx context.Context, id string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("コレクションの削除に失敗しました: %w", err)
	}
	return nil
}

// LockByItem は指定項目を含むコレクションをID順に行ロックし、そのIDを返す。
func (r *PostgresCollectionRepo) LockByItem(ctx context.Context, itemID string) ([]string, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT c.id FROM collections c
		 JOIN collection_items ci ON ci.collection_id = c.id
		 WHERE ci.item_id = $1
		 ORDER BY c.id
		 FOR UPDATE OF c`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("コレクションのロックに失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("コレクションIDのスキャンに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindMembership はコレクションと項目の対応を取得する。見つからない場合はnilを返す。
func (r *PostgresCollectionRepo) FindMembership(ctx context.Context, collectionID, itemID string) (*model.CollectionItem, error) {
	ci := &model.CollectionItem{}
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT collection_id, item_id, position, added_at
		 FROM collection_items WHERE collection_id = $1 AND item_id = $2`,
		collectionID, itemID,
	).Scan(&ci.CollectionID, &ci.ItemID, &ci.Position, &ci.AddedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コレクション項目の取得に失敗しました: %w", err)
	}
	return ci, nil
}

// MaxPosition はコレクション内の最大位置を返す。空の場合は0を返す。
func (r *PostgresCollectionRepo) MaxPosition(ctx context.Context, collectionID string) (int, error) {
	var maxPos int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM collection_items WHERE collection_id = $1`,
		collectionID,
	).Scan(&maxPos)
	if err != nil {
		return 0, fmt.Errorf("最大位置の取得に失敗しました: %w", err)
	}
	return maxPos, nil
}

// InsertMembership はコレクションと項目の対応を作成する。
func (r *PostgresCollectionRepo) InsertMembership(ctx context.Context, ci *model.CollectionItem) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO collection_items (collection_id, item_id, position, added_at)
		 VALUES ($1, $2, $3, $4)`,
		ci.CollectionID, ci.ItemID, ci.Position, ci.AddedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("コレクション項目の追加に失敗しました: %w", err)
	}
	return nil
}

// DeleteMembership はコレクションと項目の対応を削除する。
func (r *PostgresCollectionRepo) DeleteMembership(ctx context.Context, collectionID, itemID string) (bool, error) {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM collection_items WHERE collection_id = $1 AND item_id = $2`,
		collectionID, itemID,
	)
	if err != nil {
		return false, fmt.Errorf("コレクション項目の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// CompactPositions は位置を既存の相対順序のまま1..Nに詰め直す。
// (collection_id, position) の一意制約はDEFERRABLEのため、途中状態の重複はコミット時まで許容される。
func (r *PostgresCollectionRepo) CompactPositions(ctx context.Context, collectionID string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE collection_items ci
		 SET position = ranked.new_position
		 FROM (
		     SELECT item_id, ROW_NUMBER() OVER (ORDER BY position, added_at, item_id) AS new_position
		     FROM collection_items
		     WHERE collection_id = $1
		 ) ranked
		 WHERE ci.collection_id = $1
		   AND ci.item_id = ranked.item_id
		   AND ci.position <> ranked.new_position`,
		collectionID,
	)
	if err != nil {
		return fmt.Errorf("位置の詰め直しに失敗しました: %w", err)
	}
	return nil
}

// RecountItems はitem_countを再計算して保存し、その値を返す。
func (r *PostgresCollectionRepo) RecountItems(ctx context.Context, collectionID string) (int, error) {
	var count int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`UPDATE collections
		 SET item_count = (SELECT count(*) FROM collection_items WHERE collection_id = $1),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING item_count`,
		collectionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("項目数の再計算に失敗しました: %w", err)
	}
	return count, nil
}

// ListEntries はコレクション内の項目を位置順で返す。
func (r *PostgresCollectionRepo) ListEntries(ctx context.Context, collectionID string) ([]CollectionEntry, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT ci.position, ci.added_at, `+qualifiedItemColumns+`
		 FROM collection_items ci
		 JOIN items i ON i.id = ci.item_id
		 WHERE ci.collection_id = $1
		 ORDER BY ci.position`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("コレクション項目一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []CollectionEntry
	for rows.Next() {
		var entry CollectionEntry
		item, err := scanItem(prefixedScanner{rows: rows, prefix: []any{&entry.Position, &entry.AddedAt}})
		if err != nil {
			return nil, fmt.Errorf("コレクション項目のスキャンに失敗しました: %w", err)
		}
		entry.Item = item
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// prefixedScanner は先頭の列を追加の宛先に読み込んでから残りをscanItemに渡す。
type prefixedScanner struct {
	rows   *sql.Rows
	prefix []any
}

func (p prefixedScanner) Scan(dest ...any) error {
	return p.rows.Scan(append(p.prefix, dest...)...)
}

// compile-time interface check
var _ CollectionRepository = (*PostgresCollectionRepo)(nil)
