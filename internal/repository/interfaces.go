// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/vocalearn/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 所有する items, collections, study_sessions, quota_ledgers, sessions はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ItemSearchFilter は保存項目検索の条件。
type ItemSearchFilter struct {
	Kind  *model.ItemKind // nilの場合は全種別
	Query string          // 空の場合は条件なし。search_textに対する大文字小文字を区別しない部分一致
	Limit int             // 0以下の場合は上限なし
}

// ItemRepository は保存項目の永続化インターフェース。
type ItemRepository interface {
	// Create は保存項目を作成する。
	Create(ctx context.Context, item *model.Item) error

	// FindByID は指定IDの保存項目を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Item, error)

	// FindByIDForUpdate は指定IDの保存項目を行ロック付きで取得する。
	// トランザクション内で呼び出すこと。見つからない場合はnilを返す。
	FindByIDForUpdate(ctx context.Context, id string) (*model.Item, error)

	// Search はユーザーの保存項目をcreated_at降順で検索する。
	Search(ctx context.Context, userID string, filter ItemSearchFilter) ([]*model.Item, error)

	// ListDue はnext_review_dateがasOf以前の保存項目を
	// next_review_date昇順、created_at昇順で返す。
	ListDue(ctx context.Context, userID string, asOf time.Time) ([]*model.Item, error)

	// UpdateSRS は復習スケジュール状態とlast_reviewed_at、updated_atを更新する。
	UpdateSRS(ctx context.Context, item *model.Item) error

	// Delete は指定IDの保存項目を削除する。
	// item_reviews と collection_items はCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// ListAudioKeysByUser はユーザーの保存済み音声キーを返す。
	ListAudioKeysByUser(ctx context.Context, userID string) ([]string, error)
}

// ReviewRepository は復習記録の永続化インターフェース。
// 復習記録は作成のみで、更新・個別削除は行わない。
type ReviewRepository interface {
	// Create は復習記録を作成する。
	Create(ctx context.Context, review *model.Review) error

	// ListByItem は保存項目の復習記録をreviewed_at昇順で返す。
	ListByItem(ctx context.Context, itemID string) ([]*model.Review, error)
}

// StudySessionRepository は学習セッションの永続化インターフェース。
type StudySessionRepository interface {
	// Create は学習セッションを作成する。
	Create(ctx context.Context, session *model.StudySession) error

	// FindByID は指定IDの学習セッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.StudySession, error)

	// FindByIDForUpdate は指定IDの学習セッションを行ロック付きで取得する。見つからない場合はnilを返す。
	FindByIDForUpdate(ctx context.Context, id string) (*model.StudySession, error)

	// ListByUser はユーザーの学習セッションをstarted_at降順で返す。
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.StudySession, error)

	// IncrementItemsReviewed はitems_reviewedを1増やす。
	IncrementItemsReviewed(ctx context.Context, id string) error

	// End はended_atを設定する。
	End(ctx context.Context, id string, endedAt time.Time) error

	// Delete は学習セッションを削除する。関連する復習記録のsession_idはNULLになる。
	Delete(ctx context.Context, id string) error

	// EndStaleBefore はstarted_atがbefore以前で未終了のセッションを終了し、件数を返す。
	EndStaleBefore(ctx context.Context, before, endedAt time.Time) (int64, error)
}

// CollectionEntry はコレクション内の保存項目とその位置。
type CollectionEntry struct {
	Position int
	AddedAt  time.Time
	Item     *model.Item
}

// CollectionRepository はコレクションの永続化インターフェース。
type CollectionRepository interface {
	// Create はコレクションを作成する。同名のコレクションが存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, collection *model.Collection) error

	// FindByID は指定IDのコレクションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Collection, error)

	// FindByIDForUpdate は指定IDのコレクションを行ロック付きで取得する。
	// 位置の読み書きはこのロックの内側で行う。見つからない場合はnilを返す。
	FindByIDForUpdate(ctx context.Context, id string) (*model.Collection, error)

	// ListByUser はユーザーのコレクションを名前順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Collection, error)

	// UpdateDetails は名前・説明・アイコンを更新する。同名のコレクションが存在する場合はErrDuplicateを返す。
	UpdateDetails(ctx context.Context, collection *model.Collection) error

	// Delete はコレクションを削除する。collection_itemsはCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// LockByItem は指定項目を含むコレクションを行ロックし、そのIDを返す。
	LockByItem(ctx context.Context, itemID string) ([]string, error)

	// FindMembership はコレクションと項目の対応を取得する。見つからない場合はnilを返す。
	FindMembership(ctx context.Context, collectionID, itemID string) (*model.CollectionItem, error)

	// MaxPosition はコレクション内の最大位置を返す。空の場合は0を返す。
	MaxPosition(ctx context.Context, collectionID string) (int, error)

	// InsertMembership はコレクションと項目の対応を作成する。既に存在する場合はErrDuplicateを返す。
	InsertMembership(ctx context.Context, ci *model.CollectionItem) error

	// DeleteMembership はコレクションと項目の対応を削除する。削除した場合はtrueを返す。
	DeleteMembership(ctx context.Context, collectionID, itemID string) (bool, error)

	// CompactPositions は位置を既存の相対順序のまま1..Nに詰め直す。
	CompactPositions(ctx context.Context, collectionID string) error

	// RecountItems はcollection_itemsからitem_countを再計算して保存し、その値を返す。
	RecountItems(ctx context.Context, collectionID string) (int, error)

	// ListEntries はコレクション内の項目を位置順で返す。
	ListEntries(ctx context.Context, collectionID string) ([]CollectionEntry, error)
}

// QuotaRepository はクォータ台帳の永続化インターフェース。
type QuotaRepository interface {
	// GetOrCreate は台帳を取得する。存在しない場合は指定の既定値で作成する。
	GetOrCreate(ctx context.Context, userID string, quotaBytes int64, maxFiles int) (*model.QuotaLedger, error)

	// TryDebit は used_bytes + size <= quota_bytes かつ file_count < max_files の場合のみ
	// used_bytesをsize、file_countを1増やす。条件を満たさない場合は変更せずadmitted=falseを返す。
	TryDebit(ctx context.Context, userID string, sizeBytes int64) (ledger *model.QuotaLedger, admitted bool, err error)

	// Credit はused_bytesをsize、file_countを1減らす。いずれも0未満にはならない。
	Credit(ctx context.Context, userID string, sizeBytes int64) (*model.QuotaLedger, error)
}
