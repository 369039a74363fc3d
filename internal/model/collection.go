package model

import "time"

// Collection はユーザーが作成する保存項目の順序付きグループ。
// ItemCount はメンバー変更のたびに collection_items から再計算される。
type Collection struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Icon        string
	ItemCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CollectionItem はコレクションと保存項目の対応。
// Position はコレクション内で1始まりの連番。
type CollectionItem struct {
	CollectionID string
	ItemID       string
	Position     int
	AddedAt      time.Time
}
