// Package collection は保存項目の順序付きグループを管理する。
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
	"github.com/hitoshi/vocalearn/internal/security"
)

// 入力値の上限。
const (
	maxNameLength        = 100
	maxDescriptionLength = 1000
	maxIconLength        = 32
)

// Service はコレクションのサービス層。
// 位置の読み書きはコレクション行のロック内で行い、1..Nの連番を保つ。
type Service struct {
	tx          repository.TxRunner
	collections repository.CollectionRepository
	items       repository.ItemRepository
	sanitizer   security.TextSanitizer
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	tx repository.TxRunner,
	collections repository.CollectionRepository,
	items repository.ItemRepository,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		tx:          tx,
		collections: collections,
		items:       items,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// Create はコレクションを作成する。同名のコレクションがある場合はDUPLICATE_COLLECTION_NAMEを返す。
func (s *Service) Create(ctx context.Context, userID, name, description, icon string) (*model.Collection, error) {
	name, err := s.cleanName(name)
	if err != nil {
		return nil, err
	}
	description, icon, err = s.cleanDetails(description, icon)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &model.Collection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Description: description,
		Icon:        icon,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.collections.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateCollectionNameError(name)
		}
		return nil, err
	}

	slog.Info("コレクションを作成しました",
		slog.String("user_id", userID),
		slog.String("collection_id", c.ID),
	)
	return c, nil
}

// List はユーザーのコレクションを名前順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Collection, error) {
	cs, err := s.collections.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		cs = []*model.Collection{}
	}
	return cs, nil
}

// Get はユーザーが所有するコレクションを返す。
func (s *Service) Get(ctx context.Context, userID, collectionID string) (*model.Collection, error) {
	if !validID(collectionID) {
		return nil, model.NewCollectionNotFoundError(collectionID)
	}
	c, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.UserID != userID {
		return nil, model.NewCollectionNotFoundError(collectionID)
	}
	return c, nil
}

// Items はコレクション内の保存項目を位置順で返す。
func (s *Service) Items(ctx context.Context, userID, collectionID string) ([]repository.CollectionEntry, error) {
	if _, err := s.Get(ctx, userID, collectionID); err != nil {
		return nil, err
	}
	entries, err := s.collections.ListEntries(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []repository.CollectionEntry{}
	}
	return entries, nil
}

// Rename はコレクション名を変更する。
func (s *Service) Rename(ctx context.Context, userID, collectionID, name string) (*model.Collection, error) {
	name, err := s.cleanName(name)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, userID, collectionID, func(c *model.Collection) {
		c.Name = name
	})
}

// Describe は説明とアイコンを変更する。説明のマークアップは除去する。
func (s *Service) Describe(ctx context.Context, userID, collectionID, description, icon string) (*model.Collection, error) {
	description, icon, err := s.cleanDetails(description, icon)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, userID, collectionID, func(c *model.Collection) {
		c.Description = description
		c.Icon = icon
	})
}

func (s *Service) update(ctx context.Context, userID, collectionID string, apply func(c *model.Collection)) (*model.Collection, error) {
	if !validID(collectionID) {
		return nil, model.NewCollectionNotFoundError(collectionID)
	}

	var c *model.Collection
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.collections.FindByIDForUpdate(ctx, collectionID)
		if err != nil {
			return err
		}
		if c == nil || c.UserID != userID {
			return model.NewCollectionNotFoundError(collectionID)
		}
		apply(c)
		c.UpdatedAt = s.now().UTC()
		if err := s.collections.UpdateDetails(ctx, c); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.NewDuplicateCollectionNameError(c.Name)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Delete はコレクションを削除する。所属していた保存項目は削除しない。
func (s *Service) Delete(ctx context.Context, userID, collectionID string) error {
	if _, err := s.Get(ctx, userID, collectionID); err != nil {
		return err
	}
	if err := s.collections.Delete(ctx, collectionID); err != nil {
		return err
	}
	slog.Info("コレクションを削除しました",
		slog.String("user_id", userID),
		slog.String("collection_id", collectionID),
	)
	return nil
}

// AddItem は保存項目をコレクションの末尾に追加する。
func (s *Service) AddItem(ctx context.Context, userID, collectionID, itemID string) (*model.CollectionItem, error) {
	if !validID(collectionID) {
		return nil, model.NewCollectionNotFoundError(collectionID)
	}
	if !validID(itemID) {
		return nil, model.NewItemNotFoundError(itemID)
	}

	var ci *model.CollectionItem
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.collections.FindByIDForUpdate(ctx, collectionID)
		if err != nil {
			return err
		}
		if c == nil || c.UserID != userID {
			return model.NewCollectionNotFoundError(collectionID)
		}

		item, err := s.items.FindByID(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil || item.UserID != userID {
			return model.NewItemNotFoundError(itemID)
		}

		existing, err := s.collections.FindMembership(ctx, collectionID, itemID)
		if err != nil {
			return err
		}
		if existing != nil {
			return model.NewDuplicateCollectionItemError()
		}

		maxPos, err := s.collections.MaxPosition(ctx, collectionID)
		if err != nil {
			return err
		}
		ci = &model.CollectionItem{
			CollectionID: collectionID,
			ItemID:       itemID,
			Position:     maxPos + 1,
			AddedAt:      s.now().UTC(),
		}
		if err := s.collections.InsertMembership(ctx, ci); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.NewDuplicateCollectionItemError()
			}
			return err
		}
		_, err = s.collections.RecountItems(ctx, collectionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ci, nil
}

// RemoveItem は保存項目をコレクションから外し、残りの位置を1..Nに詰め直す。
func (s *Service) RemoveItem(ctx context.Context, userID, collectionID, itemID string) error {
	if !validID(collectionID) || !validID(itemID) {
		return model.NewCollectionItemNotFoundError(collectionID, itemID)
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.collections.FindByIDForUpdate(ctx, collectionID)
		if err != nil {
			return err
		}
		if c == nil || c.UserID != userID {
			return model.NewCollectionNotFoundError(collectionID)
		}

		removed, err := s.collections.DeleteMembership(ctx, collectionID, itemID)
		if err != nil {
			return err
		}
		if !removed {
			return model.NewCollectionItemNotFoundError(collectionID, itemID)
		}

		if _, err := s.collections.RecountItems(ctx, collectionID); err != nil {
			return err
		}
		return s.collections.CompactPositions(ctx, collectionID)
	})
}

func (s *Service) cleanName(name string) (string, error) {
	name = s.sanitizer.Sanitize(name)
	if name == "" {
		return "", model.NewInvalidInputError("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", model.NewInvalidInputError(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	return name, nil
}

func (s *Service) cleanDetails(description, icon string) (string, string, error) {
	description = s.sanitizer.Sanitize(description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", "", model.NewInvalidInputError(fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}
	icon = strings.TrimSpace(icon)
	if utf8.RuneCountInString(icon) > maxIconLength {
		return "", "", model.NewInvalidInputError(fmt.Sprintf("icon must be at most %d characters", maxIconLength))
	}
	return description, icon, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
