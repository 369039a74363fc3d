// Package item は保存項目の作成・検索・削除を提供する。
package item

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/vocalearn/internal/blob"
	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
)

// QuotaCrediter はクォータ台帳への差し戻しを行う。
type QuotaCrediter interface {
	Credit(ctx context.Context, userID string, sizeBytes int64) (*model.QuotaLedger, error)
}

// AudioStore は保存済み音声の読み出しと削除を行う。
type AudioStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// maxSearchResults は検索結果の最大件数。
const maxSearchResults = 200

// Store は保存項目のサービス層。
type Store struct {
	tx          repository.TxRunner
	items       repository.ItemRepository
	collections repository.CollectionRepository
	ledger      QuotaCrediter
	audio       AudioStore
	now         func() time.Time
}

// NewStore はStoreを生成する。
func NewStore(
	tx repository.TxRunner,
	items repository.ItemRepository,
	collections repository.CollectionRepository,
	ledger QuotaCrediter,
	audio AudioStore,
) *Store {
	return &Store{
		tx:          tx,
		items:       items,
		collections: collections,
		ledger:      ledger,
		audio:       audio,
		now:         time.Now,
	}
}

// ExtractText は検索用テキストを返す。
// text, translation, transcription のうち存在するものをこの順に空白で連結する。
func ExtractText(c model.Content) string {
	if c == nil {
		return ""
	}
	text, translation, transcription := c.TextFields()
	parts := make([]string, 0, 3)
	for _, s := range []string{text, translation, transcription} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Create は内容を検証して保存項目を作成する。
// audioが指定される場合、その容量は呼び出し側で既に台帳に計上済みであること。
func (s *Store) Create(ctx context.Context, userID string, content model.Content, langs model.Languages, audio *model.AudioRef) (*model.Item, error) {
	if content == nil {
		return nil, model.NewInvalidInputError("content is required")
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}
	if audio != nil && (audio.Key == "" || audio.SizeBytes < 0) {
		return nil, model.NewInvalidInputError("invalid audio reference")
	}

	now := s.now().UTC()
	item := &model.Item{
		ID:         uuid.New().String(),
		UserID:     userID,
		Kind:       content.Kind(),
		Content:    content,
		Languages:  langs,
		Audio:      audio,
		SearchText: ExtractText(content),
		SRS:        model.NewSRSState(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	slog.Info("保存項目を作成しました",
		slog.String("user_id", userID),
		slog.String("item_id", item.ID),
		slog.String("kind", string(item.Kind)),
		slog.Bool("has_audio", item.HasAudio()),
	)
	return item, nil
}

// Search はユーザーの保存項目を新しい順に検索する。
// queryは検索用テキストに対して大文字小文字を区別しない部分一致で照合する。
func (s *Store) Search(ctx context.Context, userID string, kind *model.ItemKind, query string) ([]*model.Item, error) {
	if kind != nil && !kind.Valid() {
		return nil, model.NewInvalidInputError(fmt.Sprintf("unknown item kind: %q", *kind))
	}
	items, err := s.items.Search(ctx, userID, repository.ItemSearchFilter{
		Kind:  kind,
		Query: query,
		Limit: maxSearchResults,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.Item{}
	}
	return items, nil
}

// Get はユーザーが所有する保存項目を返す。
func (s *Store) Get(ctx context.Context, userID, itemID string) (*model.Item, error) {
	if !validID(itemID) {
		return nil, model.NewItemNotFoundError(itemID)
	}
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.UserID != userID {
		return nil, model.NewItemNotFoundError(itemID)
	}
	return item, nil
}

// Delete は保存項目を削除する。
// 1トランザクション内で、音声容量の差し戻し、所属コレクションの位置詰めと件数再計算を行う。
// 音声オブジェクトはコミット後に削除し、失敗はログに残すのみとする。
func (s *Store) Delete(ctx context.Context, userID, itemID string) error {
	if !validID(itemID) {
		return model.NewItemNotFoundError(itemID)
	}

	var audioKey string
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		item, err := s.items.FindByIDForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil || item.UserID != userID {
			return model.NewItemNotFoundError(itemID)
		}

		// 行を削除する前に台帳を差し戻す
		if item.HasAudio() {
			if _, err := s.ledger.Credit(ctx, userID, item.Audio.SizeBytes); err != nil {
				return err
			}
			audioKey = item.Audio.Key
		}

		collectionIDs, err := s.collections.LockByItem(ctx, itemID)
		if err != nil {
			return err
		}

		if err := s.items.Delete(ctx, itemID); err != nil {
			return err
		}

		for _, cid := range collectionIDs {
			if err := s.collections.CompactPositions(ctx, cid); err != nil {
				return err
			}
			if _, err := s.collections.RecountItems(ctx, cid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("保存項目を削除しました",
		slog.String("user_id", userID),
		slog.String("item_id", itemID),
	)

	if audioKey != "" {
		if err := s.audio.Delete(ctx, audioKey); err != nil {
			slog.Warn("音声ファイルの削除に失敗しました",
				slog.String("item_id", itemID),
				slog.String("key", audioKey),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// OpenAudio は保存項目の音声を開く。音声がない場合はAUDIO_NOT_FOUNDを返す。
// 呼び出し側で返されたReadCloserを閉じること。
func (s *Store) OpenAudio(ctx context.Context, userID, itemID string) (io.ReadCloser, string, error) {
	item, err := s.Get(ctx, userID, itemID)
	if err != nil {
		return nil, "", err
	}
	if !item.HasAudio() {
		return nil, "", model.NewAudioNotFoundError(itemID)
	}

	rc, err := s.audio.Open(ctx, item.Audio.Key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, "", model.NewAudioNotFoundError(itemID)
	}
	if err != nil {
		return nil, "", err
	}

	contentType := item.Audio.ContentType
	if contentType == "" {
		contentType = "audio/wav"
	}
	return rc, contentType, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
