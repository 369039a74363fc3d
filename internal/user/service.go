// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
)

// AudioKeyLister はユーザーの保存済み音声キーを列挙する。
type AudioKeyLister interface {
	ListAudioKeysByUser(ctx context.Context, userID string) ([]string, error)
}

// BlobDeleter は音声オブジェクトを削除する。
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	tx          repository.TxRunner
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	audioKeys   AudioKeyLister
	blobs       BlobDeleter
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	tx repository.TxRunner,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	audioKeys AudioKeyLister,
	blobs BlobDeleter,
) *Service {
	return &Service{
		tx:          tx,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		audioKeys:   audioKeys,
		blobs:       blobs,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 1トランザクションで音声キーの収集、セッション削除、ユーザー削除を行う。
// items, collections, study_sessions, quota_ledgers はCASCADE削除される。
// コミット後に音声オブジェクトをベストエフォートで削除する。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return model.NewUserNotFoundError()
	}

	var keys []string
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		user, err := s.userRepo.FindByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if user == nil {
			return model.NewUserNotFoundError()
		}

		slog.Info("退会処理を開始します",
			slog.String("user_id", userID),
		)

		keys, err = s.audioKeys.ListAudioKeysByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("音声キー一覧の取得に失敗しました: %w", err)
		}

		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}

		if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
			return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 行は既に削除済みのため、オブジェクト削除の失敗はログのみ
	failed := 0
	for _, key := range keys {
		if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
			failed++
			slog.Warn("退会ユーザーの音声削除に失敗しました",
				slog.String("user_id", userID),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
		slog.Int("audio_deleted", len(keys)-failed),
		slog.Int("audio_failed", failed),
	)

	return nil
}
