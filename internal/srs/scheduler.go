package srs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/vocalearn/internal/metrics"
	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
)

// Config はスケジューラの設定。
type Config struct {
	// CorrectThreshold 以上の品質評価を正解として記録する。
	CorrectThreshold int
	// Metrics は復習結果の記録先。nilの場合は記録しない。
	Metrics ReviewRecorder
}

// ReviewRecorder は復習結果のメトリクス記録インターフェース。
type ReviewRecorder interface {
	RecordReview(correct bool)
}

// ReviewInput は1回の復習で受け取る入力。
type ReviewInput struct {
	Quality          int
	TimeSpentSeconds *int
	SessionID        *string
}

// Scheduler は復習の記録と出題対象の抽出を行うサービス層。
// 同一項目への復習は項目行のロックで直列化する。
type Scheduler struct {
	tx       repository.TxRunner
	items    repository.ItemRepository
	reviews  repository.ReviewRepository
	sessions repository.StudySessionRepository
	cfg      Config
	now      func() time.Time
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(
	tx repository.TxRunner,
	items repository.ItemRepository,
	reviews repository.ReviewRepository,
	sessions repository.StudySessionRepository,
	cfg Config,
) *Scheduler {
	if cfg.CorrectThreshold <= 0 {
		cfg.CorrectThreshold = DefaultCorrectThreshold
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	return &Scheduler{
		tx:       tx,
		items:    items,
		reviews:  reviews,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RecordReview は品質評価を記録し、項目の復習スケジュールを更新する。
// 品質が範囲外の場合は何も変更せずにINVALID_QUALITYを返す。
func (s *Scheduler) RecordReview(ctx context.Context, userID, itemID string, in ReviewInput) (*model.Review, *model.Item, error) {
	if !ValidQuality(in.Quality) {
		return nil, nil, model.NewInvalidQualityError(in.Quality)
	}
	if in.TimeSpentSeconds != nil && *in.TimeSpentSeconds < 0 {
		return nil, nil, model.NewInvalidInputError("time_spent_seconds must not be negative")
	}
	if !validID(itemID) {
		return nil, nil, model.NewItemNotFoundError(itemID)
	}
	if in.SessionID != nil && !validID(*in.SessionID) {
		return nil, nil, model.NewStudySessionNotFoundError(*in.SessionID)
	}

	var review *model.Review
	var item *model.Item
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.items.FindByIDForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil || item.UserID != userID {
			return model.NewItemNotFoundError(itemID)
		}

		if in.SessionID != nil {
			session, err := s.sessions.FindByIDForUpdate(ctx, *in.SessionID)
			if err != nil {
				return err
			}
			if session == nil || session.UserID != userID {
				return model.NewStudySessionNotFoundError(*in.SessionID)
			}
			if !session.IsOpen() {
				return model.NewStudySessionEndedError(*in.SessionID)
			}
		}

		now := s.now().UTC()
		item.SRS = Apply(item.SRS, in.Quality)
		next := NextReviewDate(now, item.SRS.IntervalDays)
		item.SRS.NextReviewDate = &next
		item.LastReviewedAt = &now
		item.UpdatedAt = now
		if err := s.items.UpdateSRS(ctx, item); err != nil {
			return err
		}

		review = &model.Review{
			ID:               uuid.New().String(),
			ItemID:           item.ID,
			SessionID:        in.SessionID,
			Quality:          in.Quality,
			WasCorrect:       in.Quality >= s.cfg.CorrectThreshold,
			TimeSpentSeconds: in.TimeSpentSeconds,
			ReviewedAt:       now,
		}
		if err := s.reviews.Create(ctx, review); err != nil {
			return err
		}

		if in.SessionID != nil {
			if err := s.sessions.IncrementItemsReviewed(ctx, *in.SessionID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.cfg.Metrics.RecordReview(review.WasCorrect)

	slog.Debug("復習を記録しました",
		slog.String("user_id", userID),
		slog.String("item_id", itemID),
		slog.Int("quality", in.Quality),
		slog.Int("interval_days", item.SRS.IntervalDays),
	)
	return review, item, nil
}

// DueItems はasOf（UTCの日付）までに復習期限を迎えた項目を返す。
// 一度も復習・予定設定されていない項目は含まない。
func (s *Scheduler) DueItems(ctx context.Context, userID string, asOf time.Time) ([]*model.Item, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	items, err := s.items.ListDue(ctx, userID, Today(asOf))
	if err != nil {
		return nil, fmt.Errorf("復習対象の取得に失敗しました: %w", err)
	}
	if items == nil {
		items = []*model.Item{}
	}
	return items, nil
}

// Schedule は項目の次回復習日を明示的に設定する。
// 未復習の項目を出題対象に加えるときに使う。
func (s *Scheduler) Schedule(ctx context.Context, userID, itemID string, date time.Time) (*model.Item, error) {
	if date.IsZero() {
		return nil, model.NewInvalidInputError("date is required")
	}
	if !validID(itemID) {
		return nil, model.NewItemNotFoundError(itemID)
	}

	var item *model.Item
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.items.FindByIDForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil || item.UserID != userID {
			return model.NewItemNotFoundError(itemID)
		}
		d := Today(date)
		item.SRS.NextReviewDate = &d
		item.UpdatedAt = s.now().UTC()
		return s.items.UpdateSRS(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// History は項目の復習記録を古い順に返す。
func (s *Scheduler) History(ctx context.Context, userID, itemID string) ([]*model.Review, error) {
	if !validID(itemID) {
		return nil, model.NewItemNotFoundError(itemID)
	}
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("保存項目の取得に失敗しました: %w", err)
	}
	if item == nil || item.UserID != userID {
		return nil, model.NewItemNotFoundError(itemID)
	}

	reviews, err := s.reviews.ListByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("復習履歴の取得に失敗しました: %w", err)
	}
	if reviews == nil {
		reviews = []*model.Review{}
	}
	return reviews, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
