package srs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/vocalearn/internal/model"
)

// defaultSessionListLimit は学習セッション一覧の既定の最大件数。
const defaultSessionListLimit = 50

// StartSession は学習セッションを開始する。
func (s *Scheduler) StartSession(ctx context.Context, userID string, kind model.StudySessionKind) (*model.StudySession, error) {
	if !kind.Valid() {
		return nil, model.NewInvalidInputError(fmt.Sprintf("unknown session kind: %q", kind))
	}
	session := &model.StudySession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		StartedAt: s.now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// EndSession は学習セッションを終了する。終了済みの場合はSTUDY_SESSION_ENDEDを返す。
func (s *Scheduler) EndSession(ctx context.Context, userID, sessionID string) (*model.StudySession, error) {
	if !validID(sessionID) {
		return nil, model.NewStudySessionNotFoundError(sessionID)
	}

	var session *model.StudySession
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		session, err = s.sessions.FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil || session.UserID != userID {
			return model.NewStudySessionNotFoundError(sessionID)
		}
		if !session.IsOpen() {
			return model.NewStudySessionEndedError(sessionID)
		}
		now := s.now().UTC()
		if err := s.sessions.End(ctx, sessionID, now); err != nil {
			return err
		}
		session.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("学習セッションを終了しました",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
		slog.Int("items_reviewed", session.ItemsReviewed),
	)
	return session, nil
}

// GetSession は学習セッションを返す。
func (s *Scheduler) GetSession(ctx context.Context, userID, sessionID string) (*model.StudySession, error) {
	if !validID(sessionID) {
		return nil, model.NewStudySessionNotFoundError(sessionID)
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("学習セッションの取得に失敗しました: %w", err)
	}
	if session == nil || session.UserID != userID {
		return nil, model.NewStudySessionNotFoundError(sessionID)
	}
	return session, nil
}

// ListSessions はユーザーの学習セッションを新しい順に返す。
func (s *Scheduler) ListSessions(ctx context.Context, userID string, limit int) ([]*model.StudySession, error) {
	if limit <= 0 {
		limit = defaultSessionListLimit
	}
	sessions, err := s.sessions.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*model.StudySession{}
	}
	return sessions, nil
}

// DeleteSession は学習セッションを削除する。記録済みの復習は残る。
func (s *Scheduler) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, sessionID)
}
