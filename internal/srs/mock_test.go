package srs

import (
	"context"
	"time"

	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
)

// mockTxRunner はfnをそのまま実行するTxRunner。
type mockTxRunner struct {
	calls int
}

func (m *mockTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockItemRepo struct {
	findByIDFn          func(ctx context.Context, id string) (*model.Item, error)
	findByIDForUpdateFn func(ctx context.Context, id string) (*model.Item, error)
	listDueFn           func(ctx context.Context, userID string, asOf time.Time) ([]*model.Item, error)
	updateSRSFn         func(ctx context.Context, item *model.Item) error
}

func (m *mockItemRepo) Create(context.Context, *model.Item) error { return nil }

func (m *mockItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockItemRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Item, error) {
	if m.findByIDForUpdateFn != nil {
		return m.findByIDForUpdateFn(ctx, id)
	}
	return nil, nil
}

func (m *mockItemRepo) Search(context.Context, string, repository.ItemSearchFilter) ([]*model.Item, error) {
	return nil, nil
}

func (m *mockItemRepo) ListDue(ctx context.Context, userID string, asOf time.Time) ([]*model.Item, error) {
	if m.listDueFn != nil {
		return m.listDueFn(ctx, userID, asOf)
	}
	return nil, nil
}

func (m *mockItemRepo) UpdateSRS(ctx context.Context, item *model.Item) error {
	if m.updateSRSFn != nil {
		return m.updateSRSFn(ctx, item)
	}
	return nil
}

func (m *mockItemRepo) Delete(context.Context, string) error { return nil }

func (m *mockItemRepo) ListAudioKeysByUser(context.Context, string) ([]string, error) {
	return nil, nil
}

type mockReviewRepo struct {
	created    []*model.Review
	createFn   func(ctx context.Context, review *model.Review) error
	listByItem func(ctx context.Context, itemID string) ([]*model.Review, error)
}

func (m *mockReviewRepo) Create(ctx context.Context, review *model.Review) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, review); err != nil {
			return err
		}
	}
	m.created = append(m.created, review)
	return nil
}

func (m *mockReviewRepo) ListByItem(ctx context.Context, itemID string) ([]*model.Review, error) {
	if m.listByItem != nil {
		return m.listByItem(ctx, itemID)
	}
	return nil, nil
}

type mockSessionRepo struct {
	sessions    map[string]*model.StudySession
	incremented []string
	ended       []string
	deleted     []string
}

func newMockSessionRepo(sessions ...*model.StudySession) *mockSessionRepo {
	m := &mockSessionRepo{sessions: make(map[string]*model.StudySession)}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

func (m *mockSessionRepo) Create(_ context.Context, s *model.StudySession) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*model.StudySession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.StudySession, error) {
	return m.FindByID(ctx, id)
}

func (m *mockSessionRepo) ListByUser(_ context.Context, userID string, limit int) ([]*model.StudySession, error) {
	var out []*model.StudySession
	for _, s := range m.sessions {
		if s.UserID == userID && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) IncrementItemsReviewed(_ context.Context, id string) error {
	m.incremented = append(m.incremented, id)
	if s, ok := m.sessions[id]; ok {
		s.ItemsReviewed++
	}
	return nil
}

func (m *mockSessionRepo) End(_ context.Context, id string, endedAt time.Time) error {
	m.ended = append(m.ended, id)
	if s, ok := m.sessions[id]; ok && s.EndedAt == nil {
		s.EndedAt = &endedAt
	}
	return nil
}

func (m *mockSessionRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionRepo) EndStaleBefore(context.Context, time.Time, time.Time) (int64, error) {
	return 0, nil
}

var (
	_ repository.TxRunner               = (*mockTxRunner)(nil)
	_ repository.ItemRepository         = (*mockItemRepo)(nil)
	_ repository.ReviewRepository       = (*mockReviewRepo)(nil)
	_ repository.StudySessionRepository = (*mockSessionRepo)(nil)
)
