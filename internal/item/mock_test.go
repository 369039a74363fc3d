package item

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/hitoshi/vocalearn/internal/blob"
	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
)

// callLog は呼び出し順を記録する。
type callLog struct {
	calls []string
}

func (l *callLog) add(s string) { l.calls = append(l.calls, s) }

type mockTxRunner struct {
	log *callLog
}

func (m *mockTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.log.add("tx.begin")
	if err := fn(ctx); err != nil {
		m.log.add("tx.rollback")
		return err
	}
	m.log.add("tx.commit")
	return nil
}

type mockItemRepo struct {
	log      *callLog
	items    map[string]*model.Item
	created  []*model.Item
	searchFn func(ctx context.Context, userID string, f repository.ItemSearchFilter) ([]*model.Item, error)
	createFn func(ctx context.Context, item *model.Item) error
}

func newMockItemRepo(log *callLog, items ...*model.Item) *mockItemRepo {
	m := &mockItemRepo{log: log, items: map[string]*model.Item{}}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *mockItemRepo) Create(ctx context.Context, item *model.Item) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, item); err != nil {
			return err
		}
	}
	m.created = append(m.created, item)
	m.items[item.ID] = item
	return nil
}

func (m *mockItemRepo) FindByID(_ context.Context, id string) (*model.Item, error) {
	return m.items[id], nil
}

func (m *mockItemRepo) FindByIDForUpdate(_ context.Context, id string) (*model.Item, error) {
	m.log.add("items.lock")
	return m.items[id], nil
}

func (m *mockItemRepo) Search(ctx context.Context, userID string, f repository.ItemSearchFilter) ([]*model.Item, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, userID, f)
	}
	return nil, nil
}

func (m *mockItemRepo) ListDue(context.Context, string, time.Time) ([]*model.Item, error) {
	return nil, nil
}

func (m *mockItemRepo) UpdateSRS(context.Context, *model.Item) error { return nil }

func (m *mockItemRepo) Delete(_ context.Context, id string) error {
	m.log.add("items.delete")
	delete(m.items, id)
	return nil
}

func (m *mockItemRepo) ListAudioKeysByUser(context.Context, string) ([]string, error) {
	return nil, nil
}

type mockCollectionRepo struct {
	repository.CollectionRepository // 未使用メソッドは呼ばれると panic する
	log                             *callLog
	containing                      []string
}

func (m *mockCollectionRepo) LockByItem(context.Context, string) ([]string, error) {
	m.log.add("collections.lock")
	return m.containing, nil
}

func (m *mockCollectionRepo) CompactPositions(_ context.Context, id string) error {
	m.log.add("collections.compact:" + id)
	return nil
}

func (m *mockCollectionRepo) RecountItems(_ context.Context, id string) (int, error) {
	m.log.add("collections.recount:" + id)
	return 0, nil
}

type mockLedger struct {
	log      *callLog
	credited []int64
	err      error
}

func (m *mockLedger) Credit(_ context.Context, _ string, size int64) (*model.QuotaLedger, error) {
	m.log.add("ledger.credit")
	if m.err != nil {
		return nil, m.err
	}
	m.credited = append(m.credited, size)
	return &model.QuotaLedger{}, nil
}

type mockAudioStore struct {
	log       *callLog
	objects   map[string][]byte
	deleted   []string
	deleteErr error
}

func (m *mockAudioStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *mockAudioStore) Delete(_ context.Context, key string) error {
	m.log.add("blob.delete")
	m.deleted = append(m.deleted, key)
	return m.deleteErr
}
