package collection

import (
	"context"
	"sort"
	"time"

	"github.com/hitoshi/vocalearn/internal/model"
	"github.com/hitoshi/vocalearn/internal/repository"
)

type mockTxRunner struct {
	calls int
}

func (m *mockTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

// memCollectionRepo はPostgresCollectionRepoと同じ規則で位置と件数を扱うインメモリ実装。
type memCollectionRepo struct {
	collections map[string]*model.Collection
	members     map[string][]*model.CollectionItem // collectionID → members
	items       map[string]*model.Item
}

func newMemCollectionRepo() *memCollectionRepo {
	return &memCollectionRepo{
		collections: map[string]*model.Collection{},
		members:     map[string][]*model.CollectionItem{},
		items:       map[string]*model.Item{},
	}
}

func (m *memCollectionRepo) Create(_ context.Context, c *model.Collection) error {
	for _, other := range m.collections {
		if other.UserID == c.UserID && other.Name == c.Name {
			return repository.ErrDuplicate
		}
	}
	cp := *c
	m.collections[c.ID] = &cp
	return nil
}

func (m *memCollectionRepo) FindByID(_ context.Context, id string) (*model.Collection, error) {
	c, ok := m.collections[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memCollectionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Collection, error) {
	return m.FindByID(ctx, id)
}

func (m *memCollectionRepo) ListByUser(_ context.Context, userID string) ([]*model.Collection, error) {
	var out []*model.Collection
	for _, c := range m.collections {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memCollectionRepo) UpdateDetails(_ context.Context, c *model.Collection) error {
	for id, other := range m.collections {
		if id != c.ID && other.UserID == c.UserID && other.Name == c.Name {
			return repository.ErrDuplicate
		}
	}
	cp := *c
	m.collections[c.ID] = &cp
	return nil
}

func (m *memCollectionRepo) Delete(_ context.Context, id string) error {
	delete(m.collections, id)
	delete(m.members, id)
	return nil
}

func (m *memCollectionRepo) LockByItem(_ context.Context, itemID string) ([]string, error) {
	var ids []string
	for cid, ms := range m.members {
		for _, ci := range ms {
			if ci.ItemID == itemID {
				ids = append(ids, cid)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memCollectionRepo) FindMembership(_ context.Context, collectionID, itemID string) (*model.CollectionItem, error) {
	for _, ci := range m.members[collectionID] {
		if ci.ItemID == itemID {
			cp := *ci
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memCollectionRepo) MaxPosition(_ context.Context, collectionID string) (int, error) {
	maxPos := 0
	for _, ci := range m.members[collectionID] {
		maxPos = max(maxPos, ci.Position)
	}
	return maxPos, nil
}

func (m *memCollectionRepo) InsertMembership(_ context.Context, ci *model.CollectionItem) error {
	for _, other := range m.members[ci.CollectionID] {
		if other.ItemID == ci.ItemID {
			return repository.ErrDuplicate
		}
	}
	cp := *ci
	m.members[ci.CollectionID] = append(m.members[ci.CollectionID], &cp)
	return nil
}

func (m *memCollectionRepo) DeleteMembership(_ context.Context, collectionID, itemID string) (bool, error) {
	ms := m.members[collectionID]
	for i, ci := range ms {
		if ci.ItemID == itemID {
			m.members[collectionID] = append(ms[:i:i], ms[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memCollectionRepo) sorted(collectionID string) []*model.CollectionItem {
	ms := append([]*model.CollectionItem(nil), m.members[collectionID]...)
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Position != ms[j].Position {
			return ms[i].Position < ms[j].Position
		}
		if !ms[i].AddedAt.Equal(ms[j].AddedAt) {
			return ms[i].AddedAt.Before(ms[j].AddedAt)
		}
		return ms[i].ItemID < ms[j].ItemID
	})
	return ms
}

func (m *memCollectionRepo) CompactPositions(_ context.Context, collectionID string) error {
	for i, ci := range m.sorted(collectionID) {
		ci.Position = i + 1
	}
	return nil
}

func (m *memCollectionRepo) RecountItems(_ context.Context, collectionID string) (int, error) {
	n := len(m.members[collectionID])
	if c, ok := m.collections[collectionID]; ok {
		c.ItemCount = n
	}
	return n, nil
}

func (m *memCollectionRepo) ListEntries(_ context.Context, collectionID string) ([]repository.CollectionEntry, error) {
	var out []repository.CollectionEntry
	for _, ci := range m.sorted(collectionID) {
		out = append(out, repository.CollectionEntry{Position: ci.Position, AddedAt: ci.AddedAt, Item: m.items[ci.ItemID]})
	}
	return out, nil
}

// memItemRepo はFindByIDのみを使うItemRepository。
type memItemRepo struct {
	repository.ItemRepository
	items map[string]*model.Item
}

func (m *memItemRepo) FindByID(_ context.Context, id string) (*model.Item, error) {
	return m.items[id], nil
}

// tick は呼び出しごとに1秒進む時計を返す。
func tick(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}
