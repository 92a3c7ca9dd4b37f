package queries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	memstore "keepsake-backend/infrastructure/persistence/memory"
	pkgerrors "keepsake-backend/pkg/errors"
)

func seedMemory(t *testing.T, memories *memstore.MemoryRepository, owner valueobjects.AccountID, title string) *entities.Memory {
	t.Helper()
	m, err := entities.NewMemory(owner, title)
	require.NoError(t, err)
	require.NoError(t, memories.Save(context.Background(), m))
	m.MarkEventsAsCommitted()
	return m
}

func attachText(t *testing.T, memories *memstore.MemoryRepository, fragments *memstore.FragmentRepository, m *entities.Memory, content string) *entities.Fragment {
	t.Helper()
	ctx := context.Background()
	f, err := entities.NewTextFragment(m.ID(), content)
	require.NoError(t, err)
	require.NoError(t, m.AttachFragment(f.ID()))
	require.NoError(t, fragments.Save(ctx, f))
	require.NoError(t, memories.Save(ctx, m))
	return f
}

func TestGetMemory_OwnerSeesFragmentsInOrder(t *testing.T) {
	memories := memstore.NewMemoryRepository()
	fragments := memstore.NewFragmentRepository()
	handler := NewGetMemoryHandler(memories, fragments, zap.NewNop())
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	m := seedMemory(t, memories, owner, "Journal")
	first := attachText(t, memories, fragments, m, "first")
	second := attachText(t, memories, fragments, m, "second")

	result, err := handler.Handle(ctx, GetMemoryQuery{
		MemoryID:    m.ID().String(),
		PrincipalID: owner.String(),
	})
	require.NoError(t, err)

	view, ok := result.(*MemoryView)
	require.True(t, ok)
	assert.Equal(t, m.ID().String(), view.ID)
	require.Len(t, view.Fragments, 2)
	assert.Equal(t, first.ID().String(), view.Fragments[0].ID)
	assert.Equal(t, second.ID().String(), view.Fragments[1].ID)
}

func TestGetMemory_PrivateMaskedFromStranger(t *testing.T) {
	memories := memstore.NewMemoryRepository()
	handler := NewGetMemoryHandler(memories, memstore.NewFragmentRepository(), zap.NewNop())
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	m := seedMemory(t, memories, owner, "Private")

	for name, principalID := range map[string]string{
		"stranger":  valueobjects.NewAccountID().String(),
		"anonymous": "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := handler.Handle(ctx, GetMemoryQuery{
				MemoryID:    m.ID().String(),
				PrincipalID: principalID,
			})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsForbidden(err))
			assert.Empty(t, pkgerrors.GetAppError(err).Message)
		})
	}

	// A missing memory looks exactly the same.
	_, err := handler.Handle(ctx, GetMemoryQuery{
		MemoryID:    valueobjects.NewMemoryID().String(),
		PrincipalID: owner.String(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsForbidden(err))
	assert.Empty(t, pkgerrors.GetAppError(err).Message)
}

func TestGetMemory_PublicVisibleToAnonymous(t *testing.T) {
	memories := memstore.NewMemoryRepository()
	handler := NewGetMemoryHandler(memories, memstore.NewFragmentRepository(), zap.NewNop())
	ctx := context.Background()

	m := seedMemory(t, memories, valueobjects.NewAccountID(), "Open album")
	m.MakePublic()
	require.NoError(t, memories.Save(ctx, m))

	result, err := handler.Handle(ctx, GetMemoryQuery{MemoryID: m.ID().String()})
	require.NoError(t, err)
	view := result.(*MemoryView)
	assert.True(t, view.Public)
	assert.False(t, view.Pinned)
}

func TestGetFragment_NotFoundOnlyAfterReadAccess(t *testing.T) {
	memories := memstore.NewMemoryRepository()
	fragments := memstore.NewFragmentRepository()
	handler := NewGetFragmentHandler(memories, fragments, zap.NewNop())
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	m := seedMemory(t, memories, owner, "Journal")
	missing := valueobjects.NewFragmentID()

	// The owner can read the memory, so the absence is reported.
	_, err := handler.Handle(ctx, GetFragmentQuery{
		MemoryID:    m.ID().String(),
		FragmentID:  missing.String(),
		PrincipalID: owner.String(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))

	// A stranger is stopped at the memory, fragment or not.
	_, err = handler.Handle(ctx, GetFragmentQuery{
		MemoryID:    m.ID().String(),
		FragmentID:  missing.String(),
		PrincipalID: valueobjects.NewAccountID().String(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsForbidden(err))
}

func TestGetFragment(t *testing.T) {
	memories := memstore.NewMemoryRepository()
	fragments := memstore.NewFragmentRepository()
	handler := NewGetFragmentHandler(memories, fragments, zap.NewNop())
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	m := seedMemory(t, memories, owner, "Journal")
	f := attachText(t, memories, fragments, m, "hello")

	result, err := handler.Handle(ctx, GetFragmentQuery{
		MemoryID:    m.ID().String(),
		FragmentID:  f.ID().String(),
		PrincipalID: owner.String(),
	})
	require.NoError(t, err)
	view := result.(*FragmentView)
	assert.Equal(t, "hello", view.Content)
	assert.Equal(t, string(entities.KindText), view.Kind)
}

func TestListMemories_PinnedFirst(t *testing.T) {
	memories := memstore.NewMemoryRepository()
	handler := NewListMemoriesHandler(memories, nil, zap.NewNop())
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	older := seedMemory(t, memories, owner, "Older")
	newer := seedMemory(t, memories, owner, "Newer")
	require.NoError(t, older.PinFor(owner))
	require.NoError(t, memories.Save(ctx, older))

	shared := seedMemory(t, memories, valueobjects.NewAccountID(), "Shared with me")
	require.NoError(t, shared.AddReader(owner))
	require.NoError(t, memories.Save(ctx, shared))

	result, err := handler.Handle(ctx, ListMemoriesQuery{PrincipalID: owner.String()})
	require.NoError(t, err)
	views := result.([]MemorySummaryView)
	require.Len(t, views, 3)

	assert.Equal(t, older.ID().String(), views[0].ID)
	assert.True(t, views[0].Pinned)
	titles := []string{views[1].Title, views[2].Title}
	assert.Contains(t, titles, newer.Title())
	assert.Contains(t, titles, shared.Title())
}

func TestListPublicMemories_ExcludesDraftsAndCaches(t *testing.T) {
	memories := memstore.NewMemoryRepository()
	cache := newMapCache()
	handler := NewListMemoriesHandler(memories, cache, zap.NewNop())
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	visible := seedMemory(t, memories, owner, "Published")
	visible.MakePublic()
	require.NoError(t, memories.Save(ctx, visible))

	draft := seedMemory(t, memories, owner, "Work in progress")
	draft.MakePublic()
	draft.SetDraft(true)
	require.NoError(t, memories.Save(ctx, draft))

	result, err := handler.Handle(ctx, ListPublicMemoriesQuery{})
	require.NoError(t, err)
	views := result.([]MemorySummaryView)
	require.Len(t, views, 1)
	assert.Equal(t, visible.ID().String(), views[0].ID)

	// The second read is served from cache, so a new public memory does
	// not appear until the entry expires.
	late := seedMemory(t, memories, owner, "Late arrival")
	late.MakePublic()
	require.NoError(t, memories.Save(ctx, late))

	result, err = handler.Handle(ctx, ListPublicMemoriesQuery{})
	require.NoError(t, err)
	assert.Len(t, result.([]MemorySummaryView), 1)
}

// mapCache is a minimal ports.Cache for tests. No expiry.
type mapCache struct {
	items map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := c.items[key]
	return v, ok
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte) error {
	c.items[key] = value
	return nil
}

func (c *mapCache) Delete(ctx context.Context, key string) error {
	delete(c.items, key)
	return nil
}
