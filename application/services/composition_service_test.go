package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/infrastructure/messaging/localbus"
	memstore "keepsake-backend/infrastructure/persistence/memory"
	pkgerrors "keepsake-backend/pkg/errors"
)

type fixture struct {
	svc       *CompositionService
	memories  *memstore.MemoryRepository
	fragments *memstore.FragmentRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	memories := memstore.NewMemoryRepository()
	fragments := memstore.NewFragmentRepository()
	return &fixture{
		svc:       NewCompositionService(memories, fragments, memstore.NewKeyedLocker(), localbus.New(nil, logger), logger),
		memories:  memories,
		fragments: fragments,
	}
}

func (fx *fixture) seedMemory(t *testing.T, owner valueobjects.AccountID, title string, fragmentCount int) (*entities.Memory, []valueobjects.FragmentID) {
	t.Helper()
	ctx := context.Background()

	m, err := entities.NewMemory(owner, title)
	require.NoError(t, err)

	var ids []valueobjects.FragmentID
	for i := 0; i < fragmentCount; i++ {
		f, err := entities.NewTextFragment(m.ID(), "fragment content")
		require.NoError(t, err)
		require.NoError(t, fx.fragments.Save(ctx, f))
		require.NoError(t, m.AttachFragment(f.ID()))
		ids = append(ids, f.ID())
	}
	require.NoError(t, fx.memories.Save(ctx, m))
	return m, ids
}

func TestMerge(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := valueobjects.NewAccountID()

	target, targetIDs := fx.seedMemory(t, owner, "target", 2)
	source, sourceIDs := fx.seedMemory(t, owner, "source", 3)

	merged, err := fx.svc.Merge(ctx, target.ID(), source.ID(), owner)
	require.NoError(t, err)

	// Source fragments appended after target's, in their original order.
	want := append(append([]valueobjects.FragmentID{}, targetIDs...), sourceIDs...)
	assert.Equal(t, want, merged.FragmentIDs())

	// Donor memory is gone.
	_, err = fx.memories.Load(ctx, source.ID())
	assert.True(t, pkgerrors.IsNotFound(err))

	// Moved fragments point at the target now.
	for _, fid := range sourceIDs {
		f, err := fx.fragments.Load(ctx, fid)
		require.NoError(t, err)
		assert.True(t, f.MemoryID().Equals(target.ID()))
	}
}

func TestMerge_SelfRejected(t *testing.T) {
	fx := newFixture(t)
	owner := valueobjects.NewAccountID()
	m, _ := fx.seedMemory(t, owner, "solo", 1)

	_, err := fx.svc.Merge(context.Background(), m.ID(), m.ID(), owner)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestMerge_EmptySourceIsNoOpAppend(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := valueobjects.NewAccountID()

	target, targetIDs := fx.seedMemory(t, owner, "target", 2)
	source, _ := fx.seedMemory(t, owner, "empty", 0)

	merged, err := fx.svc.Merge(ctx, target.ID(), source.ID(), owner)
	require.NoError(t, err)
	assert.Equal(t, targetIDs, merged.FragmentIDs())

	_, err = fx.memories.Load(ctx, source.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestMerge_RequiresRightsOnBoth(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := valueobjects.NewAccountID()
	editor := valueobjects.NewAccountID()

	target, _ := fx.seedMemory(t, owner, "target", 1)
	source, sourceIDs := fx.seedMemory(t, owner, "source", 1)

	// Editor rights on the target only.
	loaded, err := fx.memories.Load(ctx, target.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.AddEditor(editor))
	require.NoError(t, fx.memories.Save(ctx, loaded))

	_, err = fx.svc.Merge(ctx, target.ID(), source.ID(), editor)
	assert.True(t, pkgerrors.IsForbidden(err))

	// Nothing moved.
	src, err := fx.memories.Load(ctx, source.ID())
	require.NoError(t, err)
	assert.Equal(t, sourceIDs, src.FragmentIDs())
}

func TestMerge_MissingMemoryMasked(t *testing.T) {
	fx := newFixture(t)
	owner := valueobjects.NewAccountID()
	target, _ := fx.seedMemory(t, owner, "target", 1)

	_, err := fx.svc.Merge(context.Background(), target.ID(), valueobjects.NewMemoryID(), owner)
	assert.True(t, pkgerrors.IsForbidden(err), "missing memory must look like a denied one")
}

func TestSplit(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := valueobjects.NewAccountID()

	source, ids := fx.seedMemory(t, owner, "source", 4)
	subset := []valueobjects.FragmentID{ids[1], ids[3]}

	created, err := fx.svc.Split(ctx, source.ID(), subset, owner)
	require.NoError(t, err)

	// The new memory holds exactly the subset, in order.
	assert.Equal(t, subset, created.FragmentIDs())

	// New memory starts private, owner-only, untagged.
	assert.True(t, created.OwnerID().Equals(owner))
	assert.False(t, created.IsPublic())
	assert.True(t, created.Readers().IsEmpty())
	assert.True(t, created.Editors().IsEmpty())
	assert.Empty(t, created.Tags())

	// Remainder keeps its relative order.
	remaining, err := fx.memories.Load(ctx, source.ID())
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.FragmentID{ids[0], ids[2]}, remaining.FragmentIDs())
}

func TestSplit_EditorActsForOwner(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := valueobjects.NewAccountID()
	editor := valueobjects.NewAccountID()

	source, ids := fx.seedMemory(t, owner, "shared", 2)
	loaded, err := fx.memories.Load(ctx, source.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.AddEditor(editor))
	require.NoError(t, fx.memories.Save(ctx, loaded))

	created, err := fx.svc.Split(ctx, source.ID(), ids[:1], editor)
	require.NoError(t, err)

	// The split-off memory belongs to the source owner, not the editor.
	assert.True(t, created.OwnerID().Equals(owner))
}

func TestSplit_ValidationFailuresLeaveNoTrace(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := valueobjects.NewAccountID()

	source, ids := fx.seedMemory(t, owner, "source", 2)

	cases := map[string][]valueobjects.FragmentID{
		"empty set":        {},
		"duplicate ids":    {ids[0], ids[0]},
		"foreign fragment": {ids[0], valueobjects.NewFragmentID()},
	}
	for name, subset := range cases {
		_, err := fx.svc.Split(ctx, source.ID(), subset, owner)
		assert.True(t, pkgerrors.IsValidation(err), name)

		reloaded, err := fx.memories.Load(ctx, source.ID())
		require.NoError(t, err)
		assert.Equal(t, ids, reloaded.FragmentIDs(), "no partial mutation for %s", name)
	}
}

func TestShatter(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := valueobjects.NewAccountID()

	source, ids := fx.seedMemory(t, owner, "source", 3)

	created, err := fx.svc.Shatter(ctx, source.ID(), owner)
	require.NoError(t, err)
	require.Len(t, created, 3)

	for i, m := range created {
		assert.Equal(t, []valueobjects.FragmentID{ids[i]}, m.FragmentIDs())
		assert.True(t, m.OwnerID().Equals(owner))
	}

	emptied, err := fx.memories.Load(ctx, source.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, emptied.FragmentCount())
}

func TestShatter_EmptyMemorySucceeds(t *testing.T) {
	fx := newFixture(t)
	owner := valueobjects.NewAccountID()
	source, _ := fx.seedMemory(t, owner, "empty", 0)

	created, err := fx.svc.Shatter(context.Background(), source.ID(), owner)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestMergeThenShatterConservesFragments(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	owner := valueobjects.NewAccountID()

	first, firstIDs := fx.seedMemory(t, owner, "first", 2)
	second, secondIDs := fx.seedMemory(t, owner, "second", 3)
	all := append(append([]valueobjects.FragmentID{}, firstIDs...), secondIDs...)

	merged, err := fx.svc.Merge(ctx, first.ID(), second.ID(), owner)
	require.NoError(t, err)
	require.Len(t, merged.FragmentIDs(), len(all))

	pieces, err := fx.svc.Shatter(ctx, first.ID(), owner)
	require.NoError(t, err)
	require.Len(t, pieces, len(all))

	// Every fragment that went in comes out exactly once, each under
	// its own single-fragment memory, none duplicated or lost.
	seen := map[string]bool{}
	for _, piece := range pieces {
		ids := piece.FragmentIDs()
		require.Len(t, ids, 1)
		fid := ids[0]
		assert.False(t, seen[fid.String()], "fragment %s appeared twice", fid)
		seen[fid.String()] = true

		f, err := fx.fragments.Load(ctx, fid)
		require.NoError(t, err)
		assert.True(t, f.MemoryID().Equals(piece.ID()))
	}
	for _, fid := range all {
		assert.True(t, seen[fid.String()], "fragment %s was lost", fid)
	}

	// The shattered memory keeps existing, emptied; the merge donor is
	// gone since the merge.
	emptied, err := fx.memories.Load(ctx, first.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, emptied.FragmentCount())
	_, err = fx.memories.Load(ctx, second.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
}
