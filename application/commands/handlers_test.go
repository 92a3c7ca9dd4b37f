package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"keepsake-backend/application/uploads"
	"keepsake-backend/domain/core/entities"
	"keepsake-backend/domain/core/valueobjects"
	"keepsake-backend/infrastructure/messaging/localbus"
	memstore "keepsake-backend/infrastructure/persistence/memory"
	"keepsake-backend/infrastructure/storage"
	"keepsake-backend/infrastructure/storage/fake"
	pkgerrors "keepsake-backend/pkg/errors"
	"keepsake-backend/pkg/observability"
)

// fixture wires the command handlers against in-memory infrastructure,
// with the real upload sink and lifecycle manager on the bus so file
// commands run their full async path.
type fixture struct {
	memories  *memstore.MemoryRepository
	fragments *memstore.FragmentRepository
	accounts  *memstore.AccountRepository
	store     *fake.Store
	sink      *storage.Sink
	bus       *localbus.Bus
	locker    *memstore.KeyedLocker
	logger    *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	fx := &fixture{
		memories:  memstore.NewMemoryRepository(),
		fragments: memstore.NewFragmentRepository(),
		accounts:  memstore.NewAccountRepository(),
		store:     fake.NewStore("test-bucket"),
		bus:       localbus.New(nil, logger),
		locker:    memstore.NewKeyedLocker(),
		logger:    logger,
	}
	fx.sink = storage.NewSink(fx.store, fx.bus, logger)

	lifecycle := uploads.NewLifecycleManager(
		fx.fragments,
		memstore.NewKeyedLocker(),
		observability.NewMetrics("test", nil, logger),
		logger,
	)
	for _, eventType := range lifecycle.EventTypes() {
		fx.bus.Subscribe(eventType, lifecycle)
	}
	return fx
}

func (fx *fixture) seedMemory(t *testing.T, owner valueobjects.AccountID, title string) *entities.Memory {
	t.Helper()
	m, err := entities.NewMemory(owner, title)
	require.NoError(t, err)
	require.NoError(t, fx.memories.Save(context.Background(), m))
	m.MarkEventsAsCommitted()
	return m
}

func (fx *fixture) seedAccount(t *testing.T, email string) *entities.Account {
	t.Helper()
	a, err := entities.NewAccount(email, "Test Account")
	require.NoError(t, err)
	require.NoError(t, fx.accounts.Save(context.Background(), a))
	return a
}

func TestCreateMemory(t *testing.T) {
	fx := newFixture(t)
	handler := NewCreateMemoryHandler(fx.memories, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memoryID := valueobjects.NewMemoryID()

	err := handler.Handle(ctx, CreateMemoryCommand{
		MemoryID:    memoryID.String(),
		PrincipalID: owner.String(),
		OwnerID:     owner.String(),
		Title:       "Summer in Lisbon",
		Draft:       true,
		Tags:        []string{"travel"},
	})
	require.NoError(t, err)

	saved, err := fx.memories.Load(ctx, memoryID)
	require.NoError(t, err)
	assert.Equal(t, owner, saved.OwnerID())
	assert.Equal(t, "Summer in Lisbon", saved.Title())
	assert.True(t, saved.IsDraft())
	assert.False(t, saved.IsPublic())
	assert.Equal(t, []string{"travel"}, saved.Tags())
}

func TestCreateMemory_CrossAccountForbidden(t *testing.T) {
	fx := newFixture(t)
	handler := NewCreateMemoryHandler(fx.memories, fx.bus, fx.logger)

	memoryID := valueobjects.NewMemoryID()
	err := handler.Handle(context.Background(), CreateMemoryCommand{
		MemoryID:    memoryID.String(),
		PrincipalID: valueobjects.NewAccountID().String(),
		OwnerID:     valueobjects.NewAccountID().String(),
		Title:       "Someone else's memory",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsForbidden(err))

	_, err = fx.memories.Load(context.Background(), memoryID)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestAddTextFragment(t *testing.T) {
	fx := newFixture(t)
	handler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Notes")
	fragmentID := valueobjects.NewFragmentID()

	err := handler.Handle(ctx, AddTextFragmentCommand{
		FragmentID:  fragmentID.String(),
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		Kind:        "text",
		Content:     "first note",
	})
	require.NoError(t, err)

	fragment, err := fx.fragments.Load(ctx, fragmentID)
	require.NoError(t, err)
	assert.Equal(t, entities.KindText, fragment.Kind())
	assert.Equal(t, "first note", fragment.Content())

	saved, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.True(t, saved.ContainsFragment(fragmentID))
}

func TestAddTextFragment_ReaderDenied(t *testing.T) {
	fx := newFixture(t)
	handler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	reader := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Notes")
	require.NoError(t, memory.AddReader(reader))
	require.NoError(t, fx.memories.Save(ctx, memory))

	err := handler.Handle(ctx, AddTextFragmentCommand{
		FragmentID:  valueobjects.NewFragmentID().String(),
		MemoryID:    memory.ID().String(),
		PrincipalID: reader.String(),
		Kind:        "text",
		Content:     "not allowed",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsForbidden(err))
	// A reader sees the memory, so the denial may name the real reason.
	assert.NotEmpty(t, pkgerrors.GetAppError(err).Message)
}

func TestAddTextFragment_EditorAllowed(t *testing.T) {
	fx := newFixture(t)
	handler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	editor := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Notes")
	require.NoError(t, memory.AddEditor(editor))
	require.NoError(t, fx.memories.Save(ctx, memory))

	err := handler.Handle(ctx, AddTextFragmentCommand{
		FragmentID:  valueobjects.NewFragmentID().String(),
		MemoryID:    memory.ID().String(),
		PrincipalID: editor.String(),
		Kind:        "rich_text",
		Content:     "<p>hello</p>",
	})
	assert.NoError(t, err)
}

func TestAddTextFragment_MissingMemoryMasked(t *testing.T) {
	fx := newFixture(t)
	handler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)

	err := handler.Handle(context.Background(), AddTextFragmentCommand{
		FragmentID:  valueobjects.NewFragmentID().String(),
		MemoryID:    valueobjects.NewMemoryID().String(),
		PrincipalID: valueobjects.NewAccountID().String(),
		Kind:        "text",
		Content:     "into the void",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsForbidden(err))
	assert.Empty(t, pkgerrors.GetAppError(err).Message)
}

func TestAddFileFragment_UploadCompletes(t *testing.T) {
	fx := newFixture(t)
	handler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Photos")
	fragmentID := valueobjects.NewFragmentID()

	err := handler.Handle(ctx, AddFileFragmentCommand{
		FragmentID:  fragmentID.String(),
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		FileName:    "beach.jpg",
		MediaType:   "image",
		Data:        []byte("jpeg bytes"),
	})
	require.NoError(t, err)

	// The outcome arrives through the bus once the sink finishes.
	fx.sink.Wait()

	fragment, err := fx.fragments.Load(ctx, fragmentID)
	require.NoError(t, err)
	require.NotNil(t, fragment.File())
	assert.Equal(t, entities.FileStatusUploaded, fragment.File().Status)
	assert.Equal(t, StorageKey(memory.ID(), fragmentID, "beach.jpg"), fragment.File().Key)
	assert.True(t, fx.store.Exists(fragment.File().Key))
}

func TestGrantAndRevokeAccess(t *testing.T) {
	fx := newFixture(t)
	handler := NewSharingHandler(fx.memories, fx.accounts, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Shared album")
	grantee := fx.seedAccount(t, "friend@example.com")

	err := handler.Handle(ctx, GrantAccessCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		AccountID:   grantee.ID().String(),
		Role:        RoleReader,
	})
	require.NoError(t, err)

	saved, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.True(t, saved.Readers().Contains(grantee.ID()))

	err = handler.Handle(ctx, RevokeAccessCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		AccountID:   grantee.ID().String(),
		Role:        RoleReader,
	})
	require.NoError(t, err)

	saved, err = fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.False(t, saved.Readers().Contains(grantee.ID()))
}

func TestGrantAccess_UnknownAccountRejected(t *testing.T) {
	fx := newFixture(t)
	handler := NewSharingHandler(fx.memories, fx.accounts, fx.logger)

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Shared album")

	err := handler.Handle(context.Background(), GrantAccessCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		AccountID:   valueobjects.NewAccountID().String(),
		Role:        RoleEditor,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestSetEveryoneReadAndVisibility(t *testing.T) {
	fx := newFixture(t)
	handler := NewSharingHandler(fx.memories, fx.accounts, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Open album")

	require.NoError(t, handler.Handle(ctx, SetEveryoneReadCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		Open:        true,
	}))
	require.NoError(t, handler.Handle(ctx, SetVisibilityCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		Public:      true,
	}))

	saved, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.True(t, saved.Readers().IsEveryone())
	assert.True(t, saved.IsPublic())

	require.NoError(t, handler.Handle(ctx, SetVisibilityCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		Public:      false,
	}))
	saved, err = fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.False(t, saved.IsPublic())

	require.NoError(t, handler.Handle(ctx, SetEveryoneEditCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		Open:        true,
	}))
	saved, err = fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.True(t, saved.Editors().IsEveryone())

	require.NoError(t, handler.Handle(ctx, SetEveryoneEditCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		Open:        false,
	}))
	saved, err = fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.True(t, saved.Editors().IsEmpty())
}

func TestUpdateMetadata_Reorder(t *testing.T) {
	fx := newFixture(t)
	addHandler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	handler := NewUpdateMemoryHandler(fx.memories, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Ordered")

	ids := make([]string, 3)
	for i := range ids {
		fid := valueobjects.NewFragmentID()
		ids[i] = fid.String()
		require.NoError(t, addHandler.Handle(ctx, AddTextFragmentCommand{
			FragmentID:  fid.String(),
			MemoryID:    memory.ID().String(),
			PrincipalID: owner.String(),
			Kind:        "text",
			Content:     "entry",
		}))
	}

	reversed := []string{ids[2], ids[1], ids[0]}
	err := handler.Handle(ctx, UpdateMemoryMetadataCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		Order:       reversed,
	})
	require.NoError(t, err)

	saved, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	got := saved.FragmentIDs()
	require.Len(t, got, 3)
	for i, want := range reversed {
		assert.Equal(t, want, got[i].String())
	}

	// A reorder that is not a permutation of the current set is rejected.
	err = handler.Handle(ctx, UpdateMemoryMetadataCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		Order:       []string{ids[0], ids[1]},
	})
	assert.Error(t, err)
}

func TestPinMemory_ReaderCanPin(t *testing.T) {
	fx := newFixture(t)
	handler := NewUpdateMemoryHandler(fx.memories, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	reader := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Pinnable")
	require.NoError(t, memory.AddReader(reader))
	require.NoError(t, fx.memories.Save(ctx, memory))

	err := handler.Handle(ctx, PinMemoryCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: reader.String(),
		Pinned:      true,
	})
	require.NoError(t, err)

	saved, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.True(t, saved.IsPinnedBy(reader))
	assert.False(t, saved.IsPinnedBy(owner))

	require.NoError(t, handler.Handle(ctx, PinMemoryCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: reader.String(),
		Pinned:      false,
	}))
	saved, err = fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.False(t, saved.IsPinnedBy(reader))
}

func TestUpdateFragment_MissingFragmentMasked(t *testing.T) {
	fx := newFixture(t)
	handler := NewUpdateFragmentHandler(fx.memories, fx.fragments, fx.logger)

	err := handler.Handle(context.Background(), UpdateFragmentContentCommand{
		FragmentID:  valueobjects.NewFragmentID().String(),
		PrincipalID: valueobjects.NewAccountID().String(),
		Content:     "new content",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsForbidden(err))
	assert.Empty(t, pkgerrors.GetAppError(err).Message)
}

func TestDeleteMemory_RemovesFragmentsAndFiles(t *testing.T) {
	fx := newFixture(t)
	addHandler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	handler := NewDeleteMemoryHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Doomed")
	fragmentID := valueobjects.NewFragmentID()
	require.NoError(t, addHandler.Handle(ctx, AddFileFragmentCommand{
		FragmentID:  fragmentID.String(),
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		FileName:    "doc.pdf",
		MediaType:   "other",
		Data:        []byte("pdf bytes"),
	}))
	fx.sink.Wait()
	key := StorageKey(memory.ID(), fragmentID, "doc.pdf")
	require.True(t, fx.store.Exists(key))

	err := handler.Handle(ctx, DeleteMemoryCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
	})
	require.NoError(t, err)

	_, err = fx.memories.Load(ctx, memory.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = fx.fragments.Load(ctx, fragmentID)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.False(t, fx.store.Exists(key))
}

func TestDeleteMemory_EditorDenied(t *testing.T) {
	fx := newFixture(t)
	handler := NewDeleteMemoryHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	editor := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Protected")
	require.NoError(t, memory.AddEditor(editor))
	require.NoError(t, fx.memories.Save(ctx, memory))

	err := handler.Handle(ctx, DeleteMemoryCommand{
		MemoryID:    memory.ID().String(),
		PrincipalID: editor.String(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsForbidden(err))

	_, err = fx.memories.Load(ctx, memory.ID())
	assert.NoError(t, err)
}

func TestDeleteFragment(t *testing.T) {
	fx := newFixture(t)
	addHandler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	handler := NewDeleteFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Trimmed")

	keep := valueobjects.NewFragmentID()
	drop := valueobjects.NewFragmentID()
	for _, fid := range []valueobjects.FragmentID{keep, drop} {
		require.NoError(t, addHandler.Handle(ctx, AddTextFragmentCommand{
			FragmentID:  fid.String(),
			MemoryID:    memory.ID().String(),
			PrincipalID: owner.String(),
			Kind:        "text",
			Content:     "entry",
		}))
	}

	err := handler.Handle(ctx, DeleteFragmentCommand{
		FragmentID:  drop.String(),
		PrincipalID: owner.String(),
	})
	require.NoError(t, err)

	_, err = fx.fragments.Load(ctx, drop)
	assert.True(t, pkgerrors.IsNotFound(err))

	saved, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.False(t, saved.ContainsFragment(drop))
	assert.True(t, saved.ContainsFragment(keep))
}

func TestDeleteFragments_Bulk(t *testing.T) {
	fx := newFixture(t)
	addHandler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	handler := NewDeleteFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Purged")

	keep := valueobjects.NewFragmentID()
	first := valueobjects.NewFragmentID()
	second := valueobjects.NewFragmentID()
	for _, fid := range []valueobjects.FragmentID{keep, first, second} {
		require.NoError(t, addHandler.Handle(ctx, AddTextFragmentCommand{
			FragmentID:  fid.String(),
			MemoryID:    memory.ID().String(),
			PrincipalID: owner.String(),
			Kind:        "text",
			Content:     "entry",
		}))
	}

	// A batch naming a fragment from another memory is rejected whole.
	other := fx.seedMemory(t, owner, "Elsewhere")
	foreign := valueobjects.NewFragmentID()
	require.NoError(t, addHandler.Handle(ctx, AddTextFragmentCommand{
		FragmentID:  foreign.String(),
		MemoryID:    other.ID().String(),
		PrincipalID: owner.String(),
		Kind:        "text",
		Content:     "entry",
	}))

	err := handler.Handle(ctx, DeleteFragmentsCommand{
		MemoryID:    memory.ID().String(),
		FragmentIDs: []string{first.String(), foreign.String()},
		PrincipalID: owner.String(),
	})
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = fx.fragments.Load(ctx, first)
	require.NoError(t, err)

	err = handler.Handle(ctx, DeleteFragmentsCommand{
		MemoryID:    memory.ID().String(),
		FragmentIDs: []string{first.String(), second.String()},
		PrincipalID: owner.String(),
	})
	require.NoError(t, err)

	for _, fid := range []valueobjects.FragmentID{first, second} {
		_, err = fx.fragments.Load(ctx, fid)
		assert.True(t, pkgerrors.IsNotFound(err))
	}

	saved, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.True(t, saved.ContainsFragment(keep))
	assert.False(t, saved.ContainsFragment(first))
	assert.False(t, saved.ContainsFragment(second))
}

func TestDeleteMemory_CascadeSeesCommittedComposition(t *testing.T) {
	fx := newFixture(t)
	addHandler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	handler := NewDeleteMemoryHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	source := fx.seedMemory(t, owner, "Trip notes")
	target := fx.seedMemory(t, owner, "Trip album")

	moved := valueobjects.NewFragmentID()
	require.NoError(t, addHandler.Handle(ctx, AddTextFragmentCommand{
		FragmentID:  moved.String(),
		MemoryID:    source.ID().String(),
		PrincipalID: owner.String(),
		Kind:        "text",
		Content:     "itinerary",
	}))

	// Hold the source lock, start the delete, and commit a merge's
	// effect before releasing. The cascade must run off the state the
	// merge left behind, not an earlier snapshot.
	unlock, err := fx.locker.LockMemory(ctx, source.ID())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- handler.Handle(ctx, DeleteMemoryCommand{
			MemoryID:    source.ID().String(),
			PrincipalID: owner.String(),
		})
	}()

	fragment, err := fx.fragments.Load(ctx, moved)
	require.NoError(t, err)
	require.NoError(t, fragment.MoveTo(target.ID()))
	require.NoError(t, fx.fragments.Save(ctx, fragment))
	require.NoError(t, target.AttachFragment(moved))
	require.NoError(t, fx.memories.Save(ctx, target))
	emptied, err := fx.memories.Load(ctx, source.ID())
	require.NoError(t, err)
	require.NoError(t, emptied.DetachFragment(moved))
	require.NoError(t, fx.memories.Save(ctx, emptied))

	unlock()
	require.NoError(t, <-done)

	_, err = fx.memories.Load(ctx, source.ID())
	assert.True(t, pkgerrors.IsNotFound(err))

	survivor, err := fx.fragments.Load(ctx, moved)
	require.NoError(t, err, "fragment re-parented before the delete must survive it")
	assert.True(t, survivor.MemoryID().Equals(target.ID()))
}

func TestAddTextFragment_SerializedWithCompositions(t *testing.T) {
	fx := newFixture(t)
	handler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Journal")
	other := fx.seedMemory(t, owner, "Archive")

	existing := valueobjects.NewFragmentID()
	require.NoError(t, handler.Handle(ctx, AddTextFragmentCommand{
		FragmentID:  existing.String(),
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		Kind:        "text",
		Content:     "first entry",
	}))

	// Hold the memory lock, start a second add, and commit a split's
	// effect before releasing: the existing fragment leaves the memory.
	// A save off a pre-lock snapshot would resurrect it.
	unlock, err := fx.locker.LockMemory(ctx, memory.ID())
	require.NoError(t, err)

	added := valueobjects.NewFragmentID()
	done := make(chan error, 1)
	go func() {
		done <- handler.Handle(ctx, AddTextFragmentCommand{
			FragmentID:  added.String(),
			MemoryID:    memory.ID().String(),
			PrincipalID: owner.String(),
			Kind:        "text",
			Content:     "second entry",
		})
	}()

	fragment, err := fx.fragments.Load(ctx, existing)
	require.NoError(t, err)
	require.NoError(t, fragment.MoveTo(other.ID()))
	require.NoError(t, fx.fragments.Save(ctx, fragment))
	require.NoError(t, other.AttachFragment(existing))
	require.NoError(t, fx.memories.Save(ctx, other))
	split, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	require.NoError(t, split.DetachFragment(existing))
	require.NoError(t, fx.memories.Save(ctx, split))

	unlock()
	require.NoError(t, <-done)

	saved, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.True(t, saved.ContainsFragment(added))
	assert.False(t, saved.ContainsFragment(existing),
		"membership written by the composition must not be overwritten")
}

func TestDeleteFragment_SerializedWithConcurrentAdd(t *testing.T) {
	fx := newFixture(t)
	addHandler := NewAddFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	handler := NewDeleteFragmentHandler(fx.memories, fx.fragments, fx.sink, fx.locker, fx.bus, fx.logger)
	ctx := context.Background()

	owner := valueobjects.NewAccountID()
	memory := fx.seedMemory(t, owner, "Scratchpad")

	victim := valueobjects.NewFragmentID()
	require.NoError(t, addHandler.Handle(ctx, AddTextFragmentCommand{
		FragmentID:  victim.String(),
		MemoryID:    memory.ID().String(),
		PrincipalID: owner.String(),
		Kind:        "text",
		Content:     "to be removed",
	}))

	unlock, err := fx.locker.LockMemory(ctx, memory.ID())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- handler.Handle(ctx, DeleteFragmentCommand{
			FragmentID:  victim.String(),
			PrincipalID: owner.String(),
		})
	}()

	// Attach another fragment while the delete waits on the lock.
	late, err := entities.NewInlineFragmentWithID(
		valueobjects.NewFragmentID(), memory.ID(), entities.KindText, "written during the delete")
	require.NoError(t, err)
	require.NoError(t, fx.fragments.Save(ctx, late))
	current, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	require.NoError(t, current.AttachFragment(late.ID()))
	require.NoError(t, fx.memories.Save(ctx, current))

	unlock()
	require.NoError(t, <-done)

	saved, err := fx.memories.Load(ctx, memory.ID())
	require.NoError(t, err)
	assert.False(t, saved.ContainsFragment(victim))
	assert.True(t, saved.ContainsFragment(late.ID()),
		"membership written while the delete waited must survive it")
}
