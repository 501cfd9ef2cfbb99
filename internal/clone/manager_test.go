package clone

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/testutil"
)

const testApp = "chat-app"

func newTestManager(t *testing.T) (*Manager, *fakeConductor) {
	t.Helper()
	fake := newFakeConductor()
	clock := testutil.NewDeterministicClock(time.Time{})
	return NewManager(fake, fake, WithClock(clock.Now)), fake
}

func createChat(t *testing.T, m *Manager) Record {
	t.Helper()
	name := "chat"
	rec, err := m.Create(context.Background(), holo.CreateCloneCellPayload{
		AppID:     testApp,
		RoleName:  "chat",
		Modifiers: holo.DnaModifiersOpt{}.WithNetworkSeed("seed-1"),
		Name:      &name,
	})
	require.NoError(t, err)
	return rec
}

func TestManager_CreateYieldsEnabled(t *testing.T) {
	m, fake := newTestManager(t)

	rec := createChat(t, m)
	assert.Equal(t, StateEnabled, rec.State)
	assert.Equal(t, holo.CloneID("chat.0"), rec.CloneID())
	assert.Equal(t, "chat", rec.Name)
	assert.Equal(t, "seed-1", rec.Modifiers.NetworkSeed)
	assert.False(t, rec.CellID.IsZero())
	assert.Equal(t, 1, fake.count("create_clone_cell"))

	second := createChat(t, m)
	assert.Equal(t, holo.CloneID("chat.1"), second.CloneID())
}

func TestManager_CreateFailureDropsRecord(t *testing.T) {
	m, fake := newTestManager(t)
	fake.fail = clienterr.Remote("create_clone_cell", "internal_error", "nope")

	_, err := m.Create(context.Background(), holo.CreateCloneCellPayload{AppID: testApp, RoleName: "chat"})
	assert.True(t, clienterr.IsRemote(err))

	recs, err := m.List(context.Background(), testApp)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestManager_CreateUnparseableCloneIDDropsRecord(t *testing.T) {
	m, fake := newTestManager(t)
	fake.reportID = "not-a-clone-id"

	_, err := m.Create(context.Background(), holo.CreateCloneCellPayload{AppID: testApp, RoleName: "chat"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-clone-id")

	recs, err := m.List(context.Background(), testApp)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestManager_CreateLogsFailedProvisionalRemove(t *testing.T) {
	var buf bytes.Buffer
	fake := newFakeConductor()
	fake.reportID = "not-a-clone-id"
	registry := removeFailingRegistry{NewMemoryRegistry()}
	m := NewManager(fake, fake, WithRegistry(registry), WithLogger(zerolog.New(&buf)))

	_, err := m.Create(context.Background(), holo.CreateCloneCellPayload{AppID: testApp, RoleName: "chat"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-clone-id")

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "failed to drop provisional record")
	assert.Contains(t, out, "registry unavailable")
}

func TestManager_CreateRequiresRole(t *testing.T) {
	m, fake := newTestManager(t)

	_, err := m.Create(context.Background(), holo.CreateCloneCellPayload{AppID: testApp})
	assert.True(t, clienterr.IsPrecondition(err))
	assert.Zero(t, fake.count("create_clone_cell"))
}

func TestManager_DeleteEnabledRejectedLocally(t *testing.T) {
	m, fake := newTestManager(t)
	rec := createChat(t, m)

	_, err := m.Delete(context.Background(), testApp, holo.ByCloneID(rec.CloneID()))
	assert.True(t, clienterr.IsPrecondition(err))
	assert.Equal(t, clienterr.CodeIllegalState, clienterr.CodeOf(err))
	assert.Zero(t, fake.count("delete_clone_cell"))

	got, err := m.Get(context.Background(), testApp, holo.ByCloneID(rec.CloneID()))
	require.NoError(t, err)
	assert.Equal(t, StateEnabled, got.State)
}

func TestManager_EnableEnabledIsNoop(t *testing.T) {
	m, fake := newTestManager(t)
	rec := createChat(t, m)

	got, err := m.Enable(context.Background(), testApp, holo.ByCloneID(rec.CloneID()))
	require.NoError(t, err)
	assert.Equal(t, StateEnabled, got.State)
	assert.Zero(t, fake.count("enable_clone_cell"))
}

func TestManager_DisableDisabledIsNoop(t *testing.T) {
	m, fake := newTestManager(t)
	rec := createChat(t, m)
	id := holo.ByCloneID(rec.CloneID())

	_, err := m.Disable(context.Background(), testApp, id)
	require.NoError(t, err)
	got, err := m.Disable(context.Background(), testApp, id)
	require.NoError(t, err)
	assert.Equal(t, StateDisabled, got.State)
	assert.Equal(t, 1, fake.count("disable_clone_cell"))
}

func TestManager_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	m, fake := newTestManager(t)
	rec := createChat(t, m)
	id := holo.ByCloneID(rec.CloneID())

	rec, err := m.Disable(ctx, testApp, id)
	require.NoError(t, err)
	assert.Equal(t, StateDisabled, rec.State)

	rec, err = m.Enable(ctx, testApp, id)
	require.NoError(t, err)
	assert.Equal(t, StateEnabled, rec.State)

	_, err = m.Disable(ctx, testApp, id)
	require.NoError(t, err)

	rec, err = m.Delete(ctx, testApp, id)
	require.NoError(t, err)
	assert.Equal(t, StateDeleted, rec.State)
	assert.Equal(t, 1, fake.count("delete_clone_cell"))

	_, err = m.Delete(ctx, testApp, id)
	assert.True(t, clienterr.IsPrecondition(err))
	assert.Equal(t, clienterr.CodeCellNotFound, clienterr.CodeOf(err))
	assert.Equal(t, 1, fake.count("delete_clone_cell"))

	_, err = m.Enable(ctx, testApp, id)
	assert.True(t, clienterr.IsPrecondition(err))
	_, err = m.Disable(ctx, testApp, id)
	assert.True(t, clienterr.IsPrecondition(err))
	assert.Equal(t, 1, fake.count("enable_clone_cell"))
}

func TestManager_UnknownClone(t *testing.T) {
	m, fake := newTestManager(t)

	_, err := m.Enable(context.Background(), testApp, holo.ByCloneID("chat.7"))
	assert.Equal(t, clienterr.CodeCellNotFound, clienterr.CodeOf(err))
	_, err = m.Delete(context.Background(), testApp, holo.ByCellID(testutil.CellID(9, 9)))
	assert.Equal(t, clienterr.CodeCellNotFound, clienterr.CodeOf(err))
	_, err = m.Disable(context.Background(), testApp, holo.CloneCellID{})
	assert.Equal(t, clienterr.CodeInvalidRequest, clienterr.CodeOf(err))
	assert.Zero(t, fake.count("enable_clone_cell"))
}

func TestManager_ResolveByCellID(t *testing.T) {
	m, _ := newTestManager(t)
	rec := createChat(t, m)

	got, err := m.Disable(context.Background(), testApp, holo.ByCellID(rec.CellID))
	require.NoError(t, err)
	assert.Equal(t, rec.Key, got.Key)
	assert.Equal(t, StateDisabled, got.State)
}

func TestManager_DeleteDisabled(t *testing.T) {
	ctx := context.Background()
	m, fake := newTestManager(t)
	a := createChat(t, m)
	b := createChat(t, m)
	c := createChat(t, m)

	for _, rec := range []Record{a, c} {
		_, err := m.Disable(ctx, testApp, holo.ByCloneID(rec.CloneID()))
		require.NoError(t, err)
	}

	fake.fail = clienterr.Remote("delete_archived_clone_cells", "internal_error", "busy")
	_, err := m.DeleteDisabled(ctx, testApp, "chat")
	assert.True(t, clienterr.IsRemote(err))
	got, err := m.Get(ctx, testApp, holo.ByCloneID(a.CloneID()))
	require.NoError(t, err)
	assert.Equal(t, StateDisabled, got.State)

	fake.fail = nil
	deleted, err := m.DeleteDisabled(ctx, testApp, "chat")
	require.NoError(t, err)
	require.Len(t, deleted, 2)
	assert.Equal(t, a.Key, deleted[0].Key)
	assert.Equal(t, c.Key, deleted[1].Key)

	got, err = m.Get(ctx, testApp, holo.ByCloneID(b.CloneID()))
	require.NoError(t, err)
	assert.Equal(t, StateEnabled, got.State)
}

func TestManager_Refresh(t *testing.T) {
	ctx := context.Background()
	m, fake := newTestManager(t)
	tracked := createChat(t, m)

	// A clone created behind the manager's back.
	_, err := fake.CreateCloneCell(ctx, holo.CreateCloneCellPayload{AppID: testApp, RoleName: "chat"})
	require.NoError(t, err)
	require.NoError(t, fake.DisableCloneCell(ctx, holo.DisableCloneCellPayload{
		AppID: testApp, CloneCellID: holo.ByCloneID("chat.1"),
	}))
	// And the tracked clone removed behind its back.
	require.NoError(t, fake.DisableCloneCell(ctx, holo.DisableCloneCellPayload{
		AppID: testApp, CloneCellID: holo.ByCloneID(tracked.CloneID()),
	}))
	require.NoError(t, fake.DeleteCloneCell(ctx, holo.DeleteCloneCellPayload{
		AppID: testApp, CloneCellID: holo.ByCloneID(tracked.CloneID()),
	}))

	recs, err := m.Refresh(ctx, testApp)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, StateDeleted, recs[0].State)
	assert.Equal(t, holo.CloneID("chat.1"), recs[1].CloneID())
	assert.Equal(t, StateDisabled, recs[1].State)
}

func TestManager_RefreshDropsStaleCreated(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	// Left behind by a run that died while the conductor call was in flight.
	require.NoError(t, m.Registry().Put(ctx, Record{
		Key:   Key{AppID: testApp, Role: "chat", Index: 0},
		State: StateCreated,
	}))

	recs, err := m.Refresh(ctx, testApp)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = m.Registry().Get(ctx, Key{AppID: testApp, Role: "chat", Index: 0})
	assert.ErrorIs(t, err, ErrNotFound)

	// The freed index is picked again and matches what the conductor assigns.
	rec := createChat(t, m)
	assert.Equal(t, holo.CloneID("chat.0"), rec.CloneID())
}

func TestManager_ConcurrentCreatesSameApp(t *testing.T) {
	m, _ := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(context.Background(), holo.CreateCloneCellPayload{AppID: testApp, RoleName: "chat"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	recs, err := m.List(context.Background(), testApp)
	require.NoError(t, err)
	require.Len(t, recs, 8)
	for i, rec := range recs {
		assert.Equal(t, uint32(i), rec.Index)
		assert.Equal(t, StateEnabled, rec.State)
	}
}

func TestManager_DeleteWithoutAdmin(t *testing.T) {
	fake := newFakeConductor()
	m := NewManager(fake, nil)
	rec := createChat(t, m)
	_, err := m.Disable(context.Background(), testApp, holo.ByCloneID(rec.CloneID()))
	require.NoError(t, err)

	_, err = m.Delete(context.Background(), testApp, holo.ByCloneID(rec.CloneID()))
	assert.True(t, clienterr.IsPrecondition(err))
}
