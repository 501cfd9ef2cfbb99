package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/holoclient/internal/clone"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/testutil"
)

func testRecord(index uint32, state clone.State) clone.Record {
	return clone.Record{
		Key:    clone.Key{AppID: "chat-app", Role: "chat", Index: index},
		CellID: testutil.CellID(byte(10+index), 1),
		State:  state,
		Modifiers: holo.DnaModifiers{
			NetworkSeed: "seed",
			Properties:  []byte{0x80},
			OriginTime:  holo.TimestampFromTime(testutil.Epoch),
			QuantumTime: holo.DurationFrom(5 * time.Minute),
		},
		Name:      "chat",
		UpdatedAt: testutil.Epoch,
	}
}

func TestRegistry_PutGet(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(createTestStore(t))

	rec := testRecord(0, clone.StateEnabled)
	require.NoError(t, r.Put(ctx, rec))

	got, err := r.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry(createTestStore(t))

	_, err := r.Get(context.Background(), clone.Key{AppID: "x", Role: "y"})
	assert.ErrorIs(t, err, clone.ErrNotFound)
}

func TestRegistry_ZeroCellID(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(createTestStore(t))

	rec := testRecord(0, clone.StateCreated)
	rec.CellID = holo.CellID{}
	require.NoError(t, r.Put(ctx, rec))

	got, err := r.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.True(t, got.CellID.IsZero())
}

func TestRegistry_ListOrdered(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(createTestStore(t))

	for _, i := range []uint32{2, 0, 1} {
		require.NoError(t, r.Put(ctx, testRecord(i, clone.StateEnabled)))
	}
	other := testRecord(0, clone.StateEnabled)
	other.AppID = "other-app"
	require.NoError(t, r.Put(ctx, other))

	recs, err := r.List(ctx, "chat-app")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, uint32(i), rec.Index)
	}
}

func TestRegistry_HistoryRecordsStateChanges(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(createTestStore(t))

	rec := testRecord(0, clone.StateCreated)
	for _, st := range []clone.State{clone.StateCreated, clone.StateEnabled, clone.StateEnabled, clone.StateDisabled, clone.StateDeleted} {
		rec.State = st
		require.NoError(t, r.Put(ctx, rec))
	}

	history, err := r.History(ctx, rec.Key)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, clone.State(""), history[0].From)
	assert.Equal(t, clone.StateCreated, history[0].To)
	assert.Equal(t, clone.StateEnabled, history[1].To)
	assert.Equal(t, clone.StateEnabled, history[2].From)
	assert.Equal(t, clone.StateDisabled, history[2].To)
	assert.Equal(t, clone.StateDeleted, history[3].To)
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].Seq, history[i-1].Seq)
	}
}

func TestRegistry_Remove(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(createTestStore(t))

	rec := testRecord(0, clone.StateCreated)
	require.NoError(t, r.Put(ctx, rec))
	require.NoError(t, r.Remove(ctx, rec.Key))
	require.NoError(t, r.Remove(ctx, rec.Key))

	_, err := r.Get(ctx, rec.Key)
	assert.ErrorIs(t, err, clone.ErrNotFound)
}

func TestRegistry_NormalizesKeys(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(createTestStore(t))

	rec := testRecord(0, clone.StateEnabled)
	rec.AppID = "cafe\u0301"
	require.NoError(t, r.Put(ctx, rec))

	got, err := r.Get(ctx, clone.Key{AppID: "caf\u00e9", Role: "chat"})
	require.NoError(t, err)
	assert.Equal(t, clone.StateEnabled, got.State)
}

// The SQLite registry drives the lifecycle manager the same way the
// in-memory one does.
func TestRegistry_BacksManager(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(createTestStore(t))
	fake := &stubConductor{}
	m := clone.NewManager(fake, fake, clone.WithRegistry(r))

	rec, err := m.Create(ctx, holo.CreateCloneCellPayload{AppID: "chat-app", RoleName: "chat"})
	require.NoError(t, err)
	assert.Equal(t, clone.StateEnabled, rec.State)

	_, err = m.Disable(ctx, "chat-app", holo.ByCloneID(rec.CloneID()))
	require.NoError(t, err)
	_, err = m.Delete(ctx, "chat-app", holo.ByCloneID(rec.CloneID()))
	require.NoError(t, err)

	history, err := r.History(ctx, rec.Key)
	require.NoError(t, err)
	var states []clone.State
	for _, h := range history {
		states = append(states, h.To)
	}
	assert.Equal(t, []clone.State{clone.StateCreated, clone.StateEnabled, clone.StateDisabled, clone.StateDeleted}, states)
}

type stubConductor struct{}

func (stubConductor) AppInfo(context.Context, holo.InstalledAppID) (*holo.AppInfo, error) {
	return &holo.AppInfo{}, nil
}

func (stubConductor) CreateCloneCell(_ context.Context, req holo.CreateCloneCellPayload) (*holo.ClonedCell, error) {
	return &holo.ClonedCell{
		CellID:  testutil.CellID(50, 1),
		CloneID: holo.NewCloneID(req.RoleName, 0),
		Enabled: true,
	}, nil
}

func (stubConductor) EnableCloneCell(context.Context, holo.EnableCloneCellPayload) (*holo.ClonedCell, error) {
	return &holo.ClonedCell{}, nil
}

func (stubConductor) DisableCloneCell(context.Context, holo.DisableCloneCellPayload) error {
	return nil
}

func (stubConductor) DeleteCloneCell(context.Context, holo.DeleteCloneCellPayload) error {
	return nil
}

func (stubConductor) DeleteDisabledCloneCells(context.Context, holo.DeleteDisabledCloneCellsPayload) error {
	return nil
}

// emptyApp reports an installed app with no clones.
type emptyApp struct {
	clone.AppAPI
}

func (emptyApp) AppInfo(_ context.Context, app holo.InstalledAppID) (*holo.AppInfo, error) {
	return &holo.AppInfo{InstalledAppID: app, CellInfo: map[holo.RoleName][]holo.CellInfo{}}, nil
}

func TestRegistry_RefreshDropsCreatedLeftByEarlierRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clones.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, NewRegistry(s).Put(ctx, testRecord(0, clone.StateCreated)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	r := NewRegistry(s)
	m := clone.NewManager(emptyApp{}, nil, clone.WithRegistry(r))

	recs, err := m.Refresh(ctx, "chat-app")
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = r.Get(ctx, testRecord(0, clone.StateCreated).Key)
	assert.ErrorIs(t, err, clone.ErrNotFound)
}
