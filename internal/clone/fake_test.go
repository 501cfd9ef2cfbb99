package clone

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/testutil"
)

// fakeConductor records calls and keeps clone state the way a conductor
// does: sequential clone indexes per role, deletes only when disabled.
type fakeConductor struct {
	mu     sync.Mutex
	calls  map[string]int
	clones map[holo.CloneID]*holo.ClonedCell
	order  []holo.CloneID
	next   map[holo.RoleName]uint32
	fail   error

	// reportID, when set, replaces the clone id CreateCloneCell returns.
	reportID holo.CloneID
}

var (
	_ AppAPI   = (*fakeConductor)(nil)
	_ AdminAPI = (*fakeConductor)(nil)
)

func newFakeConductor() *fakeConductor {
	return &fakeConductor{
		calls:  make(map[string]int),
		clones: make(map[holo.CloneID]*holo.ClonedCell),
		next:   make(map[holo.RoleName]uint32),
	}
}

func (f *fakeConductor) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeConductor) record(name string) error {
	f.calls[name]++
	return f.fail
}

func (f *fakeConductor) AppInfo(_ context.Context, app holo.InstalledAppID) (*holo.AppInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("app_info"); err != nil {
		return nil, err
	}
	info := &holo.AppInfo{InstalledAppID: app, CellInfo: map[holo.RoleName][]holo.CellInfo{}}
	for _, id := range f.order {
		cell, ok := f.clones[id]
		if !ok {
			continue
		}
		role, _, _ := id.Parse()
		c := *cell
		info.CellInfo[role] = append(info.CellInfo[role], holo.CellInfo{Cloned: &c})
	}
	return info, nil
}

func (f *fakeConductor) CreateCloneCell(_ context.Context, req holo.CreateCloneCellPayload) (*holo.ClonedCell, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_clone_cell"); err != nil {
		return nil, err
	}
	index := f.next[req.RoleName]
	f.next[req.RoleName]++
	id := holo.NewCloneID(req.RoleName, index)
	cell := &holo.ClonedCell{
		CellID:       testutil.CellID(byte(100+len(f.order)), 1),
		CloneID:      id,
		DnaModifiers: req.Modifiers.Apply(holo.DnaModifiers{}),
		Enabled:      true,
	}
	if req.Name != nil {
		cell.Name = *req.Name
	}
	f.clones[id] = cell
	f.order = append(f.order, id)
	c := *cell
	if f.reportID != "" {
		c.CloneID = f.reportID
	}
	return &c, nil
}

// removeFailingRegistry is a MemoryRegistry whose Remove always fails.
type removeFailingRegistry struct {
	*MemoryRegistry
}

func (r removeFailingRegistry) Remove(context.Context, Key) error {
	return errors.New("registry unavailable")
}

func (f *fakeConductor) EnableCloneCell(_ context.Context, req holo.EnableCloneCellPayload) (*holo.ClonedCell, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("enable_clone_cell"); err != nil {
		return nil, err
	}
	cell, ok := f.clones[*req.CloneCellID.CloneID]
	if !ok {
		return nil, clienterr.Remote("enable_clone_cell", "internal_error", "no such clone")
	}
	cell.Enabled = true
	c := *cell
	return &c, nil
}

func (f *fakeConductor) DisableCloneCell(_ context.Context, req holo.DisableCloneCellPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("disable_clone_cell"); err != nil {
		return err
	}
	cell, ok := f.clones[*req.CloneCellID.CloneID]
	if !ok {
		return clienterr.Remote("disable_clone_cell", "internal_error", "no such clone")
	}
	cell.Enabled = false
	return nil
}

func (f *fakeConductor) DeleteCloneCell(_ context.Context, req holo.DeleteCloneCellPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete_clone_cell"); err != nil {
		return err
	}
	id := *req.CloneCellID.CloneID
	cell, ok := f.clones[id]
	if !ok || cell.Enabled {
		return clienterr.Remote("delete_clone_cell", "internal_error", "clone is not disabled")
	}
	delete(f.clones, id)
	return nil
}

func (f *fakeConductor) DeleteDisabledCloneCells(_ context.Context, req holo.DeleteDisabledCloneCellsPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete_archived_clone_cells"); err != nil {
		return err
	}
	for id, cell := range f.clones {
		role, _, _ := id.Parse()
		if role == req.RoleName && !cell.Enabled {
			delete(f.clones, id)
		}
	}
	return nil
}
