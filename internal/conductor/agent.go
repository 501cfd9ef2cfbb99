package conductor

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/clone"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/signing"
	"github.com/roach88/holoclient/internal/wire"
)

// ErrCellNotFound marks a role name, clone id or cell id that the app
// does not have.
var ErrCellNotFound = errors.New("cell not found")

// Target selects the cell of a zome call: a role name, a clone id
// ("role.N") or a cell id.
type Target struct {
	Role   string
	CellID *holo.CellID
}

// RoleTarget targets a provisioned role, or a clone when role has the
// "role.N" form.
func RoleTarget(role string) Target {
	return Target{Role: role}
}

// CellTarget targets a cell directly.
func CellTarget(id holo.CellID) Target {
	return Target{CellID: &id}
}

func (t Target) String() string {
	if t.CellID != nil {
		return t.CellID.String()
	}
	return t.Role
}

// AppAgent is an app interface bound to one installed app. It caches the
// app's info to resolve call targets and drives the clone lifecycle.
type AppAgent struct {
	app    *AppWebsocket
	appID  holo.InstalledAppID
	clones *clone.Manager

	mu   sync.RWMutex
	info *holo.AppInfo
}

// NewAppAgent loads the app's info and returns an agent for it. admin may
// be nil; clone deletes then fail with a precondition error.
func NewAppAgent(ctx context.Context, app *AppWebsocket, appID holo.InstalledAppID, admin clone.AdminAPI, opts ...clone.ManagerOption) (*AppAgent, error) {
	a := &AppAgent{app: app, appID: appID}
	a.clones = clone.NewManager(app, admin, opts...)
	if _, err := a.RefreshAppInfo(ctx); err != nil {
		return nil, err
	}
	if _, err := a.clones.Refresh(ctx, appID); err != nil {
		return nil, err
	}
	return a, nil
}

// AppID returns the bound app id.
func (a *AppAgent) AppID() holo.InstalledAppID {
	return a.appID
}

// AppInfo returns the cached app info.
func (a *AppAgent) AppInfo() *holo.AppInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.info
}

// Clones returns the agent's lifecycle manager.
func (a *AppAgent) Clones() *clone.Manager {
	return a.clones
}

// RefreshAppInfo re-reads the app info from the conductor.
func (a *AppAgent) RefreshAppInfo(ctx context.Context) (*holo.AppInfo, error) {
	info, err := a.app.AppInfo(ctx, a.appID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, clienterr.Precondition("app_agent.refresh", clienterr.CodeCellNotFound, "app %q is not installed", a.appID)
	}
	a.mu.Lock()
	a.info = info
	a.mu.Unlock()
	return info, nil
}

// Resolve maps a target to a cell id using the cached app info.
func (a *AppAgent) Resolve(t Target) (holo.CellID, error) {
	if t.CellID != nil {
		return *t.CellID, nil
	}
	info := a.AppInfo()
	if info == nil {
		return holo.CellID{}, a.notFound(t)
	}

	if i := strings.LastIndexByte(t.Role, '.'); i > 0 {
		role := t.Role[:i]
		for _, cell := range info.ClonedCells(role) {
			if string(cell.CloneID) == t.Role {
				if !cell.Enabled {
					return holo.CellID{}, clienterr.Precondition("app_agent.resolve", clienterr.CodeIllegalState, "clone %s is disabled", t.Role)
				}
				return cell.CellID, nil
			}
		}
	}
	if cell, ok := info.ProvisionedCell(t.Role); ok {
		return cell.CellID, nil
	}
	return holo.CellID{}, a.notFound(t)
}

func (a *AppAgent) notFound(t Target) error {
	return &clienterr.Error{
		Kind:    clienterr.KindPrecondition,
		Op:      "app_agent.resolve",
		Code:    clienterr.CodeCellNotFound,
		Message: "no cell for " + t.String() + " in app " + a.appID,
		Err:     ErrCellNotFound,
	}
}

// CallZome encodes payload, calls fn on the target cell and returns the
// MessagePack-encoded result.
func (a *AppAgent) CallZome(ctx context.Context, t Target, zome, fn string, payload interface{}) ([]byte, error) {
	cellID, err := a.Resolve(t)
	if err != nil {
		return nil, err
	}
	encoded, err := wire.EncodeExternIO(payload)
	if err != nil {
		return nil, clienterr.Precondition("app_agent.call_zome", clienterr.CodeInvalidRequest, "encode payload: %v", err)
	}
	return a.app.CallZome(ctx, signing.ZomeCallParams{
		CellID:   cellID,
		ZomeName: zome,
		FnName:   fn,
		Payload:  encoded,
	})
}

// CallZomeInto calls a zome function and decodes its result into out.
func (a *AppAgent) CallZomeInto(ctx context.Context, t Target, zome, fn string, payload, out interface{}) error {
	raw, err := a.CallZome(ctx, t, zome, fn, payload)
	if err != nil {
		return err
	}
	if err := wire.DecodeExternIO(raw, out); err != nil {
		return &clienterr.Error{Kind: clienterr.KindRemote, Op: "app_agent.call_zome", Code: clienterr.CodeInvalidResponse, Err: err}
	}
	return nil
}

// CreateCloneCell creates a clone of the app and refreshes the cached info
// so the clone can be targeted.
func (a *AppAgent) CreateCloneCell(ctx context.Context, p holo.CreateCloneCellPayload) (clone.Record, error) {
	p.AppID = a.appID
	rec, err := a.clones.Create(ctx, p)
	if err != nil {
		return clone.Record{}, err
	}
	_, err = a.RefreshAppInfo(ctx)
	return rec, err
}

// EnableCloneCell enables a clone of the app.
func (a *AppAgent) EnableCloneCell(ctx context.Context, id holo.CloneCellID) (clone.Record, error) {
	return a.afterClone(ctx)(a.clones.Enable(ctx, a.appID, id))
}

// DisableCloneCell disables a clone of the app.
func (a *AppAgent) DisableCloneCell(ctx context.Context, id holo.CloneCellID) (clone.Record, error) {
	return a.afterClone(ctx)(a.clones.Disable(ctx, a.appID, id))
}

// DeleteCloneCell deletes a disabled clone of the app.
func (a *AppAgent) DeleteCloneCell(ctx context.Context, id holo.CloneCellID) (clone.Record, error) {
	return a.afterClone(ctx)(a.clones.Delete(ctx, a.appID, id))
}

func (a *AppAgent) afterClone(ctx context.Context) func(clone.Record, error) (clone.Record, error) {
	return func(rec clone.Record, err error) (clone.Record, error) {
		if err != nil {
			return clone.Record{}, err
		}
		_, err = a.RefreshAppInfo(ctx)
		return rec, err
	}
}
