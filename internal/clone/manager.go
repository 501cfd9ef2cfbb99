package clone

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/holo"
)

// Operation names used in errors and logs.
const (
	OpCreate         = "clone.create"
	OpEnable         = "clone.enable"
	OpDisable        = "clone.disable"
	OpDelete         = "clone.delete"
	OpDeleteDisabled = "clone.delete_disabled"
	OpRefresh        = "clone.refresh"
)

// AppAPI is the app interface surface the manager drives.
type AppAPI interface {
	AppInfo(ctx context.Context, app holo.InstalledAppID) (*holo.AppInfo, error)
	CreateCloneCell(ctx context.Context, req holo.CreateCloneCellPayload) (*holo.ClonedCell, error)
	EnableCloneCell(ctx context.Context, req holo.EnableCloneCellPayload) (*holo.ClonedCell, error)
	DisableCloneCell(ctx context.Context, req holo.DisableCloneCellPayload) error
}

// AdminAPI is the admin interface surface the manager drives.
type AdminAPI interface {
	DeleteCloneCell(ctx context.Context, req holo.DeleteCloneCellPayload) error
	DeleteDisabledCloneCells(ctx context.Context, req holo.DeleteDisabledCloneCellsPayload) error
}

// Manager enforces the clone lifecycle and keeps a Registry in step with
// the conductor. Transitions on one app are serialized; different apps
// proceed in parallel.
type Manager struct {
	app      AppAPI
	admin    AdminAPI
	registry Registry
	now      func() time.Time
	log      zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRegistry replaces the in-memory registry.
func WithRegistry(r Registry) ManagerOption {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithClock sets the time source for Record.UpdatedAt.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = logger
	}
}

// NewManager creates a manager. admin may be nil when only the app
// interface is available; deletes then fail with a precondition error.
func NewManager(app AppAPI, admin AdminAPI, opts ...ManagerOption) *Manager {
	m := &Manager{
		app:      app,
		admin:    admin,
		registry: NewMemoryRegistry(),
		now:      time.Now,
		log:      log.Logger,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With().Str("component", "clone").Logger()
	return m
}

// Registry returns the registry backing m.
func (m *Manager) Registry() Registry {
	return m.registry
}

func (m *Manager) lock(app string) func() {
	app = normalize(app)
	m.mu.Lock()
	l, ok := m.locks[app]
	if !ok {
		l = &sync.Mutex{}
		m.locks[app] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Create asks the conductor for a new clone of req.RoleName and records it
// as Enabled. While the request is in flight the record is held in
// Created; it is dropped if the conductor refuses.
func (m *Manager) Create(ctx context.Context, req holo.CreateCloneCellPayload) (Record, error) {
	if req.AppID == "" || req.RoleName == "" {
		return Record{}, clienterr.Precondition(OpCreate, clienterr.CodeInvalidRequest, "app id and role name are required")
	}
	unlock := m.lock(req.AppID)
	defer unlock()

	provisional, err := m.nextKey(ctx, req.AppID, req.RoleName)
	if err != nil {
		return Record{}, err
	}
	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	if err := m.registry.Put(ctx, Record{
		Key:       provisional,
		State:     StateCreated,
		Name:      name,
		UpdatedAt: m.now(),
	}); err != nil {
		return Record{}, errors.Wrap(err, "record created clone")
	}

	cell, err := m.app.CreateCloneCell(ctx, req)
	if err == nil && cell == nil {
		err = errors.New("conductor returned no clone cell")
	}
	if err != nil {
		if rmErr := m.registry.Remove(ctx, provisional); rmErr != nil {
			m.log.Warn().Err(rmErr).Str("clone", provisional.String()).Msg("failed to drop provisional record")
		}
		return Record{}, err
	}

	key, err := KeyFromCloneID(req.AppID, cell.CloneID)
	if err != nil {
		if rmErr := m.registry.Remove(ctx, provisional); rmErr != nil {
			m.log.Warn().Err(rmErr).Str("clone", provisional.String()).Msg("failed to drop provisional record")
		}
		return Record{}, errors.Wrapf(err, "conductor returned clone id %q", cell.CloneID)
	}
	if key.Normalized() != provisional.Normalized() {
		if err := m.registry.Remove(ctx, provisional); err != nil {
			return Record{}, errors.Wrap(err, "drop provisional record")
		}
	}

	rec := Record{
		Key:       key,
		CellID:    cell.CellID,
		State:     StateEnabled,
		Modifiers: cell.DnaModifiers,
		Name:      cell.Name,
		UpdatedAt: m.now(),
	}
	if err := m.registry.Put(ctx, rec); err != nil {
		return Record{}, errors.Wrap(err, "record enabled clone")
	}
	m.log.Info().Str("clone", key.String()).Str("cell_id", cell.CellID.String()).Msg("clone created")
	return m.registry.Get(ctx, key)
}

// nextKey picks the index the conductor is expected to assign: one past
// the highest index ever recorded for the role.
func (m *Manager) nextKey(ctx context.Context, app holo.InstalledAppID, role holo.RoleName) (Key, error) {
	recs, err := m.registry.List(ctx, app)
	if err != nil {
		return Key{}, errors.Wrap(err, "list clones")
	}
	key := Key{AppID: app, Role: role}
	for _, rec := range recs {
		if rec.Role == normalize(role) && rec.Index >= key.Index {
			key.Index = rec.Index + 1
		}
	}
	return key, nil
}

// Enable re-enables a Disabled clone. Enabling an Enabled clone returns it
// unchanged without contacting the conductor.
func (m *Manager) Enable(ctx context.Context, app holo.InstalledAppID, id holo.CloneCellID) (Record, error) {
	unlock := m.lock(app)
	defer unlock()

	rec, err := m.resolve(ctx, OpEnable, app, id)
	if err != nil {
		return Record{}, err
	}
	switch rec.State {
	case StateEnabled:
		return rec, nil
	case StateDisabled:
	default:
		return Record{}, illegal(OpEnable, rec)
	}

	cell, err := m.app.EnableCloneCell(ctx, holo.EnableCloneCellPayload{
		AppID:       app,
		CloneCellID: holo.ByCloneID(rec.CloneID()),
	})
	if err != nil {
		return Record{}, err
	}
	if cell != nil && !cell.CellID.IsZero() {
		rec.CellID = cell.CellID
	}
	return m.transition(ctx, rec, StateEnabled)
}

// Disable disables an Enabled clone. Disabling a Disabled clone returns it
// unchanged without contacting the conductor.
func (m *Manager) Disable(ctx context.Context, app holo.InstalledAppID, id holo.CloneCellID) (Record, error) {
	unlock := m.lock(app)
	defer unlock()

	rec, err := m.resolve(ctx, OpDisable, app, id)
	if err != nil {
		return Record{}, err
	}
	switch rec.State {
	case StateDisabled:
		return rec, nil
	case StateEnabled:
	default:
		return Record{}, illegal(OpDisable, rec)
	}

	if err := m.app.DisableCloneCell(ctx, holo.DisableCloneCellPayload{
		AppID:       app,
		CloneCellID: holo.ByCloneID(rec.CloneID()),
	}); err != nil {
		return Record{}, err
	}
	return m.transition(ctx, rec, StateDisabled)
}

// Delete permanently deletes a Disabled clone.
func (m *Manager) Delete(ctx context.Context, app holo.InstalledAppID, id holo.CloneCellID) (Record, error) {
	unlock := m.lock(app)
	defer unlock()

	rec, err := m.resolve(ctx, OpDelete, app, id)
	if err != nil {
		return Record{}, err
	}
	switch rec.State {
	case StateDisabled:
	case StateDeleted:
		return Record{}, notFound(OpDelete, app, id)
	default:
		return Record{}, illegal(OpDelete, rec)
	}
	if m.admin == nil {
		return Record{}, clienterr.Precondition(OpDelete, clienterr.CodeInvalidRequest, "no admin interface available")
	}

	if err := m.admin.DeleteCloneCell(ctx, holo.DeleteCloneCellPayload{
		AppID:       app,
		CloneCellID: holo.ByCloneID(rec.CloneID()),
	}); err != nil {
		return Record{}, err
	}
	return m.transition(ctx, rec, StateDeleted)
}

// DeleteDisabled deletes every Disabled clone of role. Local records change
// only after the conductor confirms.
func (m *Manager) DeleteDisabled(ctx context.Context, app holo.InstalledAppID, role holo.RoleName) ([]Record, error) {
	if m.admin == nil {
		return nil, clienterr.Precondition(OpDeleteDisabled, clienterr.CodeInvalidRequest, "no admin interface available")
	}
	unlock := m.lock(app)
	defer unlock()

	if err := m.admin.DeleteDisabledCloneCells(ctx, holo.DeleteDisabledCloneCellsPayload{
		AppID:    app,
		RoleName: role,
	}); err != nil {
		return nil, err
	}

	recs, err := m.registry.List(ctx, app)
	if err != nil {
		return nil, errors.Wrap(err, "list clones")
	}
	var deleted []Record
	for _, rec := range recs {
		if rec.Role != normalize(role) || rec.State != StateDisabled {
			continue
		}
		rec, err = m.transition(ctx, rec, StateDeleted)
		if err != nil {
			return deleted, err
		}
		deleted = append(deleted, rec)
	}
	return deleted, nil
}

// Refresh re-reads app info from the conductor and reconciles the
// registry: clones the conductor reports are recorded Enabled or Disabled,
// tracked clones it no longer reports are marked Deleted, and provisional
// Created records it never confirmed are dropped.
func (m *Manager) Refresh(ctx context.Context, app holo.InstalledAppID) ([]Record, error) {
	unlock := m.lock(app)
	defer unlock()

	info, err := m.app.AppInfo(ctx, app)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, clienterr.Precondition(OpRefresh, clienterr.CodeCellNotFound, "app %q is not installed", app)
	}

	seen := make(map[Key]bool)
	for role := range info.CellInfo {
		for _, cell := range info.ClonedCells(role) {
			key, err := KeyFromCloneID(app, cell.CloneID)
			if err != nil {
				m.log.Warn().Err(err).Str("clone_id", string(cell.CloneID)).Msg("skipping clone with unparseable id")
				continue
			}
			state := StateDisabled
			if cell.Enabled {
				state = StateEnabled
			}
			seen[key.Normalized()] = true
			if err := m.registry.Put(ctx, Record{
				Key:       key,
				CellID:    cell.CellID,
				State:     state,
				Modifiers: cell.DnaModifiers,
				Name:      cell.Name,
				UpdatedAt: m.now(),
			}); err != nil {
				return nil, errors.Wrap(err, "record clone")
			}
		}
	}

	recs, err := m.registry.List(ctx, app)
	if err != nil {
		return nil, errors.Wrap(err, "list clones")
	}
	for _, rec := range recs {
		if seen[rec.Key] || rec.State == StateDeleted {
			continue
		}
		if rec.State == StateCreated {
			// Create holds the app lock until it settles, so this row was
			// left behind by a run that died mid-request.
			if err := m.registry.Remove(ctx, rec.Key); err != nil {
				return nil, errors.Wrap(err, "drop stale provisional record")
			}
			m.log.Info().Str("clone", rec.Key.String()).Msg("dropped stale provisional record")
			continue
		}
		rec.State = StateDeleted
		rec.UpdatedAt = m.now()
		if err := m.registry.Put(ctx, rec); err != nil {
			return nil, errors.Wrap(err, "record deleted clone")
		}
	}
	return m.registry.List(ctx, app)
}

// Get returns the tracked record for id.
func (m *Manager) Get(ctx context.Context, app holo.InstalledAppID, id holo.CloneCellID) (Record, error) {
	return m.resolve(ctx, "clone.get", app, id)
}

// List returns every tracked clone of app.
func (m *Manager) List(ctx context.Context, app holo.InstalledAppID) ([]Record, error) {
	return m.registry.List(ctx, app)
}

func (m *Manager) resolve(ctx context.Context, op string, app holo.InstalledAppID, id holo.CloneCellID) (Record, error) {
	switch {
	case id.CloneID != nil:
		key, err := KeyFromCloneID(app, *id.CloneID)
		if err != nil {
			return Record{}, clienterr.Precondition(op, clienterr.CodeInvalidRequest, "%v", err)
		}
		rec, err := m.registry.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return Record{}, notFound(op, app, id)
		}
		return rec, err
	case id.CellID != nil:
		recs, err := m.registry.List(ctx, app)
		if err != nil {
			return Record{}, errors.Wrap(err, "list clones")
		}
		for _, rec := range recs {
			if rec.CellID.Equal(*id.CellID) {
				return rec, nil
			}
		}
		return Record{}, notFound(op, app, id)
	default:
		return Record{}, clienterr.Precondition(op, clienterr.CodeInvalidRequest, "clone cell id is empty")
	}
}

func (m *Manager) transition(ctx context.Context, rec Record, to State) (Record, error) {
	if !CanTransition(rec.State, to) {
		return Record{}, illegal("clone.transition", rec)
	}
	from := rec.State
	rec.State = to
	rec.UpdatedAt = m.now()
	if err := m.registry.Put(ctx, rec); err != nil {
		return Record{}, errors.Wrapf(err, "record %s clone", to)
	}
	m.log.Info().
		Str("clone", rec.Key.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("clone transition")
	return rec, nil
}

func illegal(op string, rec Record) error {
	return clienterr.Precondition(op, clienterr.CodeIllegalState, "clone %s is %s", rec.Key, rec.State)
}

func notFound(op string, app holo.InstalledAppID, id holo.CloneCellID) error {
	return clienterr.Precondition(op, clienterr.CodeCellNotFound, "clone %s not found in app %q", id, app)
}
